// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates one analysis run end to end: detectors
// fan out over submissions, raw output is normalized and deduplicated,
// AI validation and signal fusion refine the result, and the policy
// engine renders the verdict. A scan never fails because a detector
// does; failures are recorded and the rest of the run continues.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGuard/pkg/logging"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/aivalidate"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/dedupe"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/detect"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/fusion"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/policy"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/telemetry"
)

var tracer = otel.Tracer("aleutian.guardrails")

// Validator is the slice of the AI adapter the orchestrator needs.
// Validation failures pass findings through; discovery failures
// suppress AI findings. Both are handled inside the implementation.
type Validator interface {
	Validate(ctx context.Context, findings []datatypes.Finding, content string) aivalidate.ValidateOutcome
	Discover(ctx context.Context, content, path, language string) []datatypes.Finding
}

var _ Validator = (*aivalidate.Adapter)(nil)

// Trail receives the audit entry for each completed scan.
type Trail interface {
	Append(ctx context.Context, entry datatypes.AuditEntry) error
}

var _ Trail = (*audit.Recorder)(nil)

// Config bounds one analysis run.
type Config struct {
	// DetectorTimeout caps each detector's Scan call per submission.
	// Default 10s.
	DetectorTimeout time.Duration

	// ScanTimeout caps the whole run. Default 2m.
	ScanTimeout time.Duration

	// MaxConcurrent bounds submissions analyzed in parallel. Default 4.
	MaxConcurrent int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DetectorTimeout: 10 * time.Second,
		ScanTimeout:     2 * time.Minute,
		MaxConcurrent:   4,
	}
}

// Components wires the orchestrator's collaborators. Detectors may be
// empty and Validator, Fusion, Trail, Metrics, and Logger may be nil;
// absent pieces are skipped, never faked.
type Components struct {
	Detectors []detect.Detector
	Validator Validator
	Fusion    *fusion.Detector
	Policies  policy.Store
	Trail     Trail
	Metrics   *telemetry.Metrics
	Logger    *logging.Logger
}

// Orchestrator runs the analysis pipeline.
//
// # Thread Safety
//
//	Safe for concurrent Analyze calls.
type Orchestrator struct {
	cfg    Config
	comps  Components
	logger *logging.Logger
}

// New builds an Orchestrator. Zero config fields fall back to defaults.
func New(cfg Config, comps Components) *Orchestrator {
	def := DefaultConfig()
	if cfg.DetectorTimeout <= 0 {
		cfg.DetectorTimeout = def.DetectorTimeout
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	logger := comps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{cfg: cfg, comps: comps, logger: logger}
}

// submissionOutcome is the per-submission analysis result before the
// cross-submission merge.
type submissionOutcome struct {
	path     string
	decision policy.Decision
	fusion   *datatypes.SignalFusionResult
	failures []datatypes.DetectorFailure

	validationAttempted bool
	validationRan       bool
}

// Analyze runs the full pipeline over a submission set.
//
// # Description
//
//	Resolves the scope's policy, analyzes each submission (detectors in
//	parallel, then normalization, deduplication, AI validation and
//	discovery, signal fusion, and the policy decision), merges the
//	per-submission outcomes into one ScanResult, and appends it to the
//	audit trail. Detector and AI failures degrade the result, they do
//	not abort it: with every detector down the scan still completes
//	with an empty finding list and the failures recorded.
//
// # Inputs
//
//   - ctx: Cancellation context; additionally bounded by ScanTimeout.
//   - scope: Policy ownership scope (e.g. repository).
//   - subs: Submissions to analyze. May be empty. Paths must be unique
//     within the batch: fusion results are keyed by path, and a
//     duplicate keeps only the outcome analyzed last.
//
// # Outputs
//
//   - *datatypes.ScanResult: Always non-nil.
//   - error: Non-nil only when the audit append failed; the returned
//     result is still valid.
func (o *Orchestrator) Analyze(ctx context.Context, scope string, subs []datatypes.Submission) (*datatypes.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "guardrails.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.scope", scope),
		attribute.Int("scan.submissions", len(subs)),
	)

	done := o.comps.Metrics.ScanStarted()
	defer done()

	started := time.Now()
	scanID := uuid.NewString()
	pol := policy.Resolve(ctx, o.comps.Policies, scope)

	outcomes := make([]submissionOutcome, len(subs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i := range subs {
		i := i
		g.Go(func() error {
			outcomes[i] = o.analyzeSubmission(gCtx, pol, subs[i])
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes above.
	_ = g.Wait()

	result := o.merge(scanID, scope, started, subs, outcomes)
	span.SetAttributes(
		attribute.String("scan.verdict", string(result.Verdict)),
		attribute.Int("scan.findings", len(result.Findings)),
	)
	o.comps.Metrics.RecordScan(result)
	o.logger.Info("scan complete",
		"scan_id", scanID,
		"scope", scope,
		"submissions", len(subs),
		"findings", len(result.Findings),
		"verdict", string(result.Verdict),
		"elapsed", result.Elapsed,
	)

	if o.comps.Trail != nil {
		entry := datatypes.AuditEntry{
			ScanID:  scanID,
			Scope:   scope,
			Event:   audit.EventScan,
			Summary: datatypes.SummarizeResult(result),
			Verdict: result.Verdict,
		}
		if err := o.comps.Trail.Append(ctx, entry); err != nil {
			o.logger.Error("audit append failed", "scan_id", scanID, "error", err)
			return result, err
		}
	}
	return result, nil
}

// analyzeSubmission runs detectors, refinement, and the policy decision
// for one submission.
func (o *Orchestrator) analyzeSubmission(ctx context.Context, pol *datatypes.Policy, sub datatypes.Submission) submissionOutcome {
	ctx, span := tracer.Start(ctx, "guardrails.analyzeSubmission")
	defer span.End()
	span.SetAttributes(attribute.String("submission.path", sub.Path))

	findings, failures := o.runDetectors(ctx, sub)
	findings = dedupe.Dedupe(findings)

	out := submissionOutcome{path: sub.Path, failures: failures}

	// Fusion reads only the submission, never the findings, so it
	// overlaps the validation round-trip.
	fusionCh := make(chan *datatypes.SignalFusionResult, 1)
	go func() {
		if o.comps.Fusion == nil {
			fusionCh <- nil
			return
		}
		fusionCh <- o.comps.Fusion.Detect(&sub)
	}()

	if o.comps.Validator != nil {
		if len(findings) > 0 {
			out.validationAttempted = true
			vo := o.comps.Validator.Validate(ctx, findings, sub.Content)
			findings = vo.Findings
			out.validationRan = vo.Ran
		}
		discovered := o.comps.Validator.Discover(ctx, sub.Content, sub.Path, sub.Language)
		if len(discovered) > 0 {
			findings = dedupe.Dedupe(append(findings, discovered...))
		}
	}

	out.fusion = <-fusionCh
	out.decision = policy.Decide(findings, pol, out.fusion, sub.SuspectedAIAuthored)
	return out
}

// runDetectors fans all detectors out over one submission. Each gets
// its own timeout; an error marks the detector failed without touching
// the others.
func (o *Orchestrator) runDetectors(ctx context.Context, sub datatypes.Submission) ([]datatypes.Finding, []datatypes.DetectorFailure) {
	type detectorResult struct {
		findings []datatypes.Finding
		failure  *datatypes.DetectorFailure
	}

	results := make([]detectorResult, len(o.comps.Detectors))
	g, gCtx := errgroup.WithContext(ctx)
	for i, d := range o.comps.Detectors {
		i, d := i, d
		g.Go(func() error {
			dCtx, cancel := context.WithTimeout(gCtx, o.cfg.DetectorTimeout)
			defer cancel()

			raw, err := d.Scan(dCtx, sub)
			if err != nil {
				o.logger.Warn("detector failed",
					"detector", d.Name(), "path", sub.Path, "error", err)
				results[i] = detectorResult{failure: &datatypes.DetectorFailure{
					Detector: d.Name(),
					Reason:   err.Error(),
				}}
				return nil
			}
			res := normalize.Normalize(raw, d.Origin())
			if len(res.Dropped) > 0 {
				o.logger.Warn("detector output partially dropped",
					"detector", d.Name(), "path", sub.Path, "dropped", len(res.Dropped))
			}
			results[i] = detectorResult{findings: res.Findings}
			return nil
		})
	}
	_ = g.Wait()

	var findings []datatypes.Finding
	var failures []datatypes.DetectorFailure
	for _, r := range results {
		findings = append(findings, r.findings...)
		if r.failure != nil {
			failures = append(failures, *r.failure)
		}
	}
	return findings, failures
}

// merge folds the per-submission outcomes into the final ScanResult.
// The submission set blocks if any single submission blocked.
func (o *Orchestrator) merge(scanID, scope string, started time.Time, subs []datatypes.Submission, outcomes []submissionOutcome) *datatypes.ScanResult {
	ordered := make([]submissionOutcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].path < ordered[j].path })

	result := &datatypes.ScanResult{
		ScanID:          scanID,
		Scope:           scope,
		Verdict:         datatypes.VerdictAccept,
		SubmissionCount: len(subs),
		StartedAt:       started.UTC(),
	}

	var all []datatypes.Finding
	attempted, ran := 0, 0
	for _, out := range ordered {
		all = append(all, out.decision.Findings...)
		result.Partition.Blocking = append(result.Partition.Blocking, out.decision.Partition.Blocking...)
		result.Partition.Warning = append(result.Partition.Warning, out.decision.Partition.Warning...)
		result.Partition.Advisory = append(result.Partition.Advisory, out.decision.Partition.Advisory...)
		result.Failures = append(result.Failures, out.failures...)
		if out.decision.Verdict == datatypes.VerdictBlock {
			result.Verdict = datatypes.VerdictBlock
		}
		if out.fusion != nil {
			if result.Fusion == nil {
				result.Fusion = make(map[string]*datatypes.SignalFusionResult)
			}
			result.Fusion[out.path] = out.fusion
		}
		if out.validationAttempted {
			attempted++
			if out.validationRan {
				ran++
			}
		}
	}
	result.Findings = dedupe.Dedupe(all)
	result.ValidationRan = attempted > 0 && ran == attempted
	result.Elapsed = time.Since(started)
	return result
}
