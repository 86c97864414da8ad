// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the guardrails
// pipeline: findings, submissions, scan results, policies, overrides,
// and audit entries.
//
// Types here are plain data. Findings are immutable after creation:
// downstream stages may drop or copy them, never mutate them in place.
package datatypes

import (
	"time"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities for comparison and sorting.
// Higher rank means more severe.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric rank of the severity (higher = more severe).
// Unknown severities rank 0, below SeverityLow.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four defined severities.
func (s Severity) Valid() bool {
	return severityRank[s] != 0
}

// Escalate returns the severity one step up. Critical stays critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	default:
		return s
	}
}

// Origin identifies which kind of detector produced a finding.
type Origin string

const (
	OriginStaticPattern  Origin = "static-pattern"
	OriginExternalLinter Origin = "external-linter"
	OriginAIModel        Origin = "ai-model"
)

// originPriority ranks origins for duplicate tie-breaks. AI-model findings
// carry richer remediation text and win over linter and pattern findings.
var originPriority = map[Origin]int{
	OriginStaticPattern:  1,
	OriginExternalLinter: 2,
	OriginAIModel:        3,
}

// Priority returns the tie-break rank of the origin (higher wins).
func (o Origin) Priority() int {
	return originPriority[o]
}

// Finding is one reported issue. Severity and Origin are always present;
// Line is 1-based and >= 1 whenever FilePath is non-empty.
//
// Findings are immutable after creation. The deduplicator may drop a
// Finding, and the decision engine copies before escalating; neither
// mutates the original.
type Finding struct {
	// ID is a stable identifier assigned at normalization time.
	ID string `json:"id"`

	// RuleID identifies the rule or vulnerability type, e.g.
	// "sql-injection" or "AWS_ACCESS_KEY_ID".
	RuleID string `json:"rule_id"`

	Severity Severity `json:"severity"`
	FilePath string   `json:"file_path,omitempty"`

	// Line is 1-based. Zero only when FilePath is empty.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`

	Description string `json:"description"`

	// Remediation is optional fix guidance.
	Remediation string `json:"remediation,omitempty"`

	// Tags carries optional classification identifiers such as a
	// CWE id or a compliance clause id.
	Tags []string `json:"tags,omitempty"`

	Origin Origin `json:"origin"`

	// Confidence is the detector's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Validated records whether the AI validation pass confirmed this
	// finding. False either means validation did not run or the finding
	// predates validation; see ScanResult.ValidationRan.
	Validated bool `json:"validated,omitempty"`
}

// Submission is one unit of code under review: one file's content at one
// revision. It flows through the pipeline once and is not persisted
// beyond the audit summary.
type Submission struct {
	Path     string `json:"path" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Language string `json:"language,omitempty"`

	// SuspectedAIAuthored is an externally supplied authorship hint.
	// The signal fusion detector computes its own probability; this flag
	// short-circuits nothing, it only feeds policy strictness.
	SuspectedAIAuthored bool `json:"suspected_ai_authored,omitempty"`

	// Metadata feeds the signal fusion detector. Optional; signals that
	// cannot be computed from it are excluded, not zeroed.
	Metadata *SubmissionMetadata `json:"metadata,omitempty"`
}

// SubmissionMetadata describes how a submission was produced. All fields
// are optional; absent data excludes the corresponding fusion signal.
type SubmissionMetadata struct {
	// CommitTimes are commit timestamps touching this file, oldest first.
	CommitTimes []time.Time `json:"commit_times,omitempty"`

	// CommitMessages are the messages of those commits.
	CommitMessages []string `json:"commit_messages,omitempty"`

	// FilesCreatedInCommit is how many files the most recent commit
	// created alongside this one.
	FilesCreatedInCommit int `json:"files_created_in_commit,omitempty"`

	// LinesChangedInCommit is the total added lines in the most recent
	// commit touching this file.
	LinesChangedInCommit int `json:"lines_changed_in_commit,omitempty"`
}

// Partition labels the enforcement bucket a finding lands in.
type Partition string

const (
	PartitionBlocking Partition = "blocking"
	PartitionWarning  Partition = "warning"
	PartitionAdvisory Partition = "advisory"
)

// Verdict is the final accept/block outcome of a scan.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictBlock  Verdict = "block"

	// VerdictAcceptWithOverride is the effective verdict after an
	// approved override of a blocking scan. It never appears on the
	// original ScanResult, only on the override's audit record.
	VerdictAcceptWithOverride Verdict = "accept-with-override"
)

// DetectorFailure records one detector that errored or timed out during a
// run. Non-fatal by construction.
type DetectorFailure struct {
	Detector string `json:"detector"`
	Reason   string `json:"reason"`
}

// FindingPartition splits deduplicated findings into enforcement buckets.
type FindingPartition struct {
	Blocking []Finding `json:"blocking"`
	Warning  []Finding `json:"warning"`
	Advisory []Finding `json:"advisory"`
}

// ScanResult is the aggregate output of one pipeline run. It is created
// once by the orchestrator, immutable afterwards, and handed to both the
// audit recorder and the caller.
type ScanResult struct {
	ScanID string `json:"scan_id"`

	// Scope identifies the policy ownership scope (e.g. repository).
	Scope string `json:"scope,omitempty"`

	// Findings is the deduplicated, deterministically ordered list.
	Findings []Finding `json:"findings"`

	Partition FindingPartition `json:"partition"`
	Verdict   Verdict          `json:"verdict"`

	// ValidationRan distinguishes "validated-accept" from
	// "validation-unavailable-passthrough" in the audit trail.
	ValidationRan bool `json:"validation_ran"`

	// Fusion holds the per-submission signal fusion results keyed by
	// submission path. Paths repeated within one batch collapse to a
	// single entry.
	Fusion map[string]*SignalFusionResult `json:"fusion,omitempty"`

	Failures        []DetectorFailure `json:"failures,omitempty"`
	SubmissionCount int               `json:"submission_count"`
	Elapsed         time.Duration     `json:"elapsed"`
	StartedAt       time.Time         `json:"started_at"`
}

// Blocked reports whether the scan verdict blocks the submission set.
func (r *ScanResult) Blocked() bool {
	return r.Verdict == VerdictBlock
}

// SeverityCounts tallies findings by severity.
func (r *ScanResult) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// EnforcementMode determines how severities map to partitions.
type EnforcementMode string

const (
	ModeAdvisory EnforcementMode = "advisory"
	ModeWarning  EnforcementMode = "warning"
	ModeBlocking EnforcementMode = "blocking"
)

// modeRank orders enforcement modes from least to most restrictive.
var modeRank = map[EnforcementMode]int{
	ModeAdvisory: 1,
	ModeWarning:  2,
	ModeBlocking: 3,
}

// Rank returns the restrictiveness rank of the mode.
func (m EnforcementMode) Rank() int {
	return modeRank[m]
}

// Valid reports whether m is a defined enforcement mode.
func (m EnforcementMode) Valid() bool {
	return modeRank[m] != 0
}

// Tighten returns the mode one step more restrictive. Blocking stays
// blocking.
func (m EnforcementMode) Tighten() EnforcementMode {
	switch m {
	case ModeAdvisory:
		return ModeWarning
	case ModeWarning:
		return ModeBlocking
	default:
		return m
	}
}

// Policy is the per-scope enforcement configuration. It is loaded from a
// policy store before a run and read-only during it.
type Policy struct {
	// Scope is the ownership identity, e.g. "org/repo".
	Scope string `yaml:"scope" json:"scope"`

	Mode EnforcementMode `yaml:"mode" json:"mode" validate:"omitempty,oneof=advisory warning blocking"`

	// SeverityOverrides remaps individual severities to a partition,
	// taking precedence over the mode mapping table.
	SeverityOverrides map[Severity]Partition `yaml:"severity_overrides,omitempty" json:"severity_overrides,omitempty"`

	// StrictAIMode tightens the enforcement mode one step when a
	// submission is AI-authored (caller hint or fusion probability).
	StrictAIMode bool `yaml:"strict_ai_mode" json:"strict_ai_mode"`

	// AllowOverride permits the override workflow for blocked scans.
	AllowOverride bool `yaml:"allow_override" json:"allow_override"`

	// OverrideApprovers lists identities authorized to approve or
	// reject overrides in this scope.
	OverrideApprovers []string `yaml:"override_approvers,omitempty" json:"override_approvers,omitempty"`
}

// CanApprove reports whether identity may resolve overrides in this scope.
func (p *Policy) CanApprove(identity string) bool {
	if !p.AllowOverride {
		return false
	}
	for _, a := range p.OverrideApprovers {
		if a == identity {
			return true
		}
	}
	return false
}

// FusionSignal is one independently computed indicator of AI authorship.
type FusionSignal struct {
	Name string `json:"name"`

	// Weight is the configured weight before renormalization.
	Weight float64 `json:"weight"`

	// Strength is the computed signal strength in [0,1].
	Strength float64 `json:"strength"`

	Rationale string `json:"rationale"`
}

// FusionConfidence labels how trustworthy a fused probability is.
type FusionConfidence string

const (
	FusionConfidenceLow    FusionConfidence = "low"
	FusionConfidenceMedium FusionConfidence = "medium"
	FusionConfidenceHigh   FusionConfidence = "high"
)

// SignalFusionResult is the output of the signal fusion detector for one
// submission.
type SignalFusionResult struct {
	// Signals holds the signals that could be computed; excluded
	// signals do not appear.
	Signals []FusionSignal `json:"signals"`

	// Probability is the weighted mean of signal strengths, weights
	// renormalized over the computed signals.
	Probability float64 `json:"probability"`

	Confidence FusionConfidence `json:"confidence"`

	// UsableWeight is the sum of configured weights of computed
	// signals, before renormalization.
	UsableWeight float64 `json:"usable_weight"`
}

// AIAuthored reports whether the fused probability indicates AI
// authorship strongly enough to amplify severities.
func (r *SignalFusionResult) AIAuthored() bool {
	return r != nil && r.Probability > 0.5
}

// OverrideState is the state of an override record.
type OverrideState string

const (
	OverrideRequested OverrideState = "requested"
	OverrideApproved  OverrideState = "approved"
	OverrideRejected  OverrideState = "rejected"
)

// Terminal reports whether the state admits no further transitions.
func (s OverrideState) Terminal() bool {
	return s == OverrideApproved || s == OverrideRejected
}

// OverrideRecord tracks one request to bypass a blocking verdict.
// It is keyed to a specific scan: re-running analysis invalidates any
// prior override.
type OverrideRecord struct {
	ID            string        `json:"id"`
	ScanID        string        `json:"scan_id"`
	Scope         string        `json:"scope,omitempty"`
	Requester     string        `json:"requester"`
	Justification string        `json:"justification"`
	State         OverrideState `json:"state"`
	Resolver      string        `json:"resolver,omitempty"`
	RequestedAt   time.Time     `json:"requested_at"`
	ResolvedAt    time.Time     `json:"resolved_at,omitzero"`
}

// FindingsSummary is the compact per-scan tally stored in audit entries.
type FindingsSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Blocking int `json:"blocking"`
	Warning  int `json:"warning"`
	Advisory int `json:"advisory"`
}

// SummarizeResult builds a FindingsSummary from a scan result.
func SummarizeResult(r *ScanResult) FindingsSummary {
	counts := r.SeverityCounts()
	return FindingsSummary{
		Total:    len(r.Findings),
		Critical: counts[SeverityCritical],
		High:     counts[SeverityHigh],
		Medium:   counts[SeverityMedium],
		Low:      counts[SeverityLow],
		Blocking: len(r.Partition.Blocking),
		Warning:  len(r.Partition.Warning),
		Advisory: len(r.Partition.Advisory),
	}
}

// AuditEntry is one append-only decision trail record. Entries are never
// updated or deleted; override transitions append new entries.
type AuditEntry struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Scope     string    `json:"scope,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Event describes what happened: "scan", "override-requested",
	// "override-approved", "override-rejected", "override-denied".
	Event string `json:"event"`

	Summary FindingsSummary `json:"summary"`
	Verdict Verdict         `json:"verdict"`

	// OverrideState is set on override events.
	OverrideState OverrideState `json:"override_state,omitempty"`

	// Actor is the identity that triggered the event, when known.
	Actor string `json:"actor,omitempty"`

	// Detail carries free-form context: justification text, denial
	// reason, detector failure summary.
	Detail string `json:"detail,omitempty"`
}
