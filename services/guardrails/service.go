// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardrails exposes the analysis pipeline, override workflow,
// and audit trail as one service with an HTTP surface.
package guardrails

import (
	"context"
	"errors"
	"sync"

	"github.com/AleutianAI/AleutianGuard/pkg/logging"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/override"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/pipeline"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/telemetry"
)

// ErrScanNotFound means no retained scan result matches the given ID.
var ErrScanNotFound = errors.New("scan not found")

// maxRetainedScans bounds the in-memory scan cache backing override
// requests. Oldest scans are dropped first; their audit entries remain.
const maxRetainedScans = 256

// Service ties the orchestrator, the override workflow, and the audit
// trail together behind one API.
//
// # Thread Safety
//
//	Safe for concurrent use.
type Service struct {
	orch      *pipeline.Orchestrator
	overrides *override.Manager
	recorder  *audit.Recorder
	metrics   *telemetry.Metrics
	logger    *logging.Logger

	mu        sync.Mutex
	scans     map[string]*datatypes.ScanResult
	scanOrder []string
}

// NewService assembles the service. overrides, recorder, and metrics
// may be nil; the corresponding operations then report unavailability.
func NewService(orch *pipeline.Orchestrator, overrides *override.Manager, recorder *audit.Recorder, metrics *telemetry.Metrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		orch:      orch,
		overrides: overrides,
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
		scans:     make(map[string]*datatypes.ScanResult),
	}
}

// Analyze runs one scan and retains the result so overrides can be
// requested against it.
func (s *Service) Analyze(ctx context.Context, scope string, subs []datatypes.Submission) (*datatypes.ScanResult, error) {
	result, err := s.orch.Analyze(ctx, scope, subs)
	if result != nil {
		s.retain(result)
	}
	return result, err
}

// Scan returns a previously retained scan result.
func (s *Service) Scan(scanID string) (*datatypes.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.scans[scanID]
	if !ok {
		return nil, ErrScanNotFound
	}
	return result, nil
}

// EffectiveVerdict reports a scan's verdict after any approved
// override.
func (s *Service) EffectiveVerdict(result *datatypes.ScanResult) datatypes.Verdict {
	if s.overrides == nil {
		if result == nil {
			return datatypes.VerdictBlock
		}
		return result.Verdict
	}
	return s.overrides.EffectiveVerdict(result)
}

// RequestOverride opens an override record against a retained scan.
func (s *Service) RequestOverride(ctx context.Context, scanID, requester, justification string) (datatypes.OverrideRecord, error) {
	if s.overrides == nil {
		return datatypes.OverrideRecord{}, override.ErrOverridesDisabled
	}
	scan, err := s.Scan(scanID)
	if err != nil {
		return datatypes.OverrideRecord{}, err
	}
	rec, err := s.overrides.Request(ctx, scan, requester, justification)
	if err == nil {
		s.metrics.RecordOverride(audit.EventOverrideRequested)
	}
	return rec, err
}

// ResolveOverride approves or rejects an override record.
func (s *Service) ResolveOverride(ctx context.Context, recordID, resolver string, approve bool) (datatypes.OverrideRecord, error) {
	if s.overrides == nil {
		return datatypes.OverrideRecord{}, override.ErrOverridesDisabled
	}
	rec, err := s.overrides.Resolve(ctx, recordID, resolver, approve)
	switch {
	case err == nil && approve:
		s.metrics.RecordOverride(audit.EventOverrideApproved)
	case err == nil:
		s.metrics.RecordOverride(audit.EventOverrideRejected)
	case errors.Is(err, override.ErrNotAuthorized):
		s.metrics.RecordOverride(audit.EventOverrideDenied)
	}
	return rec, err
}

// History lists audit entries matching the query, append order.
func (s *Service) History(ctx context.Context, q audit.Query) ([]datatypes.AuditEntry, error) {
	if s.recorder == nil {
		return nil, audit.ErrClosed
	}
	return s.recorder.List(ctx, q)
}

// Stats aggregates the audit trail for a scope; empty scope means all.
func (s *Service) Stats(ctx context.Context, scope string) (audit.Stats, error) {
	if s.recorder == nil {
		return audit.Stats{}, audit.ErrClosed
	}
	return s.recorder.Aggregate(ctx, scope)
}

// Ready reports whether the service can take scans.
func (s *Service) Ready() bool {
	return s.orch != nil
}

func (s *Service) retain(result *datatypes.ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[result.ScanID]; !ok {
		s.scanOrder = append(s.scanOrder, result.ScanID)
	}
	s.scans[result.ScanID] = result
	for len(s.scanOrder) > maxRetainedScans {
		oldest := s.scanOrder[0]
		s.scanOrder = s.scanOrder[1:]
		delete(s.scans, oldest)
	}
}
