// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package override implements the approval workflow for bypassing a
// blocking scan verdict. Records move requested -> approved|rejected and
// never leave a terminal state. Every transition, including denied
// attempts, lands in the audit trail.
package override

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/policy"
)

// Trail is the slice of the audit recorder the workflow needs.
type Trail interface {
	Append(ctx context.Context, entry datatypes.AuditEntry) error
}

var _ Trail = (*audit.Recorder)(nil)

// Manager runs the override state machine.
//
// # Description
//
//	Manager tracks override records for blocked scans, enforces the
//	approver list from the scope's policy, and appends an audit entry
//	for every transition. Records live in memory; the durable history
//	is the audit trail itself.
//
// # Thread Safety
//
//	All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	records map[string]*datatypes.OverrideRecord
	byScan  map[string]string

	policies policy.Store
	trail    Trail
	now      func() time.Time
}

// NewManager builds a Manager. The policy store resolves the approver
// list per scope; trail receives one entry per transition.
func NewManager(policies policy.Store, trail Trail) *Manager {
	return &Manager{
		records:  make(map[string]*datatypes.OverrideRecord),
		byScan:   make(map[string]string),
		policies: policies,
		trail:    trail,
		now:      time.Now,
	}
}

// Request opens an override record against a blocked scan.
//
// # Description
//
//	Validates that the scan blocked and that the scope's policy allows
//	overrides, then creates a record in the requested state. At most
//	one non-rejected record exists per scan; a repeated request returns
//	the existing pending or approved record, while a rejected one is
//	superseded by a fresh request.
//
// # Inputs
//
//   - ctx: Cancellation context.
//   - scan: The blocked scan result the requester wants bypassed.
//   - requester: Identity asking for the override.
//   - justification: Free-form reason, stored verbatim.
//
// # Outputs
//
//   - datatypes.OverrideRecord: The record, state requested.
//   - error: ErrNotBlocked, ErrOverridesDisabled, or an audit error.
func (m *Manager) Request(ctx context.Context, scan *datatypes.ScanResult, requester, justification string) (datatypes.OverrideRecord, error) {
	if scan == nil {
		return datatypes.OverrideRecord{}, ErrScanNotFound
	}
	if !scan.Blocked() {
		return datatypes.OverrideRecord{}, ErrNotBlocked
	}

	pol := policy.Resolve(ctx, m.policies, scan.Scope)
	if !pol.AllowOverride {
		return datatypes.OverrideRecord{}, ErrOverridesDisabled
	}

	m.mu.Lock()
	if id, ok := m.byScan[scan.ScanID]; ok {
		rec := m.records[id]
		if rec.State != datatypes.OverrideRejected {
			out := *rec
			m.mu.Unlock()
			return out, nil
		}
		// A rejection is terminal for the record, not for the scan:
		// the requester may come back with a better justification.
		delete(m.byScan, scan.ScanID)
	}
	rec := &datatypes.OverrideRecord{
		ID:            uuid.NewString(),
		ScanID:        scan.ScanID,
		Scope:         scan.Scope,
		Requester:     requester,
		Justification: justification,
		State:         datatypes.OverrideRequested,
		RequestedAt:   m.now().UTC(),
	}
	m.records[rec.ID] = rec
	m.byScan[scan.ScanID] = rec.ID
	out := *rec
	m.mu.Unlock()

	if err := m.record(ctx, out, audit.EventOverrideRequested, requester, justification); err != nil {
		return out, err
	}
	slog.Info("override requested",
		"record_id", out.ID, "scan_id", out.ScanID, "requester", requester)
	return out, nil
}

// Resolve approves or rejects a pending override record.
//
// # Description
//
//	Checks the resolver against the scope policy's approver list. An
//	unauthorized attempt changes nothing, appends a denied audit entry,
//	and returns ErrNotAuthorized. Approval and rejection are terminal.
//
// # Inputs
//
//   - ctx: Cancellation context.
//   - recordID: The override record to resolve.
//   - resolver: Identity resolving the request.
//   - approve: true to approve, false to reject.
//
// # Outputs
//
//   - datatypes.OverrideRecord: The record after the transition.
//   - error: ErrNotFound, ErrNotAuthorized, ErrTerminal, or an audit error.
func (m *Manager) Resolve(ctx context.Context, recordID, resolver string, approve bool) (datatypes.OverrideRecord, error) {
	m.mu.Lock()
	rec, ok := m.records[recordID]
	if !ok {
		m.mu.Unlock()
		return datatypes.OverrideRecord{}, ErrNotFound
	}
	if rec.State.Terminal() {
		out := *rec
		m.mu.Unlock()
		return out, ErrTerminal
	}
	snapshot := *rec
	m.mu.Unlock()

	pol := policy.Resolve(ctx, m.policies, snapshot.Scope)
	if !pol.CanApprove(resolver) {
		if err := m.record(ctx, snapshot, audit.EventOverrideDenied, resolver, "resolver not in approver list"); err != nil {
			slog.Error("audit append failed for denied override", "record_id", recordID, "error", err)
		}
		slog.Warn("override resolution denied",
			"record_id", recordID, "scan_id", snapshot.ScanID, "resolver", resolver)
		return snapshot, ErrNotAuthorized
	}

	m.mu.Lock()
	// Re-check under the lock: another resolver may have won the race.
	rec, ok = m.records[recordID]
	if !ok {
		m.mu.Unlock()
		return datatypes.OverrideRecord{}, ErrNotFound
	}
	if rec.State.Terminal() {
		out := *rec
		m.mu.Unlock()
		return out, ErrTerminal
	}
	if approve {
		rec.State = datatypes.OverrideApproved
	} else {
		rec.State = datatypes.OverrideRejected
	}
	rec.Resolver = resolver
	rec.ResolvedAt = m.now().UTC()
	out := *rec
	m.mu.Unlock()

	event := audit.EventOverrideApproved
	if !approve {
		event = audit.EventOverrideRejected
	}
	if err := m.record(ctx, out, event, resolver, ""); err != nil {
		return out, err
	}
	slog.Info("override resolved",
		"record_id", out.ID, "scan_id", out.ScanID, "resolver", resolver, "state", string(out.State))
	return out, nil
}

// Get returns a copy of an override record.
func (m *Manager) Get(recordID string) (datatypes.OverrideRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return datatypes.OverrideRecord{}, ErrNotFound
	}
	return *rec, nil
}

// ForScan returns the override record attached to a scan, if any.
func (m *Manager) ForScan(scanID string) (datatypes.OverrideRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byScan[scanID]
	if !ok {
		return datatypes.OverrideRecord{}, false
	}
	return *m.records[id], true
}

// EffectiveVerdict reports the verdict of a scan after any override.
// Only an approved override attached to this exact scan changes the
// outcome; re-running analysis produces a new scan ID and therefore
// discards prior approvals.
func (m *Manager) EffectiveVerdict(scan *datatypes.ScanResult) datatypes.Verdict {
	if scan == nil || !scan.Blocked() {
		if scan == nil {
			return datatypes.VerdictBlock
		}
		return scan.Verdict
	}
	rec, ok := m.ForScan(scan.ScanID)
	if ok && rec.State == datatypes.OverrideApproved {
		return datatypes.VerdictAcceptWithOverride
	}
	return datatypes.VerdictBlock
}

func (m *Manager) record(ctx context.Context, rec datatypes.OverrideRecord, event, actor, detail string) error {
	return m.trail.Append(ctx, datatypes.AuditEntry{
		ScanID:        rec.ScanID,
		Scope:         rec.Scope,
		Event:         event,
		OverrideState: rec.State,
		Actor:         actor,
		Detail:        detail,
	})
}
