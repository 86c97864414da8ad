// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package override

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/policy"
)

// memTrail records appended audit entries in order.
type memTrail struct {
	mu      sync.Mutex
	entries []datatypes.AuditEntry
	err     error
}

func (t *memTrail) Append(_ context.Context, e datatypes.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *memTrail) events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Event
	}
	return out
}

func overridablePolicy(scope string) *datatypes.Policy {
	return &datatypes.Policy{
		Scope:             scope,
		Mode:              datatypes.ModeBlocking,
		AllowOverride:     true,
		OverrideApprovers: []string{"lead", "secops"},
	}
}

func blockedScan(scanID, scope string) *datatypes.ScanResult {
	return &datatypes.ScanResult{
		ScanID:  scanID,
		Scope:   scope,
		Verdict: datatypes.VerdictBlock,
	}
}

func newTestManager(t *testing.T, scope string) (*Manager, *memTrail) {
	t.Helper()
	store := policy.NewMemoryStore()
	store.Set(overridablePolicy(scope))
	trail := &memTrail{}
	return NewManager(store, trail), trail
}

func TestRequestOpensRecord(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")

	rec, err := mgr.Request(context.Background(), blockedScan("scan-1", "repo-a"), "dev", "hotfix for outage")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rec.State != datatypes.OverrideRequested {
		t.Fatalf("state = %q, want requested", rec.State)
	}
	if rec.ScanID != "scan-1" || rec.Requester != "dev" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ID == "" || rec.RequestedAt.IsZero() {
		t.Fatalf("record not stamped: %+v", rec)
	}
	got := trail.events()
	if len(got) != 1 || got[0] != "override-requested" {
		t.Fatalf("trail = %v", got)
	}
}

func TestRequestNotBlocked(t *testing.T) {
	mgr, _ := newTestManager(t, "repo-a")

	scan := blockedScan("scan-1", "repo-a")
	scan.Verdict = datatypes.VerdictAccept
	if _, err := mgr.Request(context.Background(), scan, "dev", "please"); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("err = %v, want ErrNotBlocked", err)
	}
}

func TestRequestOverridesDisabled(t *testing.T) {
	store := policy.NewMemoryStore()
	store.Set(&datatypes.Policy{Scope: "repo-a", Mode: datatypes.ModeBlocking})
	mgr := NewManager(store, &memTrail{})

	_, err := mgr.Request(context.Background(), blockedScan("scan-1", "repo-a"), "dev", "please")
	if !errors.Is(err, ErrOverridesDisabled) {
		t.Fatalf("err = %v, want ErrOverridesDisabled", err)
	}
}

// The fail-safe default policy forbids overrides, so a scope with no
// configured policy cannot be overridden either.
func TestRequestUnknownScopeDisabled(t *testing.T) {
	mgr := NewManager(policy.NewMemoryStore(), &memTrail{})

	_, err := mgr.Request(context.Background(), blockedScan("scan-1", "unknown"), "dev", "please")
	if !errors.Is(err, ErrOverridesDisabled) {
		t.Fatalf("err = %v, want ErrOverridesDisabled", err)
	}
}

func TestRepeatedRequestReturnsSameRecord(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	first, err := mgr.Request(context.Background(), scan, "dev", "one")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	second, err := mgr.Request(context.Background(), scan, "other", "two")
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if second.ID != first.ID || second.Requester != "dev" {
		t.Fatalf("second request created a new record: %+v vs %+v", first, second)
	}
	if got := trail.events(); len(got) != 1 {
		t.Fatalf("trail = %v, want single requested event", got)
	}
}

func TestApprove(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	rec, err := mgr.Request(context.Background(), scan, "dev", "hotfix")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resolved, err := mgr.Resolve(context.Background(), rec.ID, "lead", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.State != datatypes.OverrideApproved {
		t.Fatalf("state = %q, want approved", resolved.State)
	}
	if resolved.Resolver != "lead" || resolved.ResolvedAt.IsZero() {
		t.Fatalf("resolution not stamped: %+v", resolved)
	}
	if v := mgr.EffectiveVerdict(scan); v != datatypes.VerdictAcceptWithOverride {
		t.Fatalf("effective verdict = %q, want accept-with-override", v)
	}
	want := []string{"override-requested", "override-approved"}
	got := trail.events()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("trail = %v, want %v", got, want)
	}
}

func TestReject(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	rec, _ := mgr.Request(context.Background(), scan, "dev", "hotfix")
	resolved, err := mgr.Resolve(context.Background(), rec.ID, "secops", false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.State != datatypes.OverrideRejected {
		t.Fatalf("state = %q, want rejected", resolved.State)
	}
	if v := mgr.EffectiveVerdict(scan); v != datatypes.VerdictBlock {
		t.Fatalf("effective verdict = %q, want block", v)
	}
	if got := trail.events(); got[len(got)-1] != "override-rejected" {
		t.Fatalf("trail = %v", got)
	}
}

func TestRequestAfterRejectionOpensNewRecord(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	first, _ := mgr.Request(context.Background(), scan, "dev", "hotfix")
	if _, err := mgr.Resolve(context.Background(), first.ID, "lead", false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	second, err := mgr.Request(context.Background(), scan, "dev", "with customer impact")
	if err != nil {
		t.Fatalf("Request after rejection: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("got the rejected record %s back, want a fresh one", first.ID)
	}
	if second.State != datatypes.OverrideRequested {
		t.Fatalf("state = %q, want requested", second.State)
	}
	if second.Justification != "with customer impact" {
		t.Fatalf("justification = %q", second.Justification)
	}

	// The rejected record stays readable; the scan now maps to the
	// new one.
	if old, err := mgr.Get(first.ID); err != nil || old.State != datatypes.OverrideRejected {
		t.Fatalf("Get(first) = %+v, %v", old, err)
	}
	if cur, ok := mgr.ForScan("scan-1"); !ok || cur.ID != second.ID {
		t.Fatalf("ForScan = %+v, %v", cur, ok)
	}

	want := []string{"override-requested", "override-rejected", "override-requested"}
	if got := trail.events(); len(got) != len(want) || got[2] != want[2] {
		t.Fatalf("trail = %v, want %v", got, want)
	}

	// Approving the new record lifts the block.
	if _, err := mgr.Resolve(context.Background(), second.ID, "lead", true); err != nil {
		t.Fatalf("Resolve(second): %v", err)
	}
	if v := mgr.EffectiveVerdict(scan); v != datatypes.VerdictAcceptWithOverride {
		t.Fatalf("effective verdict = %q, want accept-with-override", v)
	}
}

func TestUnauthorizedResolverDenied(t *testing.T) {
	mgr, trail := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	rec, _ := mgr.Request(context.Background(), scan, "dev", "hotfix")
	got, err := mgr.Resolve(context.Background(), rec.ID, "dev", true)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	if got.State != datatypes.OverrideRequested {
		t.Fatalf("state changed on denied attempt: %q", got.State)
	}
	events := trail.events()
	if events[len(events)-1] != "override-denied" {
		t.Fatalf("trail = %v, want trailing denied event", events)
	}

	// The record remains resolvable by an authorized approver.
	resolved, err := mgr.Resolve(context.Background(), rec.ID, "lead", true)
	if err != nil {
		t.Fatalf("Resolve after denial: %v", err)
	}
	if resolved.State != datatypes.OverrideApproved {
		t.Fatalf("state = %q, want approved", resolved.State)
	}
}

func TestTerminalStateImmutable(t *testing.T) {
	mgr, _ := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")

	rec, _ := mgr.Request(context.Background(), scan, "dev", "hotfix")
	if _, err := mgr.Resolve(context.Background(), rec.ID, "lead", false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := mgr.Resolve(context.Background(), rec.ID, "lead", true)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
	if got.State != datatypes.OverrideRejected {
		t.Fatalf("terminal state changed: %q", got.State)
	}
}

func TestResolveUnknownRecord(t *testing.T) {
	mgr, _ := newTestManager(t, "repo-a")
	if _, err := mgr.Resolve(context.Background(), "missing", "lead", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// An approval is keyed to the scan that produced it: a fresh scan of the
// same scope gets a new scan ID and starts with no override.
func TestApprovalDoesNotCarryToNewScan(t *testing.T) {
	mgr, _ := newTestManager(t, "repo-a")
	first := blockedScan("scan-1", "repo-a")

	rec, _ := mgr.Request(context.Background(), first, "dev", "hotfix")
	if _, err := mgr.Resolve(context.Background(), rec.ID, "lead", true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rescan := blockedScan("scan-2", "repo-a")
	if v := mgr.EffectiveVerdict(rescan); v != datatypes.VerdictBlock {
		t.Fatalf("effective verdict for rescan = %q, want block", v)
	}
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	mgr, _ := newTestManager(t, "repo-a")
	scan := blockedScan("scan-1", "repo-a")
	rec, _ := mgr.Request(context.Background(), scan, "dev", "hotfix")

	const resolvers = 8
	var wg sync.WaitGroup
	errs := make([]error, resolvers)
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.Resolve(context.Background(), rec.ID, "lead", i%2 == 0)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTerminal):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	got, err := mgr.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.State.Terminal() {
		t.Fatalf("record not terminal after race: %q", got.State)
	}
}
