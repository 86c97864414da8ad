// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func TestAppendAndList(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := rec.Append(ctx, datatypes.AuditEntry{
			ScanID:    fmt.Sprintf("scan-%d", i),
			Scope:     "org/repo",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Event:     EventScan,
			Verdict:   datatypes.VerdictAccept,
		})
		require.NoError(t, err)
	}

	entries, err := rec.List(ctx, Query{Scope: "org/repo"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Append order is preserved through the key scheme.
	for i, e := range entries {
		require.Equal(t, fmt.Sprintf("scan-%d", i), e.ScanID)
		require.NotEmpty(t, e.ID, "entries get IDs assigned")
	}
}

func TestListFilters(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	seed := []datatypes.AuditEntry{
		{ScanID: "s1", Scope: "org/a", Event: EventScan, Timestamp: base, Verdict: datatypes.VerdictBlock},
		{ScanID: "s1", Scope: "org/a", Event: EventOverrideRequested, Timestamp: base.Add(time.Minute), OverrideState: datatypes.OverrideRequested},
		{ScanID: "s2", Scope: "org/b", Event: EventScan, Timestamp: base.Add(2 * time.Minute), Verdict: datatypes.VerdictAccept},
	}
	for _, e := range seed {
		require.NoError(t, rec.Append(ctx, e))
	}

	byScope, err := rec.List(ctx, Query{Scope: "org/b"})
	require.NoError(t, err)
	require.Len(t, byScope, 1)

	byScan, err := rec.List(ctx, Query{ScanID: "s1"})
	require.NoError(t, err)
	require.Len(t, byScan, 2)

	byEvent, err := rec.List(ctx, Query{Event: EventOverrideRequested})
	require.NoError(t, err)
	require.Len(t, byEvent, 1)

	since, err := rec.List(ctx, Query{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, since, 1)

	limited, err := rec.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestConcurrentAppend(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := rec.Append(ctx, datatypes.AuditEntry{
					ScanID: fmt.Sprintf("w%d-%d", w, i),
					Scope:  "org/repo",
					Event:  EventScan,
				})
				if err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	entries, err := rec.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, writers*perWriter)
}

func TestAggregate(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Append(ctx, datatypes.AuditEntry{
		ScanID: "s1", Scope: "org/a", Event: EventScan,
		Verdict: datatypes.VerdictBlock,
		Summary: datatypes.FindingsSummary{Total: 3, Critical: 1, Medium: 2},
	}))
	require.NoError(t, rec.Append(ctx, datatypes.AuditEntry{
		ScanID: "s2", Scope: "org/a", Event: EventScan,
		Verdict: datatypes.VerdictAccept,
		Summary: datatypes.FindingsSummary{Total: 1, Low: 1},
	}))
	require.NoError(t, rec.Append(ctx, datatypes.AuditEntry{
		ScanID: "s1", Scope: "org/a", Event: EventOverrideApproved,
		OverrideState: datatypes.OverrideApproved,
	}))

	stats, err := rec.Aggregate(ctx, "org/a")
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalScans)
	require.Equal(t, 1, stats.Blocked)
	require.Equal(t, 1, stats.Overridden)
	require.Equal(t, 4, stats.TotalFindings)
	require.Equal(t, 1, stats.Critical)
	require.Equal(t, 2, stats.Medium)
	require.Equal(t, 1, stats.Low)
}

func TestClosedRecorder(t *testing.T) {
	rec, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	err = rec.Append(context.Background(), datatypes.AuditEntry{Event: EventScan})
	require.ErrorIs(t, err, ErrClosed)

	_, err = rec.List(context.Background(), Query{})
	require.ErrorIs(t, err, ErrClosed)
}
