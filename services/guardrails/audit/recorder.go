// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists the append-only decision trail.
//
// The recorder owns its BadgerDB store exclusively. Entries are written
// under monotonically increasing keys and never updated or deleted;
// override transitions append new entries rather than amending old
// ones. Concurrent appends from parallel submissions are safe: each
// append is a single-key write in its own transaction, no
// read-modify-write anywhere.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// keyPrefix namespaces audit entries inside the store.
const keyPrefix = "audit:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audit recorder is closed")

// Config holds recorder storage settings.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the trail in RAM. For tests only; an audit trail
	// that vanishes on restart defeats its purpose.
	InMemory bool

	// SyncWrites forces fsync per append. Default true: losing audit
	// entries on crash is worse than the latency.
	SyncWrites bool
}

// DefaultConfig returns durable production settings.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Recorder is the append-only audit sink.
//
// # Thread Safety
//
// Safe for concurrent use. Badger serializes the underlying writes.
type Recorder struct {
	db *badger.DB
}

// Open creates or opens the audit store.
func Open(cfg Config) (*Recorder, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close flushes and closes the store.
func (r *Recorder) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Append writes one audit entry.
//
// # Description
//
// Assigns the entry an ID and timestamp if unset, then writes it under
// a key ordered by timestamp. Entries are immutable once written; there
// is no update path.
//
// # Inputs
//
//   - ctx: Context; checked before the write.
//   - entry: The entry to persist. Passed by value; the caller's copy
//     is not modified.
//
// # Outputs
//
//   - error: Non-nil if the store is closed or the write failed.
func (r *Recorder) Append(ctx context.Context, entry datatypes.AuditEntry) error {
	if r.db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	key := fmt.Sprintf("%s%020d:%s", keyPrefix, entry.Timestamp.UnixNano(), entry.ID)

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	slog.Debug("audit entry appended", "event", entry.Event, "scan_id", entry.ScanID, "verdict", entry.Verdict)
	return nil
}

// Query filters audit reads. Zero fields match everything.
type Query struct {
	Scope  string
	ScanID string
	Event  string
	Since  time.Time
	Until  time.Time

	// Limit caps the number of returned entries. 0 means no cap.
	Limit int
}

func (q Query) matches(e *datatypes.AuditEntry) bool {
	if q.Scope != "" && e.Scope != q.Scope {
		return false
	}
	if q.ScanID != "" && e.ScanID != q.ScanID {
		return false
	}
	if q.Event != "" && e.Event != q.Event {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}

// List returns matching entries in append (timestamp) order.
func (r *Recorder) List(ctx context.Context, q Query) ([]datatypes.AuditEntry, error) {
	if r.db == nil {
		return nil, ErrClosed
	}

	var entries []datatypes.AuditEntry
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry datatypes.AuditEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode audit entry: %w", err)
			}
			if !q.matches(&entry) {
				continue
			}
			entries = append(entries, entry)
			if q.Limit > 0 && len(entries) >= q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats aggregates the trail for one scope (or all scopes when empty).
type Stats struct {
	TotalScans    int `json:"total_scans"`
	Blocked       int `json:"blocked"`
	Overridden    int `json:"overridden"`
	TotalFindings int `json:"total_findings"`
	Critical      int `json:"critical"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
}

// Aggregate computes Stats over scan and override events.
func (r *Recorder) Aggregate(ctx context.Context, scope string) (Stats, error) {
	entries, err := r.List(ctx, Query{Scope: scope})
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, e := range entries {
		switch e.Event {
		case EventScan:
			stats.TotalScans++
			if e.Verdict == datatypes.VerdictBlock {
				stats.Blocked++
			}
			stats.TotalFindings += e.Summary.Total
			stats.Critical += e.Summary.Critical
			stats.High += e.Summary.High
			stats.Medium += e.Summary.Medium
			stats.Low += e.Summary.Low
		case EventOverrideApproved:
			stats.Overridden++
		}
	}
	return stats, nil
}

// Audit event names.
const (
	EventScan              = "scan"
	EventOverrideRequested = "override-requested"
	EventOverrideApproved  = "override-approved"
	EventOverrideRejected  = "override-rejected"
	EventOverrideDenied    = "override-denied"
)
