// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
)

// ReportDetector replays findings produced by an external linter run.
//
// CI systems often run their own linters before calling the analysis
// service; this detector feeds those results through the same
// normalization, deduplication, and policy path as live scanners. The
// report is grouped by file path at construction, so Scan only returns
// the entries belonging to the submission it is given.
type ReportDetector struct {
	name   string
	byPath map[string][]normalize.RawFinding
}

var _ Detector = (*ReportDetector)(nil)

// NewReportDetector wraps pre-produced raw findings under the given
// linter name.
func NewReportDetector(name string, findings []normalize.RawFinding) *ReportDetector {
	byPath := make(map[string][]normalize.RawFinding)
	for _, f := range findings {
		byPath[f.FilePath] = append(byPath[f.FilePath], f)
	}
	return &ReportDetector{name: name, byPath: byPath}
}

// NewReportDetectorFromJSON parses a JSON array of raw findings, the
// interchange shape linter adapters are expected to emit.
func NewReportDetectorFromJSON(name string, data []byte) (*ReportDetector, error) {
	var findings []normalize.RawFinding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("failed to parse linter report %s: %w", name, err)
	}
	return NewReportDetector(name, findings), nil
}

// Name implements Detector.
func (d *ReportDetector) Name() string { return d.name }

// Origin implements Detector.
func (d *ReportDetector) Origin() datatypes.Origin { return datatypes.OriginExternalLinter }

// Scan returns the report entries recorded for the submission's path.
func (d *ReportDetector) Scan(ctx context.Context, sub datatypes.Submission) ([]normalize.RawFinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.byPath[sub.Path], nil
}
