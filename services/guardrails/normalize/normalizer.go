// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize converts heterogeneous detector output into canonical
// findings.
//
// Detectors report raw items in whatever shape their backend produces.
// Normalization resolves defaults (severity, confidence), stamps the
// origin, assigns stable IDs, and drops items that lack the minimum a
// finding needs: a location and a message. Dropped items are recorded as
// detector-failure notes, never raised as errors.
package normalize

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// RawFinding is the detector-facing shape before normalization. Fields
// mirror what pattern scanners, linters, and the reasoning model can all
// supply; most are optional.
type RawFinding struct {
	RuleID      string   `json:"rule_id"`
	Severity    string   `json:"severity,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	Message     string   `json:"message"`
	Remediation string   `json:"remediation,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Confidence in [0,1]. Zero means the detector gave none; the
	// normalizer substitutes a conservative default.
	Confidence float64 `json:"confidence,omitempty"`
}

// DefaultConfidence is assumed when a detector reports none.
const DefaultConfidence = 0.5

// Result pairs the normalized findings with notes about raw items that
// had to be dropped.
type Result struct {
	Findings []datatypes.Finding

	// Dropped describes raw items rejected during normalization, one
	// note per item. These become detector-failure records upstream.
	Dropped []string
}

// Normalize converts raw detector output into canonical findings.
//
// # Description
//
// Each raw item must carry at least a location (file path with a valid
// line) and a message; items missing either are dropped with a note.
// Severity defaults to medium when absent or unrecognized, confidence to
// DefaultConfidence when unset. Every output finding carries the given
// origin and a fresh ID.
//
// # Inputs
//
//   - raw: Detector-specific items, already collected.
//   - origin: Which detector class produced them.
//
// # Outputs
//
//   - Result: Normalized findings plus drop notes. Never an error; a
//     fully malformed batch yields zero findings and one note per item.
func Normalize(raw []RawFinding, origin datatypes.Origin) Result {
	var res Result
	for i, item := range raw {
		if strings.TrimSpace(item.Message) == "" {
			res.Dropped = append(res.Dropped, fmt.Sprintf("item %d (%s): missing message", i, item.RuleID))
			continue
		}
		if item.FilePath == "" || item.Line < 1 {
			res.Dropped = append(res.Dropped, fmt.Sprintf("item %d (%s): missing location", i, item.RuleID))
			continue
		}

		severity := datatypes.Severity(strings.ToLower(item.Severity))
		if !severity.Valid() {
			severity = datatypes.SeverityMedium
		}

		confidence := item.Confidence
		if confidence <= 0 {
			confidence = DefaultConfidence
		}
		if confidence > 1 {
			confidence = 1
		}

		ruleID := item.RuleID
		if ruleID == "" {
			ruleID = "unclassified"
		}

		res.Findings = append(res.Findings, datatypes.Finding{
			ID:          uuid.NewString(),
			RuleID:      ruleID,
			Severity:    severity,
			FilePath:    item.FilePath,
			Line:        item.Line,
			Column:      item.Column,
			Description: strings.TrimSpace(item.Message),
			Remediation: item.Remediation,
			Tags:        item.Tags,
			Origin:      origin,
			Confidence:  confidence,
		})
	}
	return res
}
