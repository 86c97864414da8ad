// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dedupe collapses overlapping findings that describe the same
// underlying issue.
//
// Two findings are duplicates when they share (file path, line, rule id)
// exactly. Nothing fuzzier is attempted: weakness-class wording varies
// too much across detectors for message matching to be safe.
package dedupe

import (
	"sort"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// key is the exact duplicate identity.
type key struct {
	path   string
	line   int
	ruleID string
}

// Dedupe collapses duplicate findings and returns a deterministically
// ordered result.
//
// # Description
//
// Findings are first placed in a stable scan order (file path ascending,
// then line ascending, then original list position) so the output is
// reproducible regardless of detector completion order. Within a
// duplicate group the winner is:
//
//  1. higher severity, else
//  2. higher origin priority (ai-model > external-linter > static-pattern), else
//  3. first seen in scan order.
//
// Input findings are never mutated; losers are dropped.
//
// # Inputs
//
//   - findings: Findings in any order.
//
// # Outputs
//
//   - []datatypes.Finding: Deduplicated findings in scan order.
func Dedupe(findings []datatypes.Finding) []datatypes.Finding {
	if len(findings) == 0 {
		return nil
	}

	ordered := make([]datatypes.Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].FilePath != ordered[j].FilePath {
			return ordered[i].FilePath < ordered[j].FilePath
		}
		return ordered[i].Line < ordered[j].Line
	})

	index := make(map[key]int, len(ordered))
	result := make([]datatypes.Finding, 0, len(ordered))
	for _, f := range ordered {
		k := key{path: f.FilePath, line: f.Line, ruleID: f.RuleID}
		at, seen := index[k]
		if !seen {
			index[k] = len(result)
			result = append(result, f)
			continue
		}
		if beats(f, result[at]) {
			result[at] = f
		}
	}
	return result
}

// beats reports whether challenger should replace the incumbent for the
// same duplicate key. A strict win is required: ties keep the first-seen
// finding.
func beats(challenger, incumbent datatypes.Finding) bool {
	if challenger.Severity.Rank() != incumbent.Severity.Rank() {
		return challenger.Severity.Rank() > incumbent.Severity.Rank()
	}
	return challenger.Origin.Priority() > incumbent.Origin.Priority()
}
