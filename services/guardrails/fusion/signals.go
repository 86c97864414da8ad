// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fusion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// aiTrailerPatterns match commit-message metadata left by AI tooling.
// The most direct evidence available, hence the highest signal weight.
var aiTrailerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)co-authored-by:.*copilot`),
	regexp.MustCompile(`(?i)generated (?:by|with|using)\b`),
	regexp.MustCompile(`(?i)\bai[- ]assisted\b`),
	regexp.MustCompile(`(?i)\bcopilot\b`),
	regexp.MustCompile(`🤖`),
}

// boilerplateMarkers are structural phrases common in generated code.
var boilerplateMarkers = []string{
	"example usage:",
	"this function takes",
	"this method returns",
	"note that this",
	"here's how",
	"as an ai",
	"keep in mind",
	"// todo: implement",
	"# todo: implement",
}

func commitMetadataSignal(sub *datatypes.Submission) (float64, string, bool) {
	if sub.Metadata == nil || len(sub.Metadata.CommitMessages) == 0 {
		return 0, "", false
	}
	matched := 0
	for _, msg := range sub.Metadata.CommitMessages {
		for _, re := range aiTrailerPatterns {
			if re.MatchString(msg) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0, "no AI markers in commit metadata", true
	}
	strength := float64(matched) / float64(len(sub.Metadata.CommitMessages))
	return strength, fmt.Sprintf("%d of %d commit messages carry AI tooling markers", matched, len(sub.Metadata.CommitMessages)), true
}

func commitVelocitySignal(sub *datatypes.Submission) (float64, string, bool) {
	md := sub.Metadata
	if md == nil || len(md.CommitTimes) < 2 || md.LinesChangedInCommit <= 0 {
		return 0, "", false
	}
	first := md.CommitTimes[0]
	last := md.CommitTimes[len(md.CommitTimes)-1]
	minutes := last.Sub(first).Minutes()
	if minutes <= 0 {
		// Multiple commits in the same instant: suspicious on its own.
		return 1, "multiple commits with zero elapsed time", true
	}
	linesPerMinute := float64(md.LinesChangedInCommit) / minutes
	// Sustained human output rarely exceeds ~10 lines/minute across
	// commits; ~100 lines/minute saturates the signal.
	strength := clamp01(linesPerMinute / 100)
	return strength, fmt.Sprintf("%.1f added lines per minute across %d commits", linesPerMinute, len(md.CommitTimes)), true
}

func batchCreationSignal(sub *datatypes.Submission) (float64, string, bool) {
	if sub.Metadata == nil || sub.Metadata.FilesCreatedInCommit <= 0 {
		return 0, "", false
	}
	n := sub.Metadata.FilesCreatedInCommit
	// One or two new files is normal; eight or more at once saturates.
	strength := clamp01(float64(n-1) / 7)
	return strength, fmt.Sprintf("%d files created in one commit", n), true
}

func boilerplateSignal(sub *datatypes.Submission) (float64, string, bool) {
	if strings.TrimSpace(sub.Content) == "" {
		return 0, "", false
	}
	lower := strings.ToLower(sub.Content)
	hits := 0
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	strength := clamp01(float64(hits) / 4)
	rationale := fmt.Sprintf("%d structural boilerplate markers", hits)
	return strength, rationale, true
}

func commentStyleSignal(sub *datatypes.Submission) (float64, string, bool) {
	lines := strings.Split(sub.Content, "\n")
	if len(lines) < 10 {
		return 0, "", false
	}
	commentLines := 0
	uniform := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			commentLines++
			// Generated comments overwhelmingly restate the next line
			// in full sentences starting with a capitalized verb.
			body := strings.TrimLeft(trimmed, "/# ")
			if len(body) > 0 && body[0] >= 'A' && body[0] <= 'Z' && strings.HasSuffix(body, ".") {
				uniform++
			}
		}
	}
	if commentLines == 0 {
		return 0, "no comments to profile", true
	}
	density := float64(commentLines) / float64(len(lines))
	uniformity := float64(uniform) / float64(commentLines)
	// Dense AND uniformly sentence-cased commentary is the generated
	// style; either alone is weak evidence.
	strength := clamp01(density * 2 * uniformity)
	return strength, fmt.Sprintf("comment density %.0f%%, uniform style %.0f%%", density*100, uniformity*100), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
