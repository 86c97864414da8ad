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
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
)

// EntropyConfig tunes the high-entropy token detector.
type EntropyConfig struct {
	// MinTokenLen is the shortest token considered. Shorter strings give
	// unreliable entropy estimates.
	MinTokenLen int

	// MinEntropy is the Shannon entropy threshold in bits per character
	// for base64-alphabet tokens.
	MinEntropy float64

	// MinHexEntropy is the threshold for hex-only tokens, whose smaller
	// alphabet caps attainable entropy lower.
	MinHexEntropy float64
}

// DefaultEntropyConfig matches thresholds that keep UUID and hash noise
// below the line while catching real key material.
func DefaultEntropyConfig() EntropyConfig {
	return EntropyConfig{
		MinTokenLen:   20,
		MinEntropy:    4.2,
		MinHexEntropy: 3.2,
	}
}

// EntropyDetector flags string literals whose randomness suggests key
// material the pattern rules have no signature for.
type EntropyDetector struct {
	cfg EntropyConfig
}

var _ Detector = (*EntropyDetector)(nil)

var (
	entropyToken = regexp.MustCompile(`[A-Za-z0-9+/=_\-]{20,}`)
	hexToken     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// NewEntropyDetector builds the detector; zero config fields fall back
// to the defaults.
func NewEntropyDetector(cfg EntropyConfig) *EntropyDetector {
	def := DefaultEntropyConfig()
	if cfg.MinTokenLen <= 0 {
		cfg.MinTokenLen = def.MinTokenLen
	}
	if cfg.MinEntropy <= 0 {
		cfg.MinEntropy = def.MinEntropy
	}
	if cfg.MinHexEntropy <= 0 {
		cfg.MinHexEntropy = def.MinHexEntropy
	}
	return &EntropyDetector{cfg: cfg}
}

// Name implements Detector.
func (d *EntropyDetector) Name() string { return "entropy" }

// Origin implements Detector.
func (d *EntropyDetector) Origin() datatypes.Origin { return datatypes.OriginStaticPattern }

// Scan looks for high-entropy tokens outside comment lines.
func (d *EntropyDetector) Scan(ctx context.Context, sub datatypes.Submission) ([]normalize.RawFinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []normalize.RawFinding
	for lineNum, line := range strings.Split(sub.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}
		for _, loc := range entropyToken.FindAllStringIndex(line, -1) {
			token := line[loc[0]:loc[1]]
			if len(token) < d.cfg.MinTokenLen {
				continue
			}
			threshold := d.cfg.MinEntropy
			if hexToken.MatchString(token) {
				threshold = d.cfg.MinHexEntropy
			}
			entropy := shannonEntropy(token)
			if entropy < threshold {
				continue
			}
			out = append(out, normalize.RawFinding{
				RuleID:      "SEC-HIGH-ENTROPY",
				Severity:    "high",
				FilePath:    sub.Path,
				Line:        lineNum + 1,
				Column:      loc[0] + 1,
				Message:     fmt.Sprintf("high-entropy string (%.2f bits/char) looks like key material", entropy),
				Remediation: "If this is a credential, rotate it and load it from a secret manager.",
				Tags:        []string{"secret", "entropy"},
				Confidence:  0.6,
			})
		}
	}
	return out, nil
}

// shannonEntropy returns the Shannon entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// isCommentLine reports whether a trimmed line starts a comment.
func isCommentLine(line string) bool {
	return strings.HasPrefix(line, "//") ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "/*") ||
		strings.HasPrefix(line, "*") ||
		strings.HasPrefix(line, "'''") ||
		strings.HasPrefix(line, `"""`)
}
