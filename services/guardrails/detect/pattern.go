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
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
)

// RulePacks holds the raw bytes of the built-in rule definitions.
//
// The YAML is baked into the binary at compile time so the shipped rules
// are immutable at runtime and travel with the executable.
//
//go:embed rule_packs.yaml
var RulePacks []byte

type rulePackFile struct {
	Packs []RulePack `yaml:"packs"`
}

// RulePack groups related rules under a name and priority. Higher
// priority packs are evaluated first.
type RulePack struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
	Rules       []Rule `yaml:"rules"`
}

// Rule is one regex-driven check.
type Rule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Severity    string   `yaml:"severity"`
	Regex       string   `yaml:"regex"`
	Remediation string   `yaml:"remediation"`
	Confidence  float64  `yaml:"confidence"`
	Tags        []string `yaml:"tags"`

	compiled *regexp.Regexp
}

// PatternDetector runs the regex rule packs line by line over a
// submission. Findings carry the static-pattern origin.
type PatternDetector struct {
	packs []RulePack
}

var _ Detector = (*PatternDetector)(nil)

// NewPatternDetector loads the embedded rule packs.
//
// # Description
//
//	Unmarshals the embedded YAML, compiles every regex, and sorts packs
//	from highest to lowest priority. Returns an error if the embedded
//	data is malformed or a pattern does not compile.
func NewPatternDetector() (*PatternDetector, error) {
	return NewPatternDetectorFromYAML(RulePacks)
}

// NewPatternDetectorFromYAML builds a detector from caller-supplied rule
// pack bytes, for deployments that ship their own rules.
func NewPatternDetectorFromYAML(data []byte) (*PatternDetector, error) {
	var file rulePackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule packs: %w", err)
	}
	for i := range file.Packs {
		for j := range file.Packs[i].Rules {
			rule := &file.Packs[i].Rules[j]
			re, err := regexp.Compile(rule.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
			}
			rule.compiled = re
		}
	}
	sort.SliceStable(file.Packs, func(i, j int) bool {
		return file.Packs[i].Priority > file.Packs[j].Priority
	})
	return &PatternDetector{packs: file.Packs}, nil
}

// Name implements Detector.
func (d *PatternDetector) Name() string { return "pattern" }

// Origin implements Detector.
func (d *PatternDetector) Origin() datatypes.Origin { return datatypes.OriginStaticPattern }

// Scan checks every line of the submission against every rule.
//
// Each (rule, line) match yields one raw finding with the matched text
// trimmed into the message. Scan checks ctx between lines so a hung
// pipeline deadline cuts the work short.
func (d *PatternDetector) Scan(ctx context.Context, sub datatypes.Submission) ([]normalize.RawFinding, error) {
	var out []normalize.RawFinding
	lines := strings.Split(sub.Content, "\n")
	for lineNum, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, pack := range d.packs {
			for i := range pack.Rules {
				rule := &pack.Rules[i]
				loc := rule.compiled.FindStringIndex(line)
				if loc == nil {
					continue
				}
				match := strings.TrimSpace(line[loc[0]:loc[1]])
				out = append(out, normalize.RawFinding{
					RuleID:      rule.ID,
					Severity:    rule.Severity,
					FilePath:    sub.Path,
					Line:        lineNum + 1,
					Column:      loc[0] + 1,
					Message:     fmt.Sprintf("%s: %q", rule.Description, match),
					Remediation: rule.Remediation,
					Tags:        rule.Tags,
					Confidence:  rule.Confidence,
				})
			}
		}
	}
	return out, nil
}
