// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aivalidate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// validationCandidate is the compact finding shape sent to the model.
// Only what the model needs to judge a finding; IDs echo back in the
// confirmation list.
type validationCandidate struct {
	ID          string `json:"id"`
	RuleID      string `json:"rule_id"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
	Description string `json:"description"`
}

func buildValidatePrompt(findings []datatypes.Finding, code string) string {
	candidates := make([]validationCandidate, 0, len(findings))
	for _, f := range findings {
		candidates = append(candidates, validationCandidate{
			ID:          f.ID,
			RuleID:      f.RuleID,
			Severity:    string(f.Severity),
			Line:        f.Line,
			Description: f.Description,
		})
	}
	encoded, _ := json.MarshalIndent(candidates, "", "  ")

	var sb strings.Builder
	sb.WriteString("Validate these security findings against the code. Identify TRUE vs FALSE positives.\n\n")
	sb.WriteString("# FINDINGS TO VALIDATE\n")
	sb.Write(encoded)
	sb.WriteString("\n\n# CODE CONTEXT\n```\n")
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")
	sb.WriteString(`# TASK
Return ONLY the ids of findings that are TRUE POSITIVES, as a JSON array:
{"confirmed": ["id1", "id2"]}

If all are false positives, return: {"confirmed": []}
Return ONLY valid JSON. Validate now:`)
	return sb.String()
}

func buildDiscoverPrompt(code, path, language string) string {
	if language == "" {
		language = "unknown"
	}
	return fmt.Sprintf(`Perform deep security analysis on this %s code.

# FILE CONTEXT
- File: %s
- Language: %s

# METHODOLOGY
1. Read the code and identify security patterns
2. Analyze potential exploits (OWASP Top 10, CWE)
3. Assess severity and impact
4. Provide concrete fixes

# CODE TO ANALYZE
`+"```%s\n%s\n```"+`

# OUTPUT FORMAT (JSON ONLY)
[
  {
    "rule_id": "sql-injection",
    "severity": "critical",
    "line": 45,
    "message": "clear explanation",
    "remediation": "concrete fix",
    "tags": ["CWE-89"],
    "confidence": 0.9
  }
]

RULES:
- Focus on REAL security issues only
- Include 1-based line numbers
- Return ONLY a valid JSON array
- Empty array [] if no issues

Begin analysis:`, language, path, language, language, code)
}
