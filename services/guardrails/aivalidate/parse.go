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
	"errors"
	"strings"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
)

var errNoJSON = errors.New("no JSON payload in response")

// stripFences removes markdown code fences the model tends to wrap JSON
// in, then trims to the outermost JSON value.
func stripFences(text string, open, close byte) (string, error) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```json"); idx != -1 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx != -1 {
		text = text[idx+3:]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	}
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end < start {
		return "", errNoJSON
	}
	return text[start : end+1], nil
}

// parseConfirmedIDs extracts the confirmed finding IDs from a validation
// response. Returns an error for anything that does not parse into the
// expected shape; the caller treats that as a capability failure.
func parseConfirmedIDs(text string) (map[string]bool, error) {
	payload, err := stripFences(text, '{', '}')
	if err != nil {
		return nil, err
	}
	var body struct {
		Confirmed []string `json:"confirmed"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, err
	}
	confirmed := make(map[string]bool, len(body.Confirmed))
	for _, id := range body.Confirmed {
		confirmed[id] = true
	}
	return confirmed, nil
}

// parseDiscovered extracts raw findings from a discovery response and
// stamps the submission path onto each. A single object instead of an
// array is tolerated; anything else is an error.
func parseDiscovered(text, path string) ([]normalize.RawFinding, error) {
	payload, err := stripFences(text, '[', ']')
	if err != nil {
		// Some models return a bare object for a single finding.
		obj, objErr := stripFences(text, '{', '}')
		if objErr != nil {
			return nil, err
		}
		payload = "[" + obj + "]"
	}

	var raw []normalize.RawFinding
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}
	for i := range raw {
		if raw[i].FilePath == "" {
			raw[i].FilePath = path
		}
	}
	return raw, nil
}
