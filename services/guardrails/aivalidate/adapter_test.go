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
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/llm"
)

func sampleFindings() []datatypes.Finding {
	return []datatypes.Finding{
		{
			ID: "f1", RuleID: "sql-injection", Severity: datatypes.SeverityCritical,
			FilePath: "db.py", Line: 10, Description: "string-built query",
			Origin: datatypes.OriginStaticPattern, Confidence: 0.8,
		},
		{
			ID: "f2", RuleID: "hardcoded-secret", Severity: datatypes.SeverityHigh,
			FilePath: "db.py", Line: 3, Description: "api key literal",
			Origin: datatypes.OriginStaticPattern, Confidence: 0.9,
		},
	}
}

func TestValidateConfirmsSubset(t *testing.T) {
	mock := llm.NewMockClient(`{"confirmed": ["f2"]}`)
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	out := adapter.Validate(context.Background(), sampleFindings(), "code")
	if !out.Ran {
		t.Fatal("expected validation to run")
	}
	if len(out.Findings) != 1 || out.Findings[0].ID != "f2" {
		t.Fatalf("got %+v, want only f2", out.Findings)
	}
	if !out.Findings[0].Validated {
		t.Error("surviving finding should be marked validated")
	}
}

func TestValidateFailsOpenOnClientError(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.Err = errors.New("upstream down")
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	in := sampleFindings()
	out := adapter.Validate(context.Background(), in, "code")
	if out.Ran {
		t.Error("validation should report not-ran on failure")
	}
	if !reflect.DeepEqual(out.Findings, in) {
		t.Errorf("fail-open must return input unchanged, got %+v", out.Findings)
	}
}

func TestValidateFailsOpenOnMalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "I think these all look fine to me."},
		{"broken json", `{"confirmed": ["f1"`},
		{"wrong shape", `[1, 2, 3]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := llm.NewMockClient(tc.response)
			adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})
			in := sampleFindings()
			out := adapter.Validate(context.Background(), in, "code")
			if out.Ran {
				t.Error("malformed response must count as validation-unavailable")
			}
			if !reflect.DeepEqual(out.Findings, in) {
				t.Errorf("fail-open must return input unchanged")
			}
		})
	}
}

func TestValidateFailsOpenOnTimeout(t *testing.T) {
	mock := llm.NewMockClient(`{"confirmed": []}`)
	mock.Delay = 200 * time.Millisecond
	adapter := NewAdapter(mock, Config{Timeout: 20 * time.Millisecond, RequestsPerSecond: 1000})

	in := sampleFindings()
	start := time.Now()
	out := adapter.Validate(context.Background(), in, "code")
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("validation exceeded its timeout bound: %v", elapsed)
	}
	if out.Ran || len(out.Findings) != len(in) {
		t.Errorf("timeout must fail open, got ran=%v findings=%d", out.Ran, len(out.Findings))
	}
}

func TestValidateHandlesFencedResponse(t *testing.T) {
	mock := llm.NewMockClient("Here you go:\n```json\n{\"confirmed\": [\"f1\", \"f2\"]}\n```")
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	out := adapter.Validate(context.Background(), sampleFindings(), "code")
	if !out.Ran || len(out.Findings) != 2 {
		t.Fatalf("got ran=%v findings=%d, want both confirmed", out.Ran, len(out.Findings))
	}
}

func TestValidateEmptyInputSkipsCall(t *testing.T) {
	mock := llm.NewMockClient(`{"confirmed": []}`)
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	out := adapter.Validate(context.Background(), nil, "code")
	if out.Ran || len(out.Findings) != 0 {
		t.Errorf("empty input should be a no-op, got %+v", out)
	}
	if len(mock.Calls) != 0 {
		t.Errorf("no reasoning call expected for empty input")
	}
}

func TestDiscoverParsesFindings(t *testing.T) {
	mock := llm.NewMockClient(`[
		{"rule_id": "command-injection", "severity": "critical", "line": 12,
		 "message": "user input reaches os/exec", "remediation": "use fixed argv",
		 "tags": ["CWE-78"], "confidence": 0.85}
	]`)
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	got := adapter.Discover(context.Background(), "code", "cmd/run.go", "go")
	if len(got) != 1 {
		t.Fatalf("got %d findings, want 1", len(got))
	}
	f := got[0]
	if f.Origin != datatypes.OriginAIModel {
		t.Errorf("origin = %q, want ai-model", f.Origin)
	}
	if f.FilePath != "cmd/run.go" {
		t.Errorf("path = %q, want submission path stamped", f.FilePath)
	}
	if !f.Validated {
		t.Error("discovered findings are model-confirmed by construction")
	}
}

func TestDiscoverFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *llm.MockClient)
	}{
		{"client error", func(m *llm.MockClient) { m.Err = errors.New("boom") }},
		{"malformed", func(m *llm.MockClient) { m.Queue("not json at all") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := llm.NewMockClient("garbage")
			tc.setup(mock)
			adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})
			if got := adapter.Discover(context.Background(), "code", "a.go", "go"); len(got) != 0 {
				t.Errorf("fail-closed discovery must return empty, got %d", len(got))
			}
		})
	}
}

func TestDiscoverDropsItemsWithoutLocation(t *testing.T) {
	mock := llm.NewMockClient(`[
		{"rule_id": "good", "severity": "high", "line": 2, "message": "m"},
		{"rule_id": "bad", "severity": "high", "message": "no line"}
	]`)
	adapter := NewAdapter(mock, Config{RequestsPerSecond: 1000})

	got := adapter.Discover(context.Background(), "code", "a.go", "go")
	if len(got) != 1 || got[0].RuleID != "good" {
		t.Fatalf("got %+v, want only the located finding", got)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		maxBytes int
	}{
		{name: "ascii", content: strings.Repeat("a", 100), maxBytes: 20},
		{name: "multibyte at cut", content: strings.Repeat("héllo wörld ", 20), maxBytes: 19},
		{name: "cjk comments", content: strings.Repeat("代码审查", 30), maxBytes: 15},
		{name: "emoji", content: strings.Repeat("x🔑", 40), maxBytes: 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.content, tt.maxBytes)
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got)
			}
			if got == tt.content {
				t.Fatalf("content over the limit was not truncated")
			}
		})
	}
}

func TestTruncateShortContentUnchanged(t *testing.T) {
	content := "short 代码"
	if got := truncate(content, 100); got != content {
		t.Fatalf("got %q, want unchanged content", got)
	}
}
