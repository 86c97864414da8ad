// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dedupe

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

func finding(path string, line int, rule string, sev datatypes.Severity, origin datatypes.Origin) datatypes.Finding {
	return datatypes.Finding{
		ID:          path + rule,
		RuleID:      rule,
		Severity:    sev,
		FilePath:    path,
		Line:        line,
		Description: "d",
		Origin:      origin,
	}
}

func TestDedupeCollapsesExactKey(t *testing.T) {
	in := []datatypes.Finding{
		finding("a.go", 10, "sql-injection", datatypes.SeverityHigh, datatypes.OriginStaticPattern),
		finding("a.go", 10, "sql-injection", datatypes.SeverityHigh, datatypes.OriginExternalLinter),
		finding("a.go", 11, "sql-injection", datatypes.SeverityHigh, datatypes.OriginStaticPattern),
	}
	out := Dedupe(in)
	if len(out) != 2 {
		t.Fatalf("got %d findings, want 2", len(out))
	}
	// The line-10 duplicate resolves to the linter finding on origin
	// priority; line 11 is a distinct key.
	if out[0].Origin != datatypes.OriginExternalLinter {
		t.Errorf("winner origin = %q, want external-linter", out[0].Origin)
	}
}

func TestDedupeHigherSeverityWins(t *testing.T) {
	in := []datatypes.Finding{
		finding("a.go", 5, "weak-crypto", datatypes.SeverityMedium, datatypes.OriginAIModel),
		finding("a.go", 5, "weak-crypto", datatypes.SeverityHigh, datatypes.OriginStaticPattern),
	}
	out := Dedupe(in)
	if len(out) != 1 {
		t.Fatalf("got %d findings, want 1", len(out))
	}
	if out[0].Severity != datatypes.SeverityHigh {
		t.Errorf("severity = %q, want high (severity beats origin)", out[0].Severity)
	}
}

func TestDedupeAIModelWinsSeverityTie(t *testing.T) {
	// Two critical findings at the same file/line/rule: the ai-model one
	// carries richer remediation and must win.
	static := finding("svc/handler.go", 33, "command-injection", datatypes.SeverityCritical, datatypes.OriginStaticPattern)
	ai := finding("svc/handler.go", 33, "command-injection", datatypes.SeverityCritical, datatypes.OriginAIModel)
	ai.Remediation = "use exec.Command with fixed argv"

	for _, order := range [][]datatypes.Finding{{static, ai}, {ai, static}} {
		out := Dedupe(order)
		if len(out) != 1 {
			t.Fatalf("got %d findings, want 1", len(out))
		}
		if out[0].Origin != datatypes.OriginAIModel {
			t.Errorf("winner origin = %q, want ai-model", out[0].Origin)
		}
	}
}

func TestDedupeFullTieKeepsFirstSeen(t *testing.T) {
	a := finding("a.go", 1, "r", datatypes.SeverityLow, datatypes.OriginStaticPattern)
	a.ID = "first"
	b := finding("a.go", 1, "r", datatypes.SeverityLow, datatypes.OriginStaticPattern)
	b.ID = "second"

	out := Dedupe([]datatypes.Finding{a, b})
	if len(out) != 1 || out[0].ID != "first" {
		t.Fatalf("want the first-seen finding to survive, got %+v", out)
	}
}

func TestDedupeOrderIndependence(t *testing.T) {
	base := []datatypes.Finding{
		finding("b.go", 2, "r1", datatypes.SeverityLow, datatypes.OriginStaticPattern),
		finding("a.go", 9, "r2", datatypes.SeverityHigh, datatypes.OriginExternalLinter),
		finding("a.go", 1, "r3", datatypes.SeverityMedium, datatypes.OriginAIModel),
		finding("a.go", 9, "r2", datatypes.SeverityCritical, datatypes.OriginStaticPattern),
		finding("c.go", 4, "r4", datatypes.SeverityLow, datatypes.OriginStaticPattern),
	}

	want := Dedupe(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := make([]datatypes.Finding, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Dedupe(shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: dedupe not order independent\n got: %+v\nwant: %+v", i, got, want)
		}
	}
}

func TestDedupeOutputSorted(t *testing.T) {
	in := []datatypes.Finding{
		finding("z.go", 1, "r", datatypes.SeverityLow, datatypes.OriginStaticPattern),
		finding("a.go", 20, "r", datatypes.SeverityLow, datatypes.OriginStaticPattern),
		finding("a.go", 3, "r", datatypes.SeverityLow, datatypes.OriginStaticPattern),
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("got %d findings, want 3", len(out))
	}
	if out[0].FilePath != "a.go" || out[0].Line != 3 {
		t.Errorf("first = %s:%d, want a.go:3", out[0].FilePath, out[0].Line)
	}
	if out[2].FilePath != "z.go" {
		t.Errorf("last = %s, want z.go", out[2].FilePath)
	}
}

func TestDedupeEmpty(t *testing.T) {
	if out := Dedupe(nil); out != nil {
		t.Errorf("Dedupe(nil) = %v, want nil", out)
	}
}
