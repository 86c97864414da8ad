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
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

func TestDetectExcludesUncomputableSignals(t *testing.T) {
	// No metadata and tiny content: only boilerplate can compute.
	sub := &datatypes.Submission{Path: "a.go", Content: "package a"}
	res := NewDetector(Config{}).Detect(sub)

	if len(res.Signals) != 1 {
		t.Fatalf("got %d signals, want 1 (boilerplate only): %+v", len(res.Signals), res.Signals)
	}
	if res.Signals[0].Name != SignalBoilerplate {
		t.Errorf("signal = %q, want boilerplate", res.Signals[0].Name)
	}
	if res.UsableWeight != defaultWeights[SignalBoilerplate] {
		t.Errorf("usable weight = %v, want %v", res.UsableWeight, defaultWeights[SignalBoilerplate])
	}
	if res.Confidence != datatypes.FusionConfidenceLow {
		t.Errorf("confidence = %q, want low with this little weight", res.Confidence)
	}
}

func TestDetectZeroComputableSignals(t *testing.T) {
	sub := &datatypes.Submission{Path: "a.go"}
	res := NewDetector(Config{}).Detect(sub)
	if res.Probability != 0 || res.Confidence != datatypes.FusionConfidenceLow {
		t.Errorf("empty submission: got p=%v conf=%q, want 0/low", res.Probability, res.Confidence)
	}
	if len(res.Signals) != 0 {
		t.Errorf("no signals should compute, got %+v", res.Signals)
	}
}

func TestDetectWeightRenormalization(t *testing.T) {
	// Metadata-only submission: commit-metadata, velocity, and batch
	// signals compute; content signals do not. The fused probability
	// must equal the weighted mean over the computed subset with
	// weights summing to 1.
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	sub := &datatypes.Submission{
		Path: "gen.py",
		Metadata: &datatypes.SubmissionMetadata{
			CommitTimes:          []time.Time{base, base.Add(2 * time.Minute)},
			CommitMessages:       []string{"Add feature\n\nCo-Authored-By: Copilot <copilot@github.com>"},
			FilesCreatedInCommit: 8,
			LinesChangedInCommit: 500,
		},
	}
	res := NewDetector(Config{}).Detect(sub)

	if len(res.Signals) != 3 {
		t.Fatalf("got %d signals, want 3: %+v", len(res.Signals), res.Signals)
	}

	var totalWeight, mean float64
	for _, s := range res.Signals {
		totalWeight += s.Weight
	}
	for _, s := range res.Signals {
		mean += (s.Weight / totalWeight) * s.Strength
	}
	if math.Abs(res.Probability-mean) > 1e-9 {
		t.Errorf("probability %v != renormalized weighted mean %v", res.Probability, mean)
	}
	if math.Abs(res.UsableWeight-totalWeight) > 1e-9 {
		t.Errorf("usable weight %v != sum of computed weights %v", res.UsableWeight, totalWeight)
	}
}

func TestDetectHighConfidenceOnClearSignal(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	sub := &datatypes.Submission{
		Path: "gen.py",
		Metadata: &datatypes.SubmissionMetadata{
			CommitTimes:          []time.Time{base, base.Add(time.Minute)},
			CommitMessages:       []string{"🤖 Generated with assistant"},
			FilesCreatedInCommit: 12,
			LinesChangedInCommit: 900,
		},
	}
	res := NewDetector(Config{}).Detect(sub)

	if res.Probability < 0.75 {
		t.Fatalf("expected a clear high probability, got %v", res.Probability)
	}
	if res.Confidence != datatypes.FusionConfidenceHigh {
		t.Errorf("confidence = %q, want high (usable weight %v)", res.Confidence, res.UsableWeight)
	}
	if !res.AIAuthored() {
		t.Error("AIAuthored() should be true above 0.5")
	}
}

func TestDetectLowConfidenceInAmbiguousBand(t *testing.T) {
	// Force a mid-band probability via custom weights on two signals
	// with opposite strengths.
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	sub := &datatypes.Submission{
		Path: "a.py",
		Metadata: &datatypes.SubmissionMetadata{
			// Velocity saturated, metadata clean: fused lands mid-band.
			CommitTimes:          []time.Time{base, base.Add(time.Minute)},
			CommitMessages:       []string{"fix typo"},
			LinesChangedInCommit: 500,
		},
	}
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{
		SignalCommitMetadata: 0.5,
		SignalCommitVelocity: 0.5,
		SignalBatchCreation:  0,
		SignalBoilerplate:    0,
		SignalCommentStyle:   0,
	}
	res := NewDetector(cfg).Detect(sub)

	if res.Probability < 0.4 || res.Probability > 0.6 {
		t.Fatalf("expected ambiguous-band probability, got %v", res.Probability)
	}
	if res.Confidence != datatypes.FusionConfidenceLow {
		t.Errorf("confidence = %q, want low in the ambiguous band", res.Confidence)
	}
}

func TestCommitVelocitySignal(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		md       *datatypes.SubmissionMetadata
		wantOK   bool
		wantFull bool
	}{
		{"no metadata", nil, false, false},
		{"single commit", &datatypes.SubmissionMetadata{
			CommitTimes: []time.Time{base}, LinesChangedInCommit: 100,
		}, false, false},
		{"zero elapsed", &datatypes.SubmissionMetadata{
			CommitTimes: []time.Time{base, base}, LinesChangedInCommit: 10,
		}, true, true},
		{"slow human pace", &datatypes.SubmissionMetadata{
			CommitTimes: []time.Time{base, base.Add(2 * time.Hour)}, LinesChangedInCommit: 60,
		}, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			strength, _, ok := commitVelocitySignal(&datatypes.Submission{Metadata: tc.md})
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if tc.wantFull && strength != 1 {
				t.Errorf("strength = %v, want 1", strength)
			}
			if tc.name == "slow human pace" && strength > 0.1 {
				t.Errorf("strength = %v, want near zero for human pace", strength)
			}
		})
	}
}

func TestCommitMetadataSignalNoMarkers(t *testing.T) {
	sub := &datatypes.Submission{Metadata: &datatypes.SubmissionMetadata{
		CommitMessages: []string{"fix bug", "refactor tests"},
	}}
	strength, _, ok := commitMetadataSignal(sub)
	if !ok {
		t.Fatal("signal should compute when messages exist")
	}
	if strength != 0 {
		t.Errorf("strength = %v, want 0 for clean messages", strength)
	}
}
