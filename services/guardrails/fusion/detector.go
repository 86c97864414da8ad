// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fusion estimates the probability that a submission was
// AI-authored by combining several weakly-correlated signals.
//
// Each signal yields a strength in [0,1] and carries a fixed weight
// reflecting its historical reliability. A signal that cannot be
// computed for a submission is excluded and the remaining weights are
// renormalized; absence of evidence is not evidence of absence.
//
// The fused probability is strictly an amplifier for the decision
// engine. It never blocks a submission on its own.
package fusion

import (
	"sort"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// Config holds the signal weights and confidence thresholds. The
// defaults are working constants, not calibrated ground truth; treat
// them as tunable.
type Config struct {
	// Weights per signal name. Missing names fall back to defaults.
	Weights map[string]float64

	// MinStrength is the threshold above which a signal counts as
	// "fired" for confidence purposes. Default 0.2.
	MinStrength float64

	// ClearHigh and ClearLow bound the clear-signal band for high
	// confidence. Defaults 0.75 and 0.25.
	ClearHigh float64
	ClearLow  float64

	// AmbiguousLow and AmbiguousHigh bound the ambiguous band that
	// forces low confidence. Defaults 0.4 and 0.6.
	AmbiguousLow  float64
	AmbiguousHigh float64

	// MinUsableWeight below which confidence is low. Default 0.35.
	MinUsableWeight float64
}

// Signal names. The commit-metadata signal is weighted highest;
// stylistic signals lowest.
const (
	SignalCommitMetadata = "commit-metadata"
	SignalCommitVelocity = "commit-velocity"
	SignalBatchCreation  = "batch-creation"
	SignalBoilerplate    = "boilerplate"
	SignalCommentStyle   = "comment-style"
)

var defaultWeights = map[string]float64{
	SignalCommitMetadata: 0.30,
	SignalCommitVelocity: 0.25,
	SignalBatchCreation:  0.20,
	SignalBoilerplate:    0.15,
	SignalCommentStyle:   0.10,
}

// DefaultConfig returns the working constants.
func DefaultConfig() Config {
	return Config{
		Weights:         defaultWeights,
		MinStrength:     0.2,
		ClearHigh:       0.75,
		ClearLow:        0.25,
		AmbiguousLow:    0.4,
		AmbiguousHigh:   0.6,
		MinUsableWeight: 0.35,
	}
}

// computer is one signal implementation. ok is false when the signal
// cannot be computed for this submission.
type computer func(sub *datatypes.Submission) (strength float64, rationale string, ok bool)

// Detector computes SignalFusionResults.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Detector struct {
	cfg       Config
	computers map[string]computer
}

// NewDetector creates a Detector. Zero-valued Config fields fall back
// to DefaultConfig values.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Weights == nil {
		cfg.Weights = def.Weights
	}
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = def.MinStrength
	}
	if cfg.ClearHigh <= 0 {
		cfg.ClearHigh = def.ClearHigh
	}
	if cfg.ClearLow <= 0 {
		cfg.ClearLow = def.ClearLow
	}
	if cfg.AmbiguousLow <= 0 {
		cfg.AmbiguousLow = def.AmbiguousLow
	}
	if cfg.AmbiguousHigh <= 0 {
		cfg.AmbiguousHigh = def.AmbiguousHigh
	}
	if cfg.MinUsableWeight <= 0 {
		cfg.MinUsableWeight = def.MinUsableWeight
	}
	return &Detector{
		cfg: cfg,
		computers: map[string]computer{
			SignalCommitMetadata: commitMetadataSignal,
			SignalCommitVelocity: commitVelocitySignal,
			SignalBatchCreation:  batchCreationSignal,
			SignalBoilerplate:    boilerplateSignal,
			SignalCommentStyle:   commentStyleSignal,
		},
	}
}

// Detect fuses all computable signals for one submission.
//
// # Description
//
// Runs every signal, excludes the ones that cannot be computed, and
// takes the weighted arithmetic mean of the rest with weights
// renormalized to sum to 1 over the computed subset. The confidence
// label follows from how much weight was usable, how many signals
// fired, and whether the probability is clear or ambiguous.
//
// # Inputs
//
//   - sub: The submission with optional metadata.
//
// # Outputs
//
//   - *datatypes.SignalFusionResult: Never nil. With zero computable
//     signals the probability is 0 and confidence low.
func (d *Detector) Detect(sub *datatypes.Submission) *datatypes.SignalFusionResult {
	names := make([]string, 0, len(d.computers))
	for name := range d.computers {
		names = append(names, name)
	}
	sort.Strings(names)

	var signals []datatypes.FusionSignal
	usableWeight := 0.0
	for _, name := range names {
		strength, rationale, ok := d.computers[name](sub)
		if !ok {
			continue
		}
		weight := d.weight(name)
		signals = append(signals, datatypes.FusionSignal{
			Name:      name,
			Weight:    weight,
			Strength:  strength,
			Rationale: rationale,
		})
		usableWeight += weight
	}

	result := &datatypes.SignalFusionResult{
		Signals:      signals,
		UsableWeight: usableWeight,
		Confidence:   datatypes.FusionConfidenceLow,
	}
	if usableWeight == 0 {
		return result
	}

	weighted := 0.0
	fired := 0
	for _, s := range signals {
		weighted += (s.Weight / usableWeight) * s.Strength
		if s.Strength >= d.cfg.MinStrength {
			fired++
		}
	}
	result.Probability = weighted
	result.Confidence = d.confidence(weighted, usableWeight, fired)
	return result
}

func (d *Detector) weight(name string) float64 {
	if w, ok := d.cfg.Weights[name]; ok {
		return w
	}
	return defaultWeights[name]
}

// confidence derives the label from usable weight, fired-signal count,
// and how clear the fused probability is.
func (d *Detector) confidence(p, usableWeight float64, fired int) datatypes.FusionConfidence {
	ambiguous := p >= d.cfg.AmbiguousLow && p <= d.cfg.AmbiguousHigh
	if usableWeight < d.cfg.MinUsableWeight || ambiguous {
		return datatypes.FusionConfidenceLow
	}
	clear := p >= d.cfg.ClearHigh || p <= d.cfg.ClearLow
	if usableWeight >= 0.5 && clear && fired >= 2 {
		return datatypes.FusionConfidenceHigh
	}
	return datatypes.FusionConfidenceMedium
}
