// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy turns findings into an accept/block decision.
//
// The decision engine is a pure function over (findings, policy, fusion
// result). It never performs I/O and never mutates its inputs; escalated
// findings are copies.
package policy

import (
	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// Decision is the engine output: the escalated findings (input order
// preserved), their partition, the verdict, and the enforcement mode
// actually applied after AI strictness.
type Decision struct {
	Findings      []datatypes.Finding
	Partition     datatypes.FindingPartition
	Verdict       datatypes.Verdict
	EffectiveMode datatypes.EnforcementMode
}

// PartitionFor maps (mode, severity) to a partition bucket.
//
// The mapping is total: every defined severity/mode pair resolves, and
// undefined inputs resolve as if the mode were blocking (fail-safe).
//
//	mode      | critical/high | medium   | low
//	advisory  | advisory      | advisory | advisory
//	warning   | warning       | advisory | advisory
//	blocking  | blocking      | warning  | advisory
func PartitionFor(mode datatypes.EnforcementMode, severity datatypes.Severity) datatypes.Partition {
	if !mode.Valid() {
		mode = datatypes.ModeBlocking
	}
	switch mode {
	case datatypes.ModeAdvisory:
		return datatypes.PartitionAdvisory
	case datatypes.ModeWarning:
		if severity == datatypes.SeverityCritical || severity == datatypes.SeverityHigh {
			return datatypes.PartitionWarning
		}
		return datatypes.PartitionAdvisory
	default: // blocking
		switch severity {
		case datatypes.SeverityCritical, datatypes.SeverityHigh:
			return datatypes.PartitionBlocking
		case datatypes.SeverityMedium:
			return datatypes.PartitionWarning
		default:
			return datatypes.PartitionAdvisory
		}
	}
}

// Decide partitions findings and produces the verdict.
//
// # Description
//
// Steps, in order:
//
//  1. Resolve the enforcement mode. An invalid mode resolves to
//     blocking. When the policy enables StrictAIMode and the submission
//     is AI-authored (fused probability above 0.5, or the caller's
//     authorship hint), the mode tightens one step.
//  2. Apply signal-fusion escalation: with fused probability above 0.5,
//     medium and low findings are escalated one severity step. Findings
//     whose severity the policy explicitly pins to the advisory
//     partition are exempt. Escalation works on copies.
//  3. Partition each finding: an explicit severity override in the
//     policy wins, otherwise the mode mapping table applies.
//  4. Verdict is block iff the blocking partition is non-empty.
//
// Running Decide twice on identical inputs yields identical output.
//
// # Inputs
//
//   - findings: Deduplicated findings. Never mutated.
//   - pol: The enforcement policy. Never mutated.
//   - fusion: Signal fusion result for the findings' submission; nil
//     when unavailable.
//   - suspectedAI: The caller's externally supplied authorship hint.
//
// # Outputs
//
//   - Decision: Partition and verdict. Findings preserve input order.
func Decide(
	findings []datatypes.Finding,
	pol *datatypes.Policy,
	fusion *datatypes.SignalFusionResult,
	suspectedAI bool,
) Decision {
	mode := datatypes.ModeBlocking
	if pol != nil && pol.Mode.Valid() {
		mode = pol.Mode
	}

	aiAuthored := suspectedAI || fusion.AIAuthored()
	if pol != nil && pol.StrictAIMode && aiAuthored {
		mode = mode.Tighten()
	}

	decision := Decision{
		Findings:      make([]datatypes.Finding, 0, len(findings)),
		Verdict:       datatypes.VerdictAccept,
		EffectiveMode: mode,
	}

	for _, f := range findings {
		placed := f
		if fusion.AIAuthored() && escalatable(placed, pol) {
			placed.Severity = placed.Severity.Escalate()
		}
		decision.Findings = append(decision.Findings, placed)

		bucket := PartitionFor(mode, placed.Severity)
		if pol != nil {
			if override, ok := pol.SeverityOverrides[placed.Severity]; ok {
				bucket = override
			}
		}
		switch bucket {
		case datatypes.PartitionBlocking:
			decision.Partition.Blocking = append(decision.Partition.Blocking, placed)
		case datatypes.PartitionWarning:
			decision.Partition.Warning = append(decision.Partition.Warning, placed)
		default:
			decision.Partition.Advisory = append(decision.Partition.Advisory, placed)
		}
	}

	if len(decision.Partition.Blocking) > 0 {
		decision.Verdict = datatypes.VerdictBlock
	}
	return decision
}

// escalatable reports whether a finding is subject to fusion
// escalation: only medium and low severities move, and severities the
// policy pins to the advisory partition are exempt.
func escalatable(f datatypes.Finding, pol *datatypes.Policy) bool {
	if f.Severity != datatypes.SeverityMedium && f.Severity != datatypes.SeverityLow {
		return false
	}
	if pol != nil && pol.SeverityOverrides[f.Severity] == datatypes.PartitionAdvisory {
		return false
	}
	return true
}
