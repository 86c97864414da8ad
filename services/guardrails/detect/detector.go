// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect hosts the pluggable scanners that produce raw findings
// for the analysis pipeline. Detectors emit heterogeneous output; the
// normalize package turns it into the canonical finding shape.
package detect

import (
	"context"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
)

// Detector is one scanning engine plugged into the pipeline.
//
// # Description
//
//	A Detector inspects one submission and returns raw findings. It
//	must honor ctx cancellation: the orchestrator wraps every Scan call
//	in a per-detector timeout. A Scan error marks the detector failed
//	for that run without failing the run itself.
//
// # Thread Safety
//
//	Implementations must be safe for concurrent Scan calls.
type Detector interface {
	// Name identifies the detector in failure reports and metrics.
	Name() string

	// Origin reports which trust tier the detector's findings carry.
	Origin() datatypes.Origin

	// Scan analyzes a single submission.
	Scan(ctx context.Context, sub datatypes.Submission) ([]normalize.RawFinding, error)
}
