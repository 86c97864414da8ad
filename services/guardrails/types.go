// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrails

import (
	"time"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// AnalyzeRequest is the request body for POST /v1/guard/analyze.
type AnalyzeRequest struct {
	// Scope is the policy ownership scope, typically a repository name.
	Scope string `json:"scope" binding:"required"`

	// Submissions are the files to analyze.
	Submissions []datatypes.Submission `json:"submissions" binding:"required,min=1,dive"`
}

// AnalyzeResponse wraps the scan result with its override-adjusted
// verdict.
type AnalyzeResponse struct {
	*datatypes.ScanResult

	// EffectiveVerdict equals Verdict unless an approved override for
	// this exact scan exists.
	EffectiveVerdict datatypes.Verdict `json:"effective_verdict"`
}

// OverrideRequest is the request body for POST /v1/guard/overrides.
type OverrideRequest struct {
	ScanID        string `json:"scan_id" binding:"required"`
	Requester     string `json:"requester" binding:"required"`
	Justification string `json:"justification" binding:"required"`
}

// OverrideResolveRequest is the request body for
// POST /v1/guard/overrides/:id/resolve.
type OverrideResolveRequest struct {
	Resolver string `json:"resolver" binding:"required"`
	Approve  *bool  `json:"approve" binding:"required"`
}

// OverrideResponse returns the override record plus the scan's verdict
// after the transition.
type OverrideResponse struct {
	Record           datatypes.OverrideRecord `json:"record"`
	EffectiveVerdict datatypes.Verdict        `json:"effective_verdict"`
}

// HistoryResponse is the response body for GET /v1/guard/history.
type HistoryResponse struct {
	Entries []datatypes.AuditEntry `json:"entries"`
	Count   int                    `json:"count"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
