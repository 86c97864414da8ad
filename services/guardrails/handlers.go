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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/override"
)

// Handlers exposes the Service over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleAnalyze handles POST /v1/guard/analyze.
//
// Description:
//
//	Runs the full analysis pipeline over the submitted files and
//	returns the scan result with its verdict. Detector failures are
//	reported inside the result, not as HTTP errors.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Audit persistence failure
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.svc.Analyze(c.Request.Context(), req.Scope, req.Submissions)
	if err != nil {
		logger.Error("Scan completed but audit persistence failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Audit persistence failed",
			Code:    "AUDIT_UNAVAILABLE",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		ScanResult:       result,
		EffectiveVerdict: h.svc.EffectiveVerdict(result),
	})
}

// HandleRequestOverride handles POST /v1/guard/overrides.
//
// Response:
//
//	200 OK: OverrideResponse (state requested)
//	400 Bad Request: Validation error
//	404 Not Found: Unknown scan
//	409 Conflict: Scan did not block
//	403 Forbidden: Scope policy forbids overrides
func (h *Handlers) HandleRequestOverride(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRequestOverride")

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	rec, err := h.svc.RequestOverride(c.Request.Context(), req.ScanID, req.Requester, req.Justification)
	if err != nil {
		status, code := overrideErrorStatus(err)
		logger.Warn("Override request rejected", "scan_id", req.ScanID, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	scan, _ := h.svc.Scan(req.ScanID)
	c.JSON(http.StatusOK, OverrideResponse{
		Record:           rec,
		EffectiveVerdict: h.svc.EffectiveVerdict(scan),
	})
}

// HandleResolveOverride handles POST /v1/guard/overrides/:id/resolve.
//
// Response:
//
//	200 OK: OverrideResponse (terminal state)
//	400 Bad Request: Validation error
//	403 Forbidden: Resolver not in the approver list
//	404 Not Found: Unknown record
//	409 Conflict: Record already resolved
func (h *Handlers) HandleResolveOverride(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleResolveOverride")

	recordID := c.Param("id")
	var req OverrideResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	rec, err := h.svc.ResolveOverride(c.Request.Context(), recordID, req.Resolver, *req.Approve)
	if err != nil {
		status, code := overrideErrorStatus(err)
		logger.Warn("Override resolution rejected", "record_id", recordID, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	scan, scanErr := h.svc.Scan(rec.ScanID)
	resp := OverrideResponse{Record: rec}
	if scanErr == nil {
		resp.EffectiveVerdict = h.svc.EffectiveVerdict(scan)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHistory handles GET /v1/guard/history.
//
// Query Parameters:
//
//	scope    - filter by policy scope
//	scan_id  - filter by scan
//	event    - filter by event name
//	since    - RFC 3339 lower bound (inclusive)
//	until    - RFC 3339 upper bound (exclusive)
//	limit    - maximum entries returned
func (h *Handlers) HandleHistory(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleHistory")

	q := audit.Query{
		Scope:  c.Query("scope"),
		ScanID: c.Query("scan_id"),
		Event:  c.Query("event"),
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid since timestamp", Code: "INVALID_REQUEST"})
			return
		}
		q.Since = ts
	}
	if v := c.Query("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid until timestamp", Code: "INVALID_REQUEST"})
			return
		}
		q.Until = ts
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Code: "INVALID_REQUEST"})
			return
		}
		q.Limit = n
	}

	entries, err := h.svc.History(c.Request.Context(), q)
	if err != nil {
		logger.Error("History query failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Audit trail unavailable",
			Code:  "AUDIT_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// HandleStats handles GET /v1/guard/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStats")

	stats, err := h.svc.Stats(c.Request.Context(), c.Query("scope"))
	if err != nil {
		logger.Error("Stats aggregation failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Audit trail unavailable",
			Code:  "AUDIT_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleHealth handles GET /v1/guard/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "guardrails",
		Time:    time.Now().UTC(),
	})
}

// HandleReady handles GET /v1/guard/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Pipeline not configured",
			Code:  "NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: "guardrails",
		Time:    time.Now().UTC(),
	})
}

// overrideErrorStatus maps workflow errors onto HTTP status codes.
func overrideErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrScanNotFound), errors.Is(err, override.ErrNotFound), errors.Is(err, override.ErrScanNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, override.ErrNotAuthorized):
		return http.StatusForbidden, "NOT_AUTHORIZED"
	case errors.Is(err, override.ErrOverridesDisabled):
		return http.StatusForbidden, "OVERRIDES_DISABLED"
	case errors.Is(err, override.ErrNotBlocked), errors.Is(err, override.ErrTerminal):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
