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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all guardrails routes with the router.
//
// Description:
//
//	Registers all /v1/guard/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/guard/analyze - Run the analysis pipeline over submissions
//	POST /v1/guard/overrides - Request an override for a blocked scan
//	POST /v1/guard/overrides/:id/resolve - Approve or reject an override
//	GET  /v1/guard/history - Query the audit trail
//	GET  /v1/guard/stats - Aggregate audit statistics
//	GET  /v1/guard/health - Health check
//	GET  /v1/guard/ready - Readiness check
//
// Example:
//
//	svc := guardrails.NewService(orch, overrides, recorder, metrics, logger)
//	handlers := guardrails.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	guardrails.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	guard := rg.Group("/guard")
	{
		// Analysis
		guard.POST("/analyze", handlers.HandleAnalyze)

		// Override workflow
		guard.POST("/overrides", handlers.HandleRequestOverride)
		guard.POST("/overrides/:id/resolve", handlers.HandleResolveOverride)

		// Audit trail
		guard.GET("/history", handlers.HandleHistory)
		guard.GET("/stats", handlers.HandleStats)

		// Health checks
		guard.GET("/health", handlers.HandleHealth)
		guard.GET("/ready", handlers.HandleReady)
	}
}
