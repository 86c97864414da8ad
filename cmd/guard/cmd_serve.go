// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/logging"
	"github.com/AleutianAI/AleutianGuard/services/guardrails"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/aivalidate"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/fusion"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/override"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/pipeline"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/telemetry"
	"github.com/AleutianAI/AleutianGuard/services/llm"
)

// runServe starts the guardrails HTTP service.
//
// # Description
//
//	Wires the detector set, optional AI validation, signal fusion,
//	policy store, audit trail, and metrics into one HTTP server.
//	Shuts down gracefully on SIGINT/SIGTERM, flushing the audit store
//	before exit.
func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger("guard-serve")
	defer logger.Close()

	svc, recorder, err := buildService(logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	if verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if verbose {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	guardrails.RegisterRoutes(v1, guardrails.NewHandlers(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting guardrails server", "address", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down guardrails server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildService assembles the full service from the global flags. The
// returned recorder must be closed by the caller.
func buildService(logger *logging.Logger) (*guardrails.Service, *audit.Recorder, error) {
	policies, err := openPolicyStore()
	if err != nil {
		return nil, nil, err
	}

	recorder, err := openAuditStore()
	if err != nil {
		return nil, nil, err
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	comps := pipeline.Components{
		Detectors: buildDetectors(logger),
		Fusion:    fusion.NewDetector(fusion.DefaultConfig()),
		Policies:  policies,
		Trail:     recorder,
		Metrics:   metrics,
		Logger:    logger,
	}

	if enableAI {
		client, err := llm.NewOpenAIClient()
		if err != nil {
			logger.Warn("AI validation unavailable, findings pass through unvalidated", "error", err)
		} else {
			comps.Validator = aivalidate.NewAdapter(client, aivalidate.DefaultConfig())
			logger.Info("AI validation enabled")
		}
	}

	orch := pipeline.New(pipeline.DefaultConfig(), comps)
	overrides := override.NewManager(policies, recorder)
	svc := guardrails.NewService(orch, overrides, recorder, metrics, logger)
	return svc, recorder, nil
}
