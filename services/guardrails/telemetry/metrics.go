// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides Prometheus metrics for the analysis
// pipeline: scan counters by verdict, finding counters by severity and
// origin, detector failure counters, and latency histograms.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

const (
	metricsNamespace = "aleutian_guard"
	scanSubsystem    = "scan"
)

// Metrics holds all Prometheus instruments for the pipeline.
//
// Initialize once at startup via NewMetrics; pass nil to use the
// default registerer.
type Metrics struct {
	// ScansTotal counts completed scans.
	// Labels: verdict (accept, block, accept-with-override)
	ScansTotal *prometheus.CounterVec

	// FindingsTotal counts deduplicated findings.
	// Labels: severity, origin
	FindingsTotal *prometheus.CounterVec

	// DetectorFailuresTotal counts non-fatal detector failures.
	// Labels: detector
	DetectorFailuresTotal *prometheus.CounterVec

	// ValidationRunsTotal counts AI validation attempts.
	// Labels: outcome (ran, skipped)
	ValidationRunsTotal *prometheus.CounterVec

	// OverridesTotal counts override workflow transitions.
	// Labels: event (requested, approved, rejected, denied)
	OverridesTotal *prometheus.CounterVec

	// ScanDurationSeconds measures end-to-end scan latency.
	// Labels: verdict
	ScanDurationSeconds *prometheus.HistogramVec

	// ActiveScans tracks scans currently in flight.
	ActiveScans prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics.
//
// # Inputs
//
//   - reg: Target registry. nil uses prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics on duplicate registration; call once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "scans_total",
				Help:      "Total completed scans by verdict",
			},
			[]string{"verdict"},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "findings_total",
				Help:      "Total deduplicated findings by severity and origin",
			},
			[]string{"severity", "origin"},
		),
		DetectorFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "detector_failures_total",
				Help:      "Total non-fatal detector failures by detector",
			},
			[]string{"detector"},
		),
		ValidationRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "validation_runs_total",
				Help:      "AI validation attempts by outcome",
			},
			[]string{"outcome"},
		),
		OverridesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "overrides_total",
				Help:      "Override workflow transitions by event",
			},
			[]string{"event"},
		),
		ScanDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end scan latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"verdict"},
		),
		ActiveScans: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: scanSubsystem,
				Name:      "active",
				Help:      "Scans currently in flight",
			},
		),
	}
}

// RecordScan records a completed scan: its verdict, latency, finding
// mix, validation outcome, and detector failures.
func (m *Metrics) RecordScan(result *datatypes.ScanResult) {
	if m == nil || result == nil {
		return
	}
	verdict := string(result.Verdict)
	m.ScansTotal.WithLabelValues(verdict).Inc()
	m.ScanDurationSeconds.WithLabelValues(verdict).Observe(result.Elapsed.Seconds())
	for _, f := range result.Findings {
		m.FindingsTotal.WithLabelValues(string(f.Severity), string(f.Origin)).Inc()
	}
	for _, fail := range result.Failures {
		m.DetectorFailuresTotal.WithLabelValues(fail.Detector).Inc()
	}
	outcome := "skipped"
	if result.ValidationRan {
		outcome = "ran"
	}
	m.ValidationRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordOverride records one override workflow transition.
func (m *Metrics) RecordOverride(event string) {
	if m == nil {
		return
	}
	m.OverridesTotal.WithLabelValues(event).Inc()
}

// ScanStarted increments the in-flight gauge and returns a done func
// that decrements it.
func (m *Metrics) ScanStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveScans.Inc()
	return func() { m.ActiveScans.Dec() }
}
