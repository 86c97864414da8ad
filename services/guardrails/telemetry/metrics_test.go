// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordScan(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordScan(&datatypes.ScanResult{
		Verdict: datatypes.VerdictBlock,
		Findings: []datatypes.Finding{
			{Severity: datatypes.SeverityCritical, Origin: datatypes.OriginStaticPattern},
			{Severity: datatypes.SeverityHigh, Origin: datatypes.OriginAIModel},
			{Severity: datatypes.SeverityHigh, Origin: datatypes.OriginAIModel},
		},
		Failures:      []datatypes.DetectorFailure{{Detector: "entropy", Reason: "timeout"}},
		ValidationRan: true,
		Elapsed:       250 * time.Millisecond,
	})

	if got := testutil.ToFloat64(m.ScansTotal.WithLabelValues("block")); got != 1 {
		t.Errorf("scans_total{block} = %v", got)
	}
	if got := testutil.ToFloat64(m.FindingsTotal.WithLabelValues("high", "ai-model")); got != 2 {
		t.Errorf("findings_total{high,ai-model} = %v", got)
	}
	if got := testutil.ToFloat64(m.FindingsTotal.WithLabelValues("critical", "static-pattern")); got != 1 {
		t.Errorf("findings_total{critical,static-pattern} = %v", got)
	}
	if got := testutil.ToFloat64(m.DetectorFailuresTotal.WithLabelValues("entropy")); got != 1 {
		t.Errorf("detector_failures_total{entropy} = %v", got)
	}
	if got := testutil.ToFloat64(m.ValidationRunsTotal.WithLabelValues("ran")); got != 1 {
		t.Errorf("validation_runs_total{ran} = %v", got)
	}
}

func TestRecordScanValidationSkipped(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordScan(&datatypes.ScanResult{Verdict: datatypes.VerdictAccept})
	if got := testutil.ToFloat64(m.ValidationRunsTotal.WithLabelValues("skipped")); got != 1 {
		t.Errorf("validation_runs_total{skipped} = %v", got)
	}
}

func TestRecordOverride(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordOverride("override-approved")
	m.RecordOverride("override-approved")
	if got := testutil.ToFloat64(m.OverridesTotal.WithLabelValues("override-approved")); got != 2 {
		t.Errorf("overrides_total = %v", got)
	}
}

func TestScanStartedGauge(t *testing.T) {
	m := newTestMetrics(t)
	done := m.ScanStarted()
	if got := testutil.ToFloat64(m.ActiveScans); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.ActiveScans); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestNilMetricsNoops(t *testing.T) {
	var m *Metrics
	m.RecordScan(&datatypes.ScanResult{})
	m.RecordOverride("override-requested")
	m.ScanStarted()()
}
