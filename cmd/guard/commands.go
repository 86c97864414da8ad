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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	policyFile string
	auditDir   string
	logDir     string
	verbose    bool

	// serve
	listenAddr string
	enableAI   bool

	// scan
	scanScope      string
	scanJSON       bool
	scanAIAuthored bool

	// history
	historyScope string
	historyEvent string
	historyLimit int

	// override
	serverURL    string
	overrideUser string
	overrideNote string

	rootCmd = &cobra.Command{
		Use:   "guard",
		Short: "Code analysis guardrails: scan submissions, enforce policy, audit decisions",
		Long: `guard runs heterogeneous security detectors over code submissions,
validates candidate findings, applies per-scope enforcement policy,
and records every decision in an append-only audit trail.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the guardrails HTTP service",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	scanCmd = &cobra.Command{
		Use:   "scan [path...]",
		Short: "Analyze local files and print the verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScan, // Defined in cmd_scan.go
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the audit trail from a local audit store",
		RunE:  runHistory, // Defined in cmd_history.go
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Aggregate audit statistics from a local audit store",
		RunE:  runStats, // Defined in cmd_history.go
	}

	overrideCmd = &cobra.Command{
		Use:   "override",
		Short: "Manage overrides for blocked scans against a running service",
	}

	overrideRequestCmd = &cobra.Command{
		Use:   "request [scan-id]",
		Short: "Request an override for a blocked scan",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverrideRequest, // Defined in cmd_override.go
	}

	overrideApproveCmd = &cobra.Command{
		Use:   "approve [record-id]",
		Short: "Approve a pending override request",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverrideResolve(true), // Defined in cmd_override.go
	}

	overrideRejectCmd = &cobra.Command{
		Use:   "reject [record-id]",
		Short: "Reject a pending override request",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverrideResolve(false), // Defined in cmd_override.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&policyFile, "policies", "", "YAML policy file (default: blocking mode for every scope)")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", "", "BadgerDB audit store directory (default: in-memory)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (default: stderr only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8086", "HTTP listen address")
	serveCmd.Flags().BoolVar(&enableAI, "ai", false, "enable AI validation and discovery (requires API key)")

	scanCmd.Flags().StringVar(&scanScope, "scope", "local", "policy scope for the scan")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "emit the raw scan result as JSON")
	scanCmd.Flags().BoolVar(&scanAIAuthored, "ai-authored", false, "mark submissions as AI-authored")

	historyCmd.Flags().StringVar(&historyScope, "scope", "", "filter by scope")
	historyCmd.Flags().StringVar(&historyEvent, "event", "", "filter by event")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum entries")
	statsCmd.Flags().StringVar(&historyScope, "scope", "", "filter by scope")

	overrideCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8086", "guardrails service base URL")
	overrideCmd.PersistentFlags().StringVar(&overrideUser, "as", "", "acting identity (required)")
	overrideRequestCmd.Flags().StringVar(&overrideNote, "justification", "", "justification text (required)")

	overrideCmd.AddCommand(overrideRequestCmd, overrideApproveCmd, overrideRejectCmd)
	rootCmd.AddCommand(serveCmd, scanCmd, historyCmd, statsCmd, overrideCmd)
}
