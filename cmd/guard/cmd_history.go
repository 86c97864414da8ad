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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
)

// runHistory lists audit trail entries from the local store. It reads
// the same Badger directory the server writes, so it must not run
// against a live server's directory.
func runHistory(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	if auditDir == "" {
		return fmt.Errorf("--audit-dir is required: an in-memory trail has no history to read")
	}

	recorder, err := openAuditStore()
	if err != nil {
		return err
	}
	defer recorder.Close()

	entries, err := recorder.List(cmd.Context(), audit.Query{
		Scope: historyScope,
		Event: historyEvent,
		Limit: historyLimit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no audit entries")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tEVENT\tSCAN\tSCOPE\tVERDICT\tACTOR\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Event, e.ScanID, e.Scope, e.Verdict, e.Actor, e.Detail)
	}
	return w.Flush()
}

// runStats prints aggregate counts from the local audit store.
func runStats(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	if auditDir == "" {
		return fmt.Errorf("--audit-dir is required: an in-memory trail has no history to read")
	}

	recorder, err := openAuditStore()
	if err != nil {
		return err
	}
	defer recorder.Close()

	stats, err := recorder.Aggregate(cmd.Context(), historyScope)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scans:      %d\n", stats.TotalScans)
	fmt.Fprintf(out, "blocked:    %d\n", stats.Blocked)
	fmt.Fprintf(out, "overridden: %d\n", stats.Overridden)
	fmt.Fprintf(out, "findings:   %d\n", stats.TotalFindings)
	fmt.Fprintf(out, "critical:   %d\n", stats.Critical)
	fmt.Fprintf(out, "high:       %d\n", stats.High)
	fmt.Fprintf(out, "medium:     %d\n", stats.Medium)
	fmt.Fprintf(out, "low:        %d\n", stats.Low)
	return nil
}
