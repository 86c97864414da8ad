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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/fusion"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/pipeline"
)

var errBlocked = errors.New("scan blocked")

// runScan analyzes local files without a running server. The process
// exits non-zero on a block verdict so CI jobs can gate on it.
func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	logger := newLogger("guard-scan")
	defer logger.Close()

	subs, err := loadSubmissions(args)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return fmt.Errorf("no readable files under %s", strings.Join(args, ", "))
	}

	policies, err := openPolicyStore()
	if err != nil {
		return err
	}
	recorder, err := openAuditStore()
	if err != nil {
		return err
	}
	defer recorder.Close()

	orch := pipeline.New(pipeline.DefaultConfig(), pipeline.Components{
		Detectors: buildDetectors(logger),
		Fusion:    fusion.NewDetector(fusion.DefaultConfig()),
		Policies:  policies,
		Trail:     recorder,
		Logger:    logger,
	})

	result, err := orch.Analyze(cmd.Context(), scanScope, subs)
	if err != nil {
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printScanResult(cmd, result)
	}

	if result.Blocked() {
		cmd.SilenceErrors = true
		return errBlocked
	}
	return nil
}

// loadSubmissions reads each argument, descending into directories.
// Unreadable entries are skipped with a notice on stderr.
func loadSubmissions(args []string) ([]datatypes.Submission, error) {
	var subs []datatypes.Submission
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if sub, ok := readSubmission(arg); ok {
				subs = append(subs, sub)
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if sub, ok := readSubmission(path); ok {
				subs = append(subs, sub)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func readSubmission(path string) (datatypes.Submission, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
		return datatypes.Submission{}, false
	}
	return datatypes.Submission{
		Path:                path,
		Content:             string(data),
		Language:            languageForPath(path),
		SuspectedAIAuthored: scanAIAuthored,
	}, true
}

func languageForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".sh", ".bash":
		return "shell"
	default:
		return ""
	}
}

func printScanResult(cmd *cobra.Command, result *datatypes.ScanResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scan %s  scope=%s  verdict=%s  findings=%d  elapsed=%s\n",
		result.ScanID, result.Scope, result.Verdict, len(result.Findings), result.Elapsed.Round(time.Millisecond))
	if len(result.Failures) > 0 {
		for _, f := range result.Failures {
			fmt.Fprintf(out, "detector %s failed: %s\n", f.Detector, f.Reason)
		}
	}
	if len(result.Findings) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tRULE\tLOCATION\tORIGIN\tDESCRIPTION")
	for _, f := range result.Findings {
		loc := f.FilePath
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Severity, f.RuleID, loc, f.Origin, f.Description)
	}
	w.Flush()
	fmt.Fprintf(out, "blocking=%d warning=%d advisory=%d\n",
		len(result.Partition.Blocking), len(result.Partition.Warning), len(result.Partition.Advisory))
}
