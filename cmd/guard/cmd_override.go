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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/services/guardrails"
)

var overrideHTTP = &http.Client{Timeout: 10 * time.Second}

// runOverrideRequest asks a running service to open an override for a
// blocked scan.
func runOverrideRequest(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if overrideUser == "" {
		return fmt.Errorf("--as is required")
	}
	if overrideNote == "" {
		return fmt.Errorf("--justification is required")
	}

	var resp guardrails.OverrideResponse
	err := postJSON(cmd, "/v1/guard/overrides", guardrails.OverrideRequest{
		ScanID:        args[0],
		Requester:     overrideUser,
		Justification: overrideNote,
	}, &resp)
	if err != nil {
		return err
	}
	printOverride(cmd, resp)
	return nil
}

// runOverrideResolve returns the approve or reject runner. Both hit the
// same resolve endpoint; only the decision differs.
func runOverrideResolve(approve bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if overrideUser == "" {
			return fmt.Errorf("--as is required")
		}

		var resp guardrails.OverrideResponse
		path := fmt.Sprintf("/v1/guard/overrides/%s/resolve", args[0])
		err := postJSON(cmd, path, guardrails.OverrideResolveRequest{
			Resolver: overrideUser,
			Approve:  &approve,
		}, &resp)
		if err != nil {
			return err
		}
		printOverride(cmd, resp)
		return nil
	}
}

// postJSON posts a request body to the service and decodes the reply
// into out. Non-2xx replies are surfaced as errors carrying the
// service's error code.
func postJSON(cmd *cobra.Command, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := overrideHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var svcErr guardrails.ErrorResponse
		if json.Unmarshal(data, &svcErr) == nil && svcErr.Error != "" {
			return fmt.Errorf("%s (%s)", svcErr.Error, svcErr.Code)
		}
		return fmt.Errorf("service returned %s", resp.Status)
	}
	return json.Unmarshal(data, out)
}

func printOverride(cmd *cobra.Command, resp guardrails.OverrideResponse) {
	out := cmd.OutOrStdout()
	rec := resp.Record
	fmt.Fprintf(out, "override %s  scan=%s  state=%s\n", rec.ID, rec.ScanID, rec.State)
	fmt.Fprintf(out, "requested by %s: %s\n", rec.Requester, rec.Justification)
	if rec.Resolver != "" {
		fmt.Fprintf(out, "resolved by %s at %s\n", rec.Resolver, rec.ResolvedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "effective verdict: %s\n", resp.EffectiveVerdict)
}
