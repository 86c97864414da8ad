// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aivalidate contracts with an external reasoning capability to
// confirm or reject candidate findings and to discover findings the
// pattern scanners missed.
//
// The capability is assumed to be slow, flaky, and occasionally
// incoherent. Failure policy:
//
//   - Validate fails OPEN: on error, timeout, or malformed output the
//     original findings are returned unchanged. Static findings have a
//     safety net of their own and must not be lost to an outage.
//   - Discover fails CLOSED: on the same failures it returns nothing.
//     AI-only findings carry no fallback evidence, so unvalidated ones
//     are suppressed.
//
// Every call is bounded by a wall-clock timeout and rate limited so the
// rest of the pipeline is never blocked past the bound.
package aivalidate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/normalize"
	"github.com/AleutianAI/AleutianGuard/services/llm"
)

// Config tunes the adapter.
type Config struct {
	// Timeout bounds each reasoning call. Default 20s.
	Timeout time.Duration

	// MaxCodeBytes truncates submission content in prompts. Default 12288.
	MaxCodeBytes int

	// RequestsPerSecond throttles calls to the capability. Default 2.
	RequestsPerSecond float64

	// Burst for the rate limiter. Default 4.
	Burst int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           20 * time.Second,
		MaxCodeBytes:      12288,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Adapter wraps an llm.Client with the guardrails failure policy.
//
// # Thread Safety
//
// Safe for concurrent use; the rate limiter serializes bursts.
type Adapter struct {
	client  llm.Client
	cfg     Config
	limiter *rate.Limiter
}

// ValidateOutcome pairs the surviving findings with whether validation
// actually ran, so the audit trail can distinguish "validated-accept"
// from "validation-unavailable-passthrough".
type ValidateOutcome struct {
	Findings []datatypes.Finding
	Ran      bool
}

// NewAdapter creates an Adapter around the given reasoning client.
// Zero-valued Config fields fall back to DefaultConfig values.
func NewAdapter(client llm.Client, cfg Config) *Adapter {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = def.MaxCodeBytes
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &Adapter{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Validate asks the capability to separate true from false positives.
//
// # Description
//
// Sends the candidate findings and the code they were raised against to
// the reasoning capability and keeps only the findings it confirms.
// Confirmed findings are returned as copies with Validated set; input
// findings are never mutated.
//
// On any failure (client error, timeout, unparseable response) the
// original findings are returned unchanged with Ran == false.
//
// # Inputs
//
//   - ctx: Parent context; the adapter layers its own timeout on top.
//   - findings: Candidate findings from the static stages.
//   - content: The submission content the findings refer to.
//
// # Outputs
//
//   - ValidateOutcome: Surviving findings plus whether validation ran.
func (a *Adapter) Validate(ctx context.Context, findings []datatypes.Finding, content string) ValidateOutcome {
	if len(findings) == 0 {
		return ValidateOutcome{Ran: false}
	}

	text, err := a.infer(ctx, buildValidatePrompt(findings, truncate(content, a.cfg.MaxCodeBytes)))
	if err != nil {
		slog.Warn("AI validation unavailable, passing findings through", "error", err, "findings", len(findings))
		return ValidateOutcome{Findings: findings, Ran: false}
	}

	confirmed, err := parseConfirmedIDs(text)
	if err != nil {
		slog.Warn("AI validation response malformed, passing findings through", "error", err)
		return ValidateOutcome{Findings: findings, Ran: false}
	}

	kept := make([]datatypes.Finding, 0, len(findings))
	for _, f := range findings {
		if confirmed[f.ID] {
			validated := f
			validated.Validated = true
			kept = append(kept, validated)
		}
	}
	slog.Info("AI validation complete", "input", len(findings), "confirmed", len(kept))
	return ValidateOutcome{Findings: kept, Ran: true}
}

// Discover asks the capability for vulnerabilities the scanners missed.
//
// # Description
//
// Prompts the reasoning capability with the raw submission and parses
// the response into findings with origin ai-model. On any failure it
// returns an empty list: unvalidated AI-only findings have no safety
// net, so discovery fails closed.
//
// # Inputs
//
//   - ctx: Parent context; the adapter layers its own timeout on top.
//   - content: Submission content.
//   - path: Submission path, stamped onto discovered findings.
//   - language: Declared language, used in the prompt.
//
// # Outputs
//
//   - []datatypes.Finding: Discovered findings, possibly empty.
func (a *Adapter) Discover(ctx context.Context, content, path, language string) []datatypes.Finding {
	text, err := a.infer(ctx, buildDiscoverPrompt(truncate(content, a.cfg.MaxCodeBytes), path, language))
	if err != nil {
		slog.Warn("AI discovery unavailable, suppressing AI findings", "error", err, "path", path)
		return nil
	}

	raw, err := parseDiscovered(text, path)
	if err != nil {
		slog.Warn("AI discovery response malformed, suppressing AI findings", "error", err, "path", path)
		return nil
	}

	res := normalize.Normalize(raw, datatypes.OriginAIModel)
	for _, note := range res.Dropped {
		slog.Debug("dropped malformed AI finding", "note", note)
	}
	// Discovered findings came straight from the model; they are
	// model-confirmed by construction.
	for i := range res.Findings {
		res.Findings[i].Validated = true
	}
	slog.Info("AI discovery complete", "path", path, "findings", len(res.Findings))
	return res.Findings
}

// infer runs one rate-limited, timeout-bounded reasoning call.
func (a *Adapter) infer(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if err := a.limiter.Wait(callCtx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	temp := float32(0.1)
	maxTokens := 4096
	text, err := a.client.Infer(callCtx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning call: %w", err)
	}
	return text, nil
}

func truncate(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}
	half := maxBytes / 2
	head := half
	// Back both cut points off to rune boundaries so the prompt stays
	// valid UTF-8.
	for head > 0 && !utf8.RuneStart(content[head]) {
		head--
	}
	tail := len(content) - half
	for tail < len(content) && !utf8.RuneStart(content[tail]) {
		tail++
	}
	return content[:head] + "\n\n... [code truncated] ...\n\n" + content[tail:]
}
