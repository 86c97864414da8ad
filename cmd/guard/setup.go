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

	"github.com/AleutianAI/AleutianGuard/pkg/logging"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/audit"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/detect"
	"github.com/AleutianAI/AleutianGuard/services/guardrails/policy"
)

// newLogger builds the command logger from the global flags.
func newLogger(service string) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		Service: service,
		LogDir:  logDir,
	})
}

// openPolicyStore loads the configured policy file, or falls back to
// the in-memory store whose unknown scopes resolve to blocking mode.
func openPolicyStore() (policy.Store, error) {
	if policyFile == "" {
		return policy.NewMemoryStore(), nil
	}
	store, err := policy.NewFileStore(policyFile)
	if err != nil {
		return nil, fmt.Errorf("loading policies from %s: %w", policyFile, err)
	}
	return store, nil
}

// openAuditStore opens the Badger-backed audit trail, or an in-memory
// one when no directory is configured.
func openAuditStore() (*audit.Recorder, error) {
	if auditDir == "" {
		return audit.Open(audit.InMemoryConfig())
	}
	return audit.Open(audit.DefaultConfig(auditDir))
}

// buildDetectors assembles the static detector set. A broken rule pack
// is a build problem, not a runtime condition, so it only warns.
func buildDetectors(logger *logging.Logger) []detect.Detector {
	detectors := []detect.Detector{
		detect.NewEntropyDetector(detect.DefaultEntropyConfig()),
	}
	patterns, err := detect.NewPatternDetector()
	if err != nil {
		logger.Warn("pattern detector disabled", "error", err)
		return detectors
	}
	return append(detectors, patterns)
}
