// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuard/services/guardrails/datatypes"
)

// ErrNotFound is returned by stores when no policy exists for a scope.
var ErrNotFound = errors.New("no policy configured for scope")

// Store resolves the enforcement policy for an ownership scope.
type Store interface {
	GetPolicy(ctx context.Context, scope string) (*datatypes.Policy, error)
}

// Default returns the fail-safe policy applied when no policy is
// resolvable: blocking mode, no overrides permitted.
func Default(scope string) *datatypes.Policy {
	return &datatypes.Policy{
		Scope: scope,
		Mode:  datatypes.ModeBlocking,
	}
}

// Resolve fetches the policy for a scope, falling back to the blocking
// default on miss or store failure. It never returns nil.
func Resolve(ctx context.Context, store Store, scope string) *datatypes.Policy {
	if store == nil {
		return Default(scope)
	}
	pol, err := store.GetPolicy(ctx, scope)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("policy store failed, falling back to blocking mode", "scope", scope, "error", err)
		}
		return Default(scope)
	}
	if pol == nil || !pol.Mode.Valid() {
		return Default(scope)
	}
	return pol
}

// MemoryStore is an in-process Store, used by tests and for policies
// pushed over the API.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*datatypes.Policy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*datatypes.Policy)}
}

// Set installs a policy for its scope.
func (s *MemoryStore) Set(pol *datatypes.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[pol.Scope] = pol
}

// GetPolicy implements Store.
func (s *MemoryStore) GetPolicy(_ context.Context, scope string) (*datatypes.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pol, ok := s.policies[scope]
	if !ok {
		return nil, ErrNotFound
	}
	return pol, nil
}

// policyFile is the YAML shape of a policy configuration file.
type policyFile struct {
	Policies []datatypes.Policy `yaml:"policies"`
}

// FileStore loads policies once from a YAML file at construction and
// serves them immutably afterwards.
type FileStore struct {
	policies map[string]*datatypes.Policy
}

// NewFileStore reads and validates the policy file.
//
// # Inputs
//
//   - path: YAML file with a top-level `policies` list.
//
// # Outputs
//
//   - *FileStore: Immutable store.
//   - error: Non-nil on read, parse, or validation failure.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	validate := validator.New()
	policies := make(map[string]*datatypes.Policy, len(file.Policies))
	for i := range file.Policies {
		pol := file.Policies[i]
		if pol.Scope == "" {
			return nil, fmt.Errorf("policy %d: scope is required", i)
		}
		if err := validate.Struct(&pol); err != nil {
			return nil, fmt.Errorf("policy for scope %q: %w", pol.Scope, err)
		}
		if !pol.Mode.Valid() {
			pol.Mode = datatypes.ModeBlocking
		}
		policies[pol.Scope] = &pol
	}
	slog.Info("loaded policy file", "path", path, "scopes", len(policies))
	return &FileStore{policies: policies}, nil
}

// GetPolicy implements Store.
func (s *FileStore) GetPolicy(_ context.Context, scope string) (*datatypes.Policy, error) {
	pol, ok := s.policies[scope]
	if !ok {
		return nil, ErrNotFound
	}
	return pol, nil
}
