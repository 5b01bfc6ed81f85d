// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scm

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Provider for a parsed URL.
type Factory func(u URL, opts OpenOptions) (Provider, error)

// Registry maps provider kinds to backend factories.
//
// # Description
//
// Registration is explicit: the composition root registers each backend
// it links in. Supports is a plain capability query, so callers never
// need to attempt an Open to find out whether a URL is usable.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Supports reports whether a backend is registered for u's kind.
func (r *Registry) Supports(u URL) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[u.Kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open builds the provider for u.
//
// # Outputs
//
//   - Provider: Ready-to-use backend.
//   - error: Wraps ErrUnsupportedProvider when no factory is registered,
//     or the factory's own error.
func (r *Registry) Open(u URL, opts OpenOptions) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[u.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", ErrUnsupportedProvider, u.Kind)
	}
	p, err := f(u, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s provider: %w", u.Kind, err)
	}
	return p, nil
}
