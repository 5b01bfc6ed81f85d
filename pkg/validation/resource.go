// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided identifiers before they reach a
// storage key or a subprocess argument.
package validation

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// MaxResourceKeyLength bounds a resource key in bytes.
const MaxResourceKeyLength = 4096

// ErrInvalidResourceKey wraps every resource key rejection.
var ErrInvalidResourceKey = errors.New("invalid resource key")

// ValidateResourceKey validates a project-relative, slash-separated file
// path used as a store key.
//
// Valid keys:
//   - 1 to MaxResourceKeyLength bytes
//   - no control characters (NUL separates key fields in the store)
//   - relative, with no "." or ".." segments and no empty segments
//
// Example:
//
//	if err := validation.ValidateResourceKey(key); err != nil {
//	    return fmt.Errorf("measures: %w", err)
//	}
func ValidateResourceKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidResourceKey)
	case len(key) > MaxResourceKeyLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidResourceKey, MaxResourceKeyLength)
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: %q contains a control character", ErrInvalidResourceKey, key)
	case strings.HasPrefix(key, "/") || strings.Contains(key, `\`):
		return fmt.Errorf("%w: %q must be a relative slash-separated path", ErrInvalidResourceKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q is not a clean path", ErrInvalidResourceKey, key)
		}
	}
	return nil
}

// SanitizeResourceKey converts a user-typed path ("./src//A.java") to its
// canonical key and validates it.
func SanitizeResourceKey(input string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(strings.TrimSpace(input), `\`, "/"))
	if cleaned == "." {
		cleaned = ""
	}
	if err := ValidateResourceKey(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
