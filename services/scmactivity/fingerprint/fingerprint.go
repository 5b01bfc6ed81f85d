// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fingerprint computes content fingerprints for analyzed files.
//
// A fingerprint is the SHA-1 of the raw file bytes, rendered as 40
// lower-case hex characters. Two fingerprints are equal iff the file
// contents are byte-identical.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Size is the length of a fingerprint string in hex characters.
const Size = sha1.Size * 2

// ErrMalformed is returned by Parse for strings that are not 40 hex characters.
var ErrMalformed = errors.New("malformed fingerprint")

// Fingerprint is the hex SHA-1 of a file's content.
type Fingerprint string

// String returns the hex form.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 8 characters for log output.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}

// IsZero reports whether the fingerprint is empty.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// Parse validates s and returns it as a Fingerprint.
func Parse(s string) (Fingerprint, error) {
	if len(s) != Size {
		return "", fmt.Errorf("%w: length %d", ErrMalformed, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Fingerprint(s), nil
}

// FromBytes fingerprints an in-memory buffer.
func FromBytes(data []byte) Fingerprint {
	sum := sha1.Sum(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FromReader fingerprints everything read from r.
func FromReader(r io.Reader) (Fingerprint, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// Hasher fingerprints files on disk.
//
// # Thread Safety
//
// Hasher is stateless and safe for concurrent use.
type Hasher struct{}

// NewHasher returns a file Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Fingerprint streams the file at path through SHA-1.
//
// # Inputs
//
//   - path: Absolute path to a regular file.
//
// # Outputs
//
//   - Fingerprint: Hex digest of the file content.
//   - error: Non-nil if the file cannot be opened or read.
func (h *Hasher) Fingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fp, err := FromReader(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return fp, nil
}
