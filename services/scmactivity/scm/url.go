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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for SCM URL validation.
var (
	// ErrBlankURL indicates no URL was configured or discovered.
	ErrBlankURL = errors.New("SCM URL must not be blank")

	// ErrInvalidURL indicates the URL does not follow scm:<kind>:<location>.
	ErrInvalidURL = errors.New("URL does not respect the SCM URL format scm:<provider>:<location>")

	// ErrUnsupportedProvider indicates no backend is registered for the kind.
	ErrUnsupportedProvider = errors.New("SCM provider not supported")
)

// URLParameterHint is appended to every URL validation failure.
const URLParameterHint = `Please check the parameter "url" of the scm configuration`

// URL is a parsed SCM URL of the form scm:<kind><delim><location>.
//
// The delimiter after the kind is ':' or '|', following the Maven SCM
// URL convention ("scm:svn|https://host/repo" is valid).
type URL struct {
	Raw      string
	Kind     string
	Location string
}

// ParseURL splits raw into provider kind and location.
//
// # Outputs
//
//   - URL: Parsed URL.
//   - error: ErrBlankURL or ErrInvalidURL (wrapped with the offending input).
func ParseURL(raw string) (URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URL{}, ErrBlankURL
	}
	const prefix = "scm:"
	if !strings.HasPrefix(raw, prefix) {
		return URL{}, fmt.Errorf("%w: [%s]", ErrInvalidURL, raw)
	}
	rest := raw[len(prefix):]
	idx := strings.IndexAny(rest, ":|")
	if idx <= 0 || idx == len(rest)-1 {
		return URL{}, fmt.Errorf("%w: [%s]", ErrInvalidURL, raw)
	}
	return URL{
		Raw:      raw,
		Kind:     strings.ToLower(rest[:idx]),
		Location: rest[idx+1:],
	}, nil
}

// String returns the raw URL.
func (u URL) String() string {
	return u.Raw
}

// CheckURL validates raw against the registry.
//
// # Description
//
// Runs before any analysis starts. Every failure is fatal for the run and
// carries URLParameterHint so the user knows which setting to fix.
//
// # Outputs
//
//   - URL: The parsed URL when valid.
//   - error: Wraps ErrBlankURL, ErrInvalidURL or ErrUnsupportedProvider.
func CheckURL(raw string, registry *Registry) (URL, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return URL{}, fmt.Errorf("%w. %s", err, URLParameterHint)
	}
	if registry == nil || !registry.Supports(u) {
		return URL{}, fmt.Errorf("%w: [%s]. %s", ErrUnsupportedProvider, u.Kind, URLParameterHint)
	}
	return u, nil
}

// markerDirs maps the metadata directory of each backend to its kind.
// Order matters when a directory contains several markers.
var markerDirs = []struct {
	name string
	kind string
}{
	{".git", KindGit},
	{".svn", KindSvn},
	{".hg", KindHg},
}

// Provider kinds known to the URL guesser.
const (
	KindGit = "git"
	KindSvn = "svn"
	KindHg  = "hg"
)

// GuessURL discovers the SCM URL of a working copy.
//
// # Description
//
// Walks from baseDir up to the filesystem root looking for a backend
// metadata directory (.git, .svn, .hg). The first match wins and yields
// "scm:<kind>:<directory containing the marker>". Git worktrees, where
// .git is a file, are accepted too.
//
// # Outputs
//
//   - string: Discovered URL, or "" when baseDir is not inside a working copy.
func GuessURL(baseDir string) string {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return ""
	}
	for dir := abs; ; {
		for _, m := range markerDirs {
			info, err := os.Stat(filepath.Join(dir, m.name))
			if err != nil {
				continue
			}
			if info.IsDir() || m.kind == KindGit {
				return "scm:" + m.kind + ":" + dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
