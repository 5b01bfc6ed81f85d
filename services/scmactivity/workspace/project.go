// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace enumerates the files of the project being analysed and
// maps them to store resources.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
)

// SkipDirectories are never descended into.
var SkipDirectories = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
	"build":        true,
	"dist":         true,
	"bin":          true,
	"coverage":     true,
	".cache":       true,
}

// languageExtensions maps a project language to the file suffixes that
// belong to it. An empty language accepts every regular file.
var languageExtensions = map[string][]string{
	"java":       {".java"},
	"go":         {".go"},
	"python":     {".py"},
	"javascript": {".js", ".jsx", ".mjs"},
	"typescript": {".ts", ".tsx"},
	"kotlin":     {".kt", ".kts"},
	"c":          {".c", ".h"},
	"cpp":        {".cc", ".cpp", ".cxx", ".hpp", ".hh", ".h"},
	"csharp":     {".cs"},
	"ruby":       {".rb"},
	"php":        {".php"},
	"scala":      {".scala"},
	"rust":       {".rs"},
}

// ErrUnknownLanguage is returned for a language with no extension mapping.
var ErrUnknownLanguage = errors.New("unknown language")

// Languages returns the supported language names, sorted.
func Languages() []string {
	out := make([]string, 0, len(languageExtensions))
	for l := range languageExtensions {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Settings describes the project layout.
type Settings struct {
	BaseDir    string
	SourceDirs []string
	TestDirs   []string
	Language   string
	Exclusions []string
}

// Project is the on-disk project.
//
// # Description
//
// Implements activity.FileSystem and activity.ResourceResolver. Source and
// test directories are resolved against BaseDir. A file below both a
// source and a test directory is reported once, as a test file.
//
// # Thread Safety
//
// Immutable after New; safe for concurrent use.
type Project struct {
	baseDir    string
	sourceDirs []string
	testDirs   []string
	extensions []string
	exclusions []string
}

var (
	_ activity.FileSystem       = (*Project)(nil)
	_ activity.ResourceResolver = (*Project)(nil)
)

// New validates s and builds a Project.
//
// # Outputs
//
//   - *Project: Ready to enumerate.
//   - error: Non-nil if BaseDir is missing or not a directory, a
//     language is unknown, or an exclusion pattern is malformed.
func New(s Settings) (*Project, error) {
	if s.BaseDir == "" {
		return nil, errors.New("project base directory is required")
	}
	base, err := filepath.Abs(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("project base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project base directory %s is not a directory", base)
	}

	p := &Project{baseDir: base, exclusions: s.Exclusions}
	if s.Language != "" {
		exts, ok := languageExtensions[strings.ToLower(s.Language)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, s.Language)
		}
		p.extensions = exts
	}
	for _, pattern := range s.Exclusions {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("exclusion %q: %w", pattern, err)
		}
	}

	sources := s.SourceDirs
	if len(sources) == 0 {
		sources = []string{"."}
	}
	p.sourceDirs = p.resolveDirs(sources)
	p.testDirs = p.resolveDirs(s.TestDirs)
	return p, nil
}

func (p *Project) resolveDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if !filepath.IsAbs(d) {
			d = filepath.Join(p.baseDir, d)
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}

// BaseDir returns the absolute project root.
func (p *Project) BaseDir() string { return p.baseDir }

// SourceDirs returns the absolute main source directories.
func (p *Project) SourceDirs() []string { return append([]string(nil), p.sourceDirs...) }

// TestDirs returns the absolute test directories.
func (p *Project) TestDirs() []string { return append([]string(nil), p.testDirs...) }

// InputFiles walks the source directories then the test directories.
//
// # Description
//
// Missing directories are skipped. Symlinks and SkipDirectories are not
// followed. Results are sorted by path within each group.
//
// # Outputs
//
//   - []activity.InputFile: Main files followed by test files.
//   - error: Non-nil on a walk error or context cancellation.
func (p *Project) InputFiles(ctx context.Context) ([]activity.InputFile, error) {
	tests := make(map[string]activity.InputFile)
	for _, dir := range p.testDirs {
		if err := p.walk(ctx, dir, activity.FileTypeTest, tests); err != nil {
			return nil, err
		}
	}
	mains := make(map[string]activity.InputFile)
	for _, dir := range p.sourceDirs {
		if err := p.walk(ctx, dir, activity.FileTypeMain, mains); err != nil {
			return nil, err
		}
	}
	for key := range tests {
		delete(mains, key)
	}
	return append(sortedFiles(mains), sortedFiles(tests)...), nil
}

func sortedFiles(m map[string]activity.InputFile) []activity.InputFile {
	out := make([]activity.InputFile, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (p *Project) walk(ctx context.Context, root string, typ activity.FileType, into map[string]activity.InputFile) error {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if abs != root && SkipDirectories[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, ok := p.relative(abs)
		if !ok || !p.accepts(rel) {
			return nil
		}
		into[rel] = activity.InputFile{Path: rel, AbsPath: abs, Type: typ}
		return nil
	})
}

func (p *Project) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(p.baseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (p *Project) accepts(rel string) bool {
	if len(p.extensions) > 0 {
		ext := strings.ToLower(path.Ext(rel))
		matched := false
		for _, e := range p.extensions {
			if ext == e {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return !p.excluded(rel)
}

// excluded matches each pattern against the full relative path, the base
// name, and every directory prefix (so "generated" excludes a whole tree).
func (p *Project) excluded(rel string) bool {
	for _, pattern := range p.exclusions {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			return true
		}
		dir := path.Dir(rel)
		for dir != "." && dir != "/" {
			if ok, _ := path.Match(pattern, dir); ok {
				return true
			}
			if ok, _ := path.Match(pattern, path.Base(dir)); ok {
				return true
			}
			dir = path.Dir(dir)
		}
	}
	return false
}

// ToResource maps f to its store resource. Files outside the base dir are
// not resources.
func (p *Project) ToResource(f activity.InputFile) (activity.Resource, bool) {
	rel := f.Path
	if rel == "" && f.AbsPath != "" {
		var ok bool
		if rel, ok = p.relative(f.AbsPath); !ok {
			return activity.Resource{}, false
		}
	}
	if rel == "" || strings.HasPrefix(rel, "../") {
		return activity.Resource{}, false
	}
	qualifier := activity.QualifierFile
	if f.Type == activity.FileTypeTest {
		qualifier = activity.QualifierUnitTest
	}
	return activity.Resource{Key: rel, Qualifier: qualifier}, true
}
