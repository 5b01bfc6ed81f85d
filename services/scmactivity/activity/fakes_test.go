// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scmactivity/services/scmactivity/fingerprint"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

const fakeKind = "fake"

// fakeProvider is a scriptable scm.Provider.
type fakeProvider struct {
	mu           sync.Mutex
	statusCalls  []string
	statuses     map[string]*scm.LocalChangeReport
	statusErr    error
	blameCalls   []string
	blameErrs    map[string]error
	blamePanics  map[string]bool
	blameLines   map[string][]scm.BlameLine
	blameDelay   time.Duration
	blameRelease chan struct{}
	blameStarted chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		statuses:    make(map[string]*scm.LocalChangeReport),
		blameErrs:   make(map[string]error),
		blamePanics: make(map[string]bool),
		blameLines:  make(map[string][]scm.BlameLine),
	}
}

func (p *fakeProvider) Kind() string { return fakeKind }

func (p *fakeProvider) Status(_ context.Context, dir string) (*scm.LocalChangeReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls = append(p.statusCalls, dir)
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	if r, ok := p.statuses[dir]; ok {
		return r, nil
	}
	return &scm.LocalChangeReport{Success: true}, nil
}

func (p *fakeProvider) Blame(ctx context.Context, path string) ([]scm.BlameLine, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	key := filepath.Base(path)
	p.mu.Lock()
	p.blameCalls = append(p.blameCalls, key)
	err := p.blameErrs[key]
	panics := p.blamePanics[key]
	lines := p.blameLines[key]
	started, release := p.blameStarted, p.blameRelease
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if p.blameDelay > 0 {
		select {
		case <-time.After(p.blameDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panics {
		panic("provider exploded on " + key)
	}
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (p *fakeProvider) blameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blameCalls)
}

func (p *fakeProvider) statusCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.statusCalls)
}

// fakeFS is an in-memory FileSystem backed by real files in a temp dir.
type fakeFS struct {
	base     string
	src      []string
	tests    []string
	files    []InputFile
	filesErr error
}

func (f *fakeFS) SourceDirs() []string { return f.src }
func (f *fakeFS) TestDirs() []string   { return f.tests }
func (f *fakeFS) InputFiles(context.Context) ([]InputFile, error) {
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files, nil
}

// add writes content under base and registers it as an input file.
func (f *fakeFS) add(t *testing.T, rel, content string, typ FileType) InputFile {
	t.Helper()
	abs := filepath.Join(f.base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	in := InputFile{Path: rel, AbsPath: abs, Type: typ}
	f.files = append(f.files, in)
	return in
}

// fakeResolver resolves every file except the listed ones.
type fakeResolver struct {
	unresolvable map[string]bool
}

func (r fakeResolver) ToResource(f InputFile) (Resource, bool) {
	if r.unresolvable[f.Path] {
		return Resource{}, false
	}
	q := QualifierFile
	if f.Type == FileTypeTest {
		q = QualifierUnitTest
	}
	return Resource{Key: f.Path, Qualifier: q}, true
}

// memStore is an in-memory BaselineStore, MeasureSink and RunRecorder.
type memStore struct {
	mu          sync.Mutex
	baselines   map[string]fingerprint.Fingerprint
	baselineErr map[string]error
	saved       map[string][]Measure
	saveErr     map[string]error
	saveOrder   []string
	runs        []*RunReport
	runIDs      []string
}

func newMemStore() *memStore {
	return &memStore{
		baselines:   make(map[string]fingerprint.Fingerprint),
		baselineErr: make(map[string]error),
		saved:       make(map[string][]Measure),
		saveErr:     make(map[string]error),
	}
}

func (s *memStore) FingerprintOf(_ context.Context, res Resource) (fingerprint.Fingerprint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.baselineErr[res.Key]; err != nil {
		return "", false, err
	}
	fp, ok := s.baselines[res.Key]
	return fp, ok, nil
}

func (s *memStore) SaveMeasures(ctx context.Context, res Resource, measures []Measure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[res.Key]; err != nil {
		return err
	}
	s.saved[res.Key] = measures
	s.saveOrder = append(s.saveOrder, res.Key)
	s.runIDs = append(s.runIDs, RunIDFromContext(ctx))
	return nil
}

func (s *memStore) SaveRun(_ context.Context, r *RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *memStore) savedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.saved))
	for k := range s.saved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// failingHasher fails for the listed absolute paths and hashes the rest.
type failingHasher struct {
	fail map[string]bool
}

func (h failingHasher) Fingerprint(path string) (fingerprint.Fingerprint, error) {
	if h.fail[path] {
		return "", fmt.Errorf("open %s: %w", path, os.ErrPermission)
	}
	return fingerprint.NewHasher().Fingerprint(path)
}

var errBoom = errors.New("boom")

func blameAt(author string, day int) []scm.BlameLine {
	return []scm.BlameLine{{
		Line:     1,
		Revision: fmt.Sprintf("rev%d", day),
		Author:   author,
		Date:     time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
	}}
}
