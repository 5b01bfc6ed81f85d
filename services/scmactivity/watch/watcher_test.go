// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGitDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "refs", "heads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	return dir
}

func startWatcher(t *testing.T, gitDir string, trigger TriggerFunc) {
	t.Helper()
	w, err := New(Options{GitDir: gitDir, Debounce: 50 * time.Millisecond}, trigger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
		assert.NoError(t, w.Stop())
		assert.NoError(t, w.Stop())
	})
	// Give Run time to install its watches.
	time.Sleep(100 * time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := New(Options{GitDir: fakeGitDir(t)}, nil)
	assert.Error(t, err)

	_, err = New(Options{GitDir: filepath.Join(t.TempDir(), "missing")}, noop)
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestHeadWatcher_DebouncesBursts(t *testing.T) {
	gitDir := fakeGitDir(t)
	var calls atomic.Int32
	startWatcher(t, gitDir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte{byte('a' + i)}, 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHeadWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	gitDir := fakeGitDir(t)
	var calls atomic.Int32
	startWatcher(t, gitDir, func(context.Context) error {
		calls.Add(1)
		return errors.New("logged only")
	})

	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "index"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD.lock"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/dev\n"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHeadWatcher_Relevant(t *testing.T) {
	w := &HeadWatcher{gitDir: "/repo/.git"}
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"head write", fsnotify.Event{Name: "/repo/.git/HEAD", Op: fsnotify.Write}, true},
		{"head created by rename", fsnotify.Event{Name: "/repo/.git/HEAD", Op: fsnotify.Create}, true},
		{"packed refs", fsnotify.Event{Name: "/repo/.git/packed-refs", Op: fsnotify.Create}, true},
		{"branch ref", fsnotify.Event{Name: "/repo/.git/refs/heads/main", Op: fsnotify.Write}, true},
		{"nested branch ref", fsnotify.Event{Name: "/repo/.git/refs/heads/feature/x", Op: fsnotify.Create}, true},
		{"lock file", fsnotify.Event{Name: "/repo/.git/refs/heads/main.lock", Op: fsnotify.Create}, false},
		{"index", fsnotify.Event{Name: "/repo/.git/index", Op: fsnotify.Write}, false},
		{"chmod", fsnotify.Event{Name: "/repo/.git/HEAD", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestHeadWatcher_UnderHeads(t *testing.T) {
	w := &HeadWatcher{gitDir: "/repo/.git"}
	tests := []struct {
		path string
		want bool
	}{
		{"/repo/.git/refs/heads/feature", true},
		{"/repo/.git/refs/heads/feature/deep", true},
		{"/repo/.git/refs/heads", false},
		{"/repo/.git/refs/tags/v1", false},
		{"/repo/.git/HEAD", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.underHeads(tt.path))
		})
	}
}

// commitRef updates a ref the way git does: write a lock file, then rename.
func commitRef(t *testing.T, path, sha string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path+".lock", []byte(sha+"\n"), 0o644))
	require.NoError(t, os.Rename(path+".lock", path))
}

func TestHeadWatcher_NestedBranchRef(t *testing.T) {
	gitDir := fakeGitDir(t)
	feature := filepath.Join(gitDir, "refs", "heads", "feature")
	require.NoError(t, os.MkdirAll(feature, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(feature, "x"), []byte("aaa\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/feature/x\n"), 0o644))

	var calls atomic.Int32
	startWatcher(t, gitDir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	commitRef(t, filepath.Join(feature, "x"), "bbb")
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHeadWatcher_BranchDirectoryCreatedLater(t *testing.T) {
	gitDir := fakeGitDir(t)
	var calls atomic.Int32
	startWatcher(t, gitDir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	feature := filepath.Join(gitDir, "refs", "heads", "feature")
	require.NoError(t, os.Mkdir(feature, 0o755))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	commitRef(t, filepath.Join(feature, "x"), "ccc")
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestResolveGitDir(t *testing.T) {
	t.Run("directory found from subdirectory", func(t *testing.T) {
		gitDir := fakeGitDir(t)
		sub := filepath.Join(filepath.Dir(gitDir), "src", "main")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		got, err := ResolveGitDir(sub)
		require.NoError(t, err)
		assert.Equal(t, gitDir, got)
	})

	t.Run("worktree file", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte("gitdir: ../main/.git/worktrees/wt\n"), 0o644))

		got, err := ResolveGitDir(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(filepath.Dir(root), "main", ".git", "worktrees", "wt"), got)
	})

	t.Run("malformed worktree file", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte("nonsense"), 0o644))

		_, err := ResolveGitDir(root)
		assert.ErrorIs(t, err, ErrNotRepository)
	})
}
