// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-runs SCM activity analysis when the repository HEAD moves.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for git to finish writing
// refs before it triggers a run.
const DefaultDebounce = 500 * time.Millisecond

// ErrNotRepository is returned when no git directory can be found.
var ErrNotRepository = errors.New("not a git repository")

// TriggerFunc starts one analysis. Errors are logged, never fatal.
type TriggerFunc func(ctx context.Context) error

// Options configures a HeadWatcher.
type Options struct {
	// GitDir is the .git directory (already resolved for worktrees).
	GitDir string

	// Debounce collapses bursts of ref updates into one trigger.
	Debounce time.Duration

	Logger *slog.Logger
}

// HeadWatcher watches HEAD, refs/heads (recursively) and packed-refs.
//
// # Description
//
// A commit, checkout, pull or rebase rewrites one or more of those files.
// Every relevant event restarts the debounce timer; when it fires the
// trigger runs once. Triggers never overlap: events arriving during a run
// schedule exactly one follow-up run.
//
// # Thread Safety
//
// Run should be called once. Stop is safe from any goroutine.
type HeadWatcher struct {
	gitDir   string
	debounce time.Duration
	trigger  TriggerFunc
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	stopOnce sync.Once
}

// New creates a watcher for the git directory in opts.
//
// # Inputs
//
//   - opts: GitDir is required. Debounce defaults to DefaultDebounce.
//   - trigger: Called after HEAD settles. Must not be nil.
//
// # Outputs
//
//   - *HeadWatcher: Ready to Run.
//   - error: Non-nil if GitDir is missing or fsnotify cannot start.
func New(opts Options, trigger TriggerFunc) (*HeadWatcher, error) {
	if trigger == nil {
		return nil, errors.New("watch: trigger is required")
	}
	info, err := os.Stat(opts.GitDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, opts.GitDir)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadWatcher{
		gitDir:   opts.GitDir,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger.With("component", "head_watcher"),
		watcher:  w,
	}, nil
}

func (w *HeadWatcher) addPaths() error {
	// HEAD and packed-refs are replaced through a rename of a .lock file, so
	// the directory itself is watched and events are filtered by name.
	if err := w.watcher.Add(w.gitDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.gitDir, err)
	}
	w.addTree(filepath.Join(w.gitDir, "refs", "heads"))
	return nil
}

// addTree watches root and every directory below it. fsnotify is not
// recursive, and branch names such as feature/x live in subdirectories.
func (w *HeadWatcher) addTree(root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("failed to watch ref directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("failed to walk ref directory", "path", root, "error", err)
	}
}

// underHeads reports whether path lies strictly inside refs/heads.
func (w *HeadWatcher) underHeads(path string) bool {
	heads := filepath.Join(filepath.Clean(w.gitDir), "refs", "heads")
	rel, err := filepath.Rel(heads, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// relevant reports whether an event touches a ref that moves HEAD.
func (w *HeadWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasSuffix(name, ".lock") {
		return false
	}
	if filepath.Dir(event.Name) == filepath.Clean(w.gitDir) {
		return name == "HEAD" || name == "packed-refs"
	}
	return true
}

// Run watches until ctx is cancelled or Stop is called.
//
// # Outputs
//
//   - error: Non-nil only if the initial watch cannot be installed.
func (w *HeadWatcher) Run(ctx context.Context) error {
	if err := w.addPaths(); err != nil {
		return err
	}
	w.logger.Info("watching repository head", "git_dir", w.gitDir, "debounce", w.debounce)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		running bool
		pending bool
		done    = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	start := func() {
		running = true
		go func() {
			if err := w.trigger(ctx); err != nil {
				w.logger.Warn("triggered analysis failed", "error", err)
			}
			done <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && w.underHeads(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("head changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if running {
				pending = true
				continue
			}
			start()

		case <-done:
			running = false
			if pending {
				pending = false
				start()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("head watcher error", "error", err)
		}
	}
}

// Stop releases the fsnotify watcher. Safe to call more than once.
func (w *HeadWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() { err = w.watcher.Close() })
	return err
}

// ResolveGitDir finds the git directory for a working tree.
//
// # Description
//
// Walks up from dir looking for .git. A .git file (worktree or submodule)
// is followed through its "gitdir: " line; a relative target is resolved
// against the file's directory.
//
// # Outputs
//
//   - string: Absolute git directory.
//   - error: ErrNotRepository when none is found.
func ResolveGitDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, ".git")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return candidate, nil
			}
			return readGitFile(candidate)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		abs = parent
	}
}

func readGitFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	target, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok || target == "" {
		return "", fmt.Errorf("%w: malformed %s", ErrNotRepository, path)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}
