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
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scmactivity/pkg/ux"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/config"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
	"github.com/AleutianAI/scmactivity/services/scmactivity/workspace"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, baseDir string, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scmactivity.yaml")
	body := "project:\n  base_dir: " + baseDir + "\n" +
		"store:\n  in_memory: true\n" +
		"telemetry:\n  trace_exporter: none\n  metric_exporter: none\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "scmactivity dev (commit none"), out)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, base, "thread_count: 2\n")
	t.Setenv(config.EnvUser, "bob")

	tests := []struct {
		name    string
		args    []string
		threads int
		ignore  bool
	}{
		{"file values", []string{"--config", path}, 2, false},
		{"threads flag", []string{"--config", path, "--threads", "9"}, 9, false},
		{"ignore flag", []string{"--config", path, "--ignore-local-modifications"}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &globalFlags{}
			root := newRootCmd()
			cmd, _, err := root.Find([]string{"analyze"})
			require.NoError(t, err)
			require.NoError(t, cmd.ParseFlags(tt.args))
			flags.configPath, _ = cmd.Flags().GetString("config")

			cfg, err := loadConfig(cmd, flags)
			require.NoError(t, err)
			assert.Equal(t, tt.threads, cfg.ThreadCount)
			assert.Equal(t, tt.ignore, cfg.IgnoreLocalModifications)
			assert.Equal(t, base, cfg.Project.BaseDir)
			assert.Equal(t, "bob", cfg.User)
		})
	}
}

func TestLoadConfig_InvalidThreads(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, _, err := execute(t, "analyze", "--config", path, "--threads", "-1")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAnalyze_DisabledWithoutRepository(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, _, err := execute(t, "analyze", "--config", path)
	assert.ErrorIs(t, err, activity.ErrDisabled)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "user.name=Alice", "-c", "user.email=alice@example.com"}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1", "HOME="+dir)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestAnalyze_GitRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	runGit(t, repo, "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "Main.java"), []byte("class Main {}\n"), 0o644))
	runGit(t, repo, "add", ".")
	runGit(t, repo, "commit", "-q", "-m", "initial")

	path := writeConfig(t, repo, "")
	out, _, err := execute(t, "analyze", "--config", path, "--json")
	require.NoError(t, err)

	var report activity.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "git", report.Provider)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Blamed)
	assert.Equal(t, 1, report.UpdatesApplied)
	assert.NotEmpty(t, report.RunID)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	printReport(ux.NewPrinter(&buf, true), &activity.RunReport{
		RunID: "r1", Provider: "git", Files: 3, New: 1, Blamed: 1, BlameFailed: 1,
		StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
	})
	out := buf.String()
	assert.Contains(t, out, "provider=git\n")
	assert.Contains(t, out, "files=3\n")
	assert.Contains(t, out, "duration=1.5s\n")
	assert.Contains(t, out, "WARN: 1 blame(s) and 0 update(s) failed")
}

func TestRenderShow(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	records := []store.Record{
		{Metric: activity.MetricBlameByLine, Value: `[{"line":1,"revision":"0123456789abcdef","author":"alice@example.com","date":"2025-03-01T09:00:00Z"},{"line":2,"revision":"","author":"","date":"0001-01-01T00:00:00Z"}]`, RunID: "r1", UpdatedAt: at},
		{Metric: activity.MetricLastCommitter, Value: "alice@example.com", RunID: "r1", UpdatedAt: at},
	}
	var buf bytes.Buffer
	require.NoError(t, renderShow(ux.NewPrinter(&buf, true), "src/A.java", records))

	out := buf.String()
	assert.Contains(t, out, "last_committer=alice@example.com\n")
	assert.Contains(t, out, "run=r1\n")
	assert.Contains(t, out, "line\trevision\tauthor\tdate\n")
	assert.Contains(t, out, "1\t0123456789\talice@example.com\t2025-03-01\n")
	assert.Contains(t, out, "2\t\t\t\n")
	assert.NotContains(t, out, "blame_by_line=")

	records[0].Value = "{broken"
	assert.Error(t, renderShow(ux.NewPrinter(&bytes.Buffer{}, true), "src/A.java", records))
}

func TestResourceKey(t *testing.T) {
	base := t.TempDir()
	p, err := workspace.New(workspace.Settings{BaseDir: base})
	require.NoError(t, err)

	assert.Equal(t, "src/A.java", resourceKey(p, filepath.Join(base, "src", "A.java")))
	outside := filepath.Join(filepath.Dir(base), "B.java")
	assert.Equal(t, filepath.ToSlash(outside), resourceKey(p, outside))
}

func TestShow_NotAnalysed(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, base, "")
	_, _, err := execute(t, "show", "--config", path, filepath.Join(base, "A.java"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run analyze first")
}

func TestWatch_Rejections(t *testing.T) {
	t.Run("disabled without repository", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")
		_, _, err := execute(t, "watch", "--config", path)
		assert.ErrorIs(t, err, activity.ErrDisabled)
	})

	t.Run("svn working copy", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "url: scm:svn:https://svn.example.com/repo\n")
		_, _, err := execute(t, "watch", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "git working copies only")
	})
}

func TestServe_EmptyAddr(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, _, err := execute(t, "serve", "--config", path, "--addr", "")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
