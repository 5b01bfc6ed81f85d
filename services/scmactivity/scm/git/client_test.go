// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

const (
	shaA = "a1b2c3d4e5f60718293a4b5c6d7e8f9001122334"
	shaB = "ffeeddccbbaa99887766554433221100ffeeddcc"
)

func TestParseStatusPorcelain(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"empty", "", nil},
		{"modified", " M src/Main.java\n", []string{"src/Main.java"}},
		{"staged and modified", "M  a.go\nMM b.go\n", []string{"a.go", "b.go"}},
		{"rename", "R  old.go -> new.go\n", []string{"new.go"}},
		{"quoted", " M \"with space.go\"\n", []string{"with space.go"}},
		{"octal escaped utf-8", ` M "caf\303\251.java"` + "\n", []string{"café.java"}},
		{"escaped quote", ` M "say \"hi\".go"` + "\n", []string{`say "hi".go`}},
		{"quoted rename", `R  "old n\303\244me.go" -> "n\303\244me.go"` + "\n", []string{"näme.go"}},
		{"short lines ignored", "M\n\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatusPorcelain(tt.output))
		})
	}
}

func TestParseBlamePorcelain(t *testing.T) {
	output := shaA + " 1 1 2\n" +
		"author Alice\n" +
		"author-mail <alice@example.com>\n" +
		"author-time 1700000000\n" +
		"author-tz +0100\n" +
		"committer Alice\n" +
		"committer-mail <alice@example.com>\n" +
		"committer-time 1700000000\n" +
		"committer-tz +0100\n" +
		"summary initial\n" +
		"filename src/Main.java\n" +
		"\tpackage main;\n" +
		shaA + " 2 2\n" +
		"\t\n" +
		shaB + " 3 3 1\n" +
		"author Bob\n" +
		"author-mail <>\n" +
		"author-time 1710000000\n" +
		"author-tz -0230\n" +
		"summary second\n" +
		"previous " + shaA + " src/Main.java\n" +
		"filename src/Main.java\n" +
		"\tclass Main {}\n"

	lines, err := ParseBlamePorcelain([]byte(output))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, 1, lines[0].Line)
	assert.Equal(t, shaA, lines[0].Revision)
	assert.Equal(t, "alice@example.com", lines[0].Author)
	assert.Equal(t, int64(1700000000), lines[0].Date.Unix())
	_, offset := lines[0].Date.Zone()
	assert.Equal(t, 3600, offset)

	assert.Equal(t, 2, lines[1].Line)
	assert.Equal(t, "alice@example.com", lines[1].Author, "metadata is reused for repeated sha")

	assert.Equal(t, 3, lines[2].Line)
	assert.Equal(t, "Bob", lines[2].Author, "empty mail falls back to name")
	_, offset = lines[2].Date.Zone()
	assert.Equal(t, -(2*3600 + 30*60), offset)
}

func TestParseBlamePorcelain_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"content before header", "\torphan\n"},
		{"metadata before header", "author Nobody\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlamePorcelain([]byte(tt.output))
			assert.ErrorIs(t, err, ErrMalformedBlame)
		})
	}
}

func TestParseBlamePorcelain_Empty(t *testing.T) {
	lines, err := ParseBlamePorcelain(nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestNew(t *testing.T) {
	t.Run("uses work dir", func(t *testing.T) {
		dir := t.TempDir()
		p, err := New(scm.URL{Kind: scm.KindGit, Location: "https://host/repo.git"}, scm.OpenOptions{WorkDir: dir})
		require.NoError(t, err)
		assert.Equal(t, scm.KindGit, p.Kind())
		assert.Equal(t, dir, p.(*Client).WorkDir())
	})

	t.Run("falls back to local location", func(t *testing.T) {
		dir := t.TempDir()
		p, err := New(scm.URL{Kind: scm.KindGit, Location: dir}, scm.OpenOptions{})
		require.NoError(t, err)
		assert.Equal(t, dir, p.(*Client).WorkDir())
	})

	t.Run("remote location without work dir", func(t *testing.T) {
		_, err := New(scm.URL{Kind: scm.KindGit, Location: "https://host/repo.git"}, scm.OpenOptions{})
		assert.Error(t, err)
	})
}

// initRepo creates a throwaway repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Tester", "GIT_AUTHOR_EMAIL=tester@example.com",
			"GIT_COMMITTER_NAME=Tester", "GIT_COMMITTER_EMAIL=tester@example.com",
			"GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_SYSTEM=/dev/null",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Main.java"), []byte("a\nb\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestClient_Integration(t *testing.T) {
	dir := initRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := NewClient(dir, scm.OpenOptions{})
	require.NoError(t, err)

	report, err := c.Status(ctx, "src")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.False(t, report.HasChanges())

	lines, err := c.Blame(ctx, "src/Main.java")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "tester@example.com", lines[0].Author)
	assert.Len(t, lines[0].Revision, 40)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Main.java"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Untracked.java"), []byte("x\n"), 0o644))
	report, err = c.Status(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Main.java"}, report.ChangedFiles)

	_, err = c.Blame(ctx, "src/Untracked.java")
	assert.Error(t, err)
}

func TestClient_StatusOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	c, err := NewClient(dir, scm.OpenOptions{})
	require.NoError(t, err)

	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	report, err := c.Status(context.Background(), ".")
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.ProviderMessage)
}
