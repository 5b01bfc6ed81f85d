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
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/scmactivity/pkg/ux"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
	"github.com/AleutianAI/scmactivity/services/scmactivity/workspace"
)

func newShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Show the stored SCM activity of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			key := resourceKey(a.project, args[0])
			records, err := a.store.Measures(cmd.Context(), key)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no SCM activity recorded for %s; run analyze first", key)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return renderShow(ux.NewPrinter(out, !isTerminal(out)), key, records)
		},
	}
}

// resourceKey maps a command-line path to its store key. Paths outside
// the project are used as given.
func resourceKey(p *workspace.Project, arg string) string {
	if abs, err := filepath.Abs(arg); err == nil {
		if res, ok := p.ToResource(activity.InputFile{AbsPath: abs}); ok {
			return res.Key
		}
	}
	return filepath.ToSlash(arg)
}

// renderShow prints the scalar measures of a resource followed by its
// blame table.
func renderShow(p *ux.Printer, key string, records []store.Record) error {
	p.Title(key)

	var blame string
	for _, r := range records {
		if r.Metric == activity.MetricBlameByLine {
			blame = r.Value
			continue
		}
		p.KeyValue(r.Metric, r.Value)
	}
	if len(records) > 0 {
		p.KeyValue("run", records[0].RunID)
		p.KeyValue("updated", records[0].UpdatedAt.Local().Format(time.DateTime))
	}
	if blame == "" {
		return nil
	}

	var lines []scm.BlameLine
	if err := json.Unmarshal([]byte(blame), &lines); err != nil {
		return fmt.Errorf("decode blame for %s: %w", key, err)
	}
	if len(lines) == 0 {
		return nil
	}
	p.Table([]string{"line", "revision", "author", "date"}, blameRows(lines))
	return nil
}

func blameRows(lines []scm.BlameLine) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rev := l.Revision
		if len(rev) > 10 {
			rev = rev[:10]
		}
		date := ""
		if !l.Date.IsZero() {
			date = l.Date.Format(time.DateOnly)
		}
		rows = append(rows, []string{strconv.Itoa(l.Line), rev, l.Author, date})
	}
	return rows
}
