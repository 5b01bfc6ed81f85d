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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/scmactivity/pkg/ux"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one SCM activity analysis and store the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sensor.Analyse(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(ux.NewPrinter(out, !isTerminal(out)), report)
			return nil
		},
	}
	cmd.Flags().IntP("threads", "t", 0, "concurrent blame calls (overrides thread_count)")
	cmd.Flags().Bool("ignore-local-modifications", false, "analyse even if the working copy has uncommitted changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

// printReport renders the counts of one run.
func printReport(p *ux.Printer, r *activity.RunReport) {
	p.Title(fmt.Sprintf("SCM activity run %s", r.RunID))
	p.KeyValue("provider", r.Provider)
	p.KeyValue("files", r.Files)
	p.KeyValue("skipped", r.Skipped)
	p.KeyValue("unchanged", r.Unchanged)
	p.KeyValue("changed", r.Changed)
	p.KeyValue("new", r.New)
	p.KeyValue("unknown", r.Unknown)
	p.KeyValue("blamed", r.Blamed)
	p.KeyValue("blame_failed", r.BlameFailed)
	p.KeyValue("updates", r.UpdatesApplied)
	p.KeyValue("updates_failed", r.UpdatesFailed)
	p.KeyValue("duration", r.Duration().Round(1e6))

	switch {
	case r.BlameFailed > 0 || r.UpdatesFailed > 0:
		p.Warning(fmt.Sprintf("%d blame(s) and %d update(s) failed; see the log for details", r.BlameFailed, r.UpdatesFailed))
	default:
		p.Success("analysis complete")
	}
}
