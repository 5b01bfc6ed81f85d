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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/scmactivity/pkg/ux"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
	"github.com/AleutianAI/scmactivity/services/scmactivity/watch"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyse now, then again whenever the git HEAD moves",
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

			if !a.sensor.ShouldExecute() {
				return activity.ErrDisabled
			}
			u, err := scm.ParseURL(a.sensor.URL())
			if err != nil {
				return err
			}
			if u.Kind != scm.KindGit {
				return fmt.Errorf("watch supports git working copies only, not %s", u.Kind)
			}
			gitDir, err := watch.ResolveGitDir(a.project.BaseDir())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printer := ux.NewPrinter(out, !isTerminal(out))
			run := func(ctx context.Context) error {
				report, err := a.sensor.Analyse(ctx)
				if err != nil {
					return err
				}
				printReport(printer, report)
				return nil
			}

			// Local modifications only postpone the run until the next commit.
			if err := run(ctx); err != nil {
				if !errors.Is(err, activity.ErrLocalModifications) {
					return err
				}
				printer.Warning(err.Error())
			}

			w, err := watch.New(watch.Options{GitDir: gitDir, Debounce: debounce, Logger: a.logger}, run)
			if err != nil {
				return err
			}
			defer w.Stop()
			return w.Run(ctx)
		},
	}
	cmd.Flags().IntP("threads", "t", 0, "concurrent blame calls (overrides thread_count)")
	cmd.Flags().Bool("ignore-local-modifications", false, "analyse even if the working copy has uncommitted changes")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period after a HEAD change before analysing")
	return cmd
}
