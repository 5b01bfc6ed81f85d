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
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	baseDir    string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "scmactivity",
		Short: "Record per-line SCM activity for changed project files",
		Long: `scmactivity compares every project file against the fingerprint stored
by the previous run and asks the SCM (git or svn) to blame the files that
changed. Last commit date, last committer and per-line blame are stored
for each file and can be shown, watched or served over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ./scmactivity.yaml if present)")
	pf.StringVar(&flags.baseDir, "base-dir", "", "project base directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.jsonLogs, "json-logs", false, "force JSON log output")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newShowCmd(flags),
		newWatchCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
	)
	return root
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
