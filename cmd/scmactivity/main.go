// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command scmactivity records who last touched each line of a project's
// changed files and serves the results.
package main

import (
	"os"

	"github.com/AleutianAI/scmactivity/pkg/ux"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		ux.NewPrinter(os.Stderr, !isTerminal(os.Stderr)).Error(err.Error())
		os.Exit(1)
	}
}
