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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// LocalModificationGuard refuses a run when the working copy has
// uncommitted changes, since blame would attribute them to nobody.
//
// # Thread Safety
//
// Safe for concurrent use if the provider is.
type LocalModificationGuard struct {
	provider scm.Provider
	fs       FileSystem
	ignore   bool
	logger   *slog.Logger
}

// NewLocalModificationGuard creates a guard over fs's source and test dirs.
//
// # Inputs
//
//   - provider: Backend used for status queries.
//   - fs: Supplies the directories to check.
//   - ignore: When true, Check is a no-op.
//   - logger: Uses slog.Default() if nil.
func NewLocalModificationGuard(provider scm.Provider, fs FileSystem, ignore bool, logger *slog.Logger) *LocalModificationGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalModificationGuard{provider: provider, fs: fs, ignore: ignore, logger: logger}
}

// Check queries every source dir, then every test dir.
//
// # Outputs
//
//   - error: nil when clean or ignored. Wraps ErrLocalModificationCheck
//     when a status query fails or is refused, ErrLocalModifications
//     (naming the first changed file) when changes exist.
func (g *LocalModificationGuard) Check(ctx context.Context) error {
	if g.ignore {
		g.logger.Debug("local modification check disabled")
		return nil
	}

	ctx, span := tracer.Start(ctx, "activity.LocalModificationGuard.Check")
	defer span.End()

	dirs := append(g.fs.SourceDirs(), g.fs.TestDirs()...)
	span.SetAttributes(attribute.Int("guard.dirs", len(dirs)))
	for _, dir := range dirs {
		err := g.checkDir(ctx, dir)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

func (g *LocalModificationGuard) checkDir(ctx context.Context, dir string) error {
	g.logger.Debug("checking local modifications", slog.String("dir", dir))
	report, err := g.provider.Status(ctx, dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalModificationCheck, err)
	}
	if report == nil || !report.Success {
		msg := "no status report"
		if report != nil {
			msg = report.ProviderMessage
		}
		return fmt.Errorf("%w: %s", ErrLocalModificationCheck, msg)
	}
	if report.HasChanges() {
		return fmt.Errorf("%w: %s", ErrLocalModifications, report.ChangedFiles[0])
	}
	return nil
}
