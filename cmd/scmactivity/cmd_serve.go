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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/scmactivity/services/scmactivity/api"
	"github.com/AleutianAI/scmactivity/services/scmactivity/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored SCM activity over HTTP",
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

			if cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			h := api.NewHandlers(a.sensor, a.store, version, a.sensor.URL(), a.logger)
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.NewRouter(cfg.Telemetry.ServiceName, h, telemetry.MetricsHandler()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("serving scm activity API", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("ignore-local-modifications", false, "let POST /v1/scm/analyze run on a modified working copy")
	return cmd
}
