// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformbuilds/traprouter/internal/config"
	"github.com/platformbuilds/traprouter/internal/selftelemetry"
	"github.com/platformbuilds/traprouter/internal/snmp"
)

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive traps on a UDP socket and process them",
		Long: `Listen for SNMP v1/v2c/v3 traps and process each one like "handle"
does. /metrics, /healthz and /readyz are served on self_telemetry.listen.
With watch.enabled the configuration file is reloaded when it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgPath, cmd.ErrOrStderr())
		},
	}
}

func runServe(ctx context.Context, cfgPath string, stderr io.Writer) error {
	a, err := setup(ctx, cfgPath, stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			a.log.Warn("shutdown", "error", err)
		}
	}()

	p, err := a.buildPipeline(a.cfg)
	if err != nil {
		return err
	}
	proc := &swappable{}
	proc.p.Store(p)

	listener, err := snmp.NewListener(a.cfg.Listener, proc, a.log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	selftelemetry.InstallHandlers(mux, a.metrics)
	srv := &http.Server{Addr: a.cfg.SelfTelemetry.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("HTTP server listening", "address", a.cfg.SelfTelemetry.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server failed", "error", err)
			cancel()
		}
	}()

	if a.cfg.Watch.Enabled {
		w, err := config.NewWatcher(cfgPath, a.cfg.Watch, a.log)
		if err != nil {
			return err
		}
		w.OnChange(func(c *config.Config) error {
			np, err := a.buildPipeline(c)
			if err != nil {
				return err
			}
			proc.p.Store(np)
			a.log.Info("pipeline reloaded", "sources", len(c.Sources), "dispatch", len(c.Dispatch))
			return nil
		})
		a.log.Info("watching configuration", "path", w.Path(), "interval", a.cfg.Watch.PollInterval)
		go w.Run(ctx)
	}

	go func() {
		select {
		case <-listener.Ready():
			a.metrics.SetReady(true)
		case <-ctx.Done():
		}
	}()

	err = listener.Listen(ctx)
	a.metrics.SetReady(false)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn("http shutdown", "error", serr)
	}
	return err
}
