// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformbuilds/traprouter/internal/selftelemetry"
)

func handleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "handle",
		Short: "Process one trap read from standard input",
		Long: `Read a single trap dump from standard input, as handed over by
snmptrapd's traphandle directive, and process it.

Sink failures are logged and journalled but do not change the exit
status; only configuration problems do.

Examples:
  # /etc/snmp/snmptrapd.conf
  traphandle default /usr/local/bin/traprouter handle -c /etc/traprouter/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandle(cmd.Context(), *cfgPath, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
}

func runHandle(ctx context.Context, cfgPath string, stdin io.Reader, stderr io.Writer) error {
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
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read trap: %w", err)
	}

	res := p.Process(ctx, string(raw))
	attrs := []any{"outcome", res.Outcome.String(), "dispatched", res.Dispatched}
	if res.Event != nil {
		attrs = append(attrs, "group", res.Event.Group, "system", res.Event.System)
	}
	a.log.Info("trap handled", attrs...)

	if err := selftelemetry.Push(ctx, a.cfg.SelfTelemetry, a.metrics); err != nil {
		a.log.Warn("metrics push failed", "error", err)
	}
	return nil
}
