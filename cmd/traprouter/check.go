// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/platformbuilds/traprouter/internal/config"
)

func checkCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Long: `Load the configuration file and report every problem found.

Examples:
  traprouter check -c /etc/traprouter/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(*cfgPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runCheck(cfgPath string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		errs := multierr.Errors(err)
		for _, e := range errs {
			fmt.Fprintf(stderr, "  - %v\n", e)
		}
		return fmt.Errorf("%s: %d problem(s) found", cfgPath, len(errs))
	}

	systems := 0
	for _, s := range cfg.Sources {
		systems += len(s.Systems)
	}
	fmt.Fprintf(stdout, "%s: ok (%d groups, %d systems, %d dispatch entries, match policy %s)\n",
		cfgPath, len(cfg.Sources), systems, len(cfg.Dispatch), cfg.MatchPolicy)
	return nil
}
