// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// traprouter classifies SNMP traps and forwards them to Elasticsearch and
// Zabbix.
//
// Usage:
//
//	traprouter handle -c /etc/traprouter/config.yaml < trap.txt
//	traprouter serve -c /etc/traprouter/config.yaml
//	traprouter check -c /etc/traprouter/config.yaml
//	traprouter version
//
// "handle" is meant to be used as an snmptrapd traphandle; "serve" receives
// traps itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platformbuilds/traprouter/internal/version"
)

const defaultConfigPath = "/etc/traprouter/config.yaml"

func newRootCmd() *cobra.Command {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:   "traprouter",
		Short: "Classify SNMP traps and forward them to Elasticsearch and Zabbix",
		Long: `traprouter normalizes SNMP trap dumps, identifies the originating
system from configured identifier signatures, applies cleanup and
suppression rules and forwards the result to document and metrics sinks.`,
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config yaml")

	rootCmd.AddCommand(handleCmd(&cfgPath))
	rootCmd.AddCommand(serveCmd(&cfgPath))
	rootCmd.AddCommand(checkCmd(&cfgPath))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
