// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands implements grbld's CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "grbld",
	Short: "grbld streams G-code to a Grbl CNC controller over serial",
	Long: `grbld is a host-side streaming driver for Grbl CNC controllers.

It owns one serial connection, paces G-code lines against the controller's
receive buffer, and exposes a JSON HTTP API for job submission, jogging,
and machine state queries.

Use "grbld [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/grbld/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(statusCmd)
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
