// Package main provides the CLI entry point for GuoMen.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/guomen/cli/commands"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "guomen",
		Short: "GuoMen - MySQL database proxy",
		Long: `GuoMen is a database proxy for MySQL-compatible servers.
It authenticates clients against a locally cached snapshot of the backends'
grant tables, so client handshakes never hit a backend.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	// Register subcommands
	rootCmd.AddCommand(
		commands.NewServeCmd(&cfgFile),
		commands.NewUsersCmd(&cfgFile),
		commands.NewConfigCmd(),
		commands.NewVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
