/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rit",
	Short: "Rit rhythm game API server",
	Long: `Rit serves the user, beatmap and score REST API for the rhythm game.

	rit server        start the HTTP API
	rit migrate up    apply Postgres migrations
	rit events tail   print user events from the message queue`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it with a
// context that is cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
