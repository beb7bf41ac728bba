// Package main is the entry point for the brain CLI: serve runs the HTTP
// API and worker fabric, migrate applies store migrations, schedule and
// door expose maintenance subcommands (§6).
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/baker-street/brain/pkg/config"
	"github.com/baker-street/brain/pkg/logger"
)

func init() {
	config.Init()
}

var rootCmd = &cobra.Command{
	Use:   "brain",
	Short: "Baker Street Brain: the core job dispatch and agent-loop service",
}

func main() {
	ctx := context.Background()

	cobra.OnInitialize(func() {
		cfg := config.Load()
		if err := logger.SetLogLevel("info"); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to set log level")
		}
		_ = cfg
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(doorCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("command failed")
		os.Exit(1)
	}
}
