package main

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/baker-street/brain/pkg/config"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()

		st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
		if err != nil {
			return errors.Wrap(err, "failed to run migrations")
		}
		defer st.Close()

		logger.G(ctx).Info("migrations applied")
		return nil
	},
}
