package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/baker-street/brain/pkg/config"
	"github.com/baker-street/brain/pkg/door"
	"github.com/baker-street/brain/pkg/store"
)

var doorCmd = &cobra.Command{
	Use:   "door",
	Short: "Inspect and manage the gateway-side ingress policy",
}

var doorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known sender and their ingress status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()

		st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open store")
		}
		defer st.Close()

		entries, err := st.ListDoorPolicy(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list door policy")
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.Platform, e.SenderID, e.Status)
		}
		return nil
	},
}

var doorPairCmd = &cobra.Command{
	Use:   "pair <platform>",
	Short: "Generate a pairing code an unapproved sender can present",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()

		st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open store")
		}
		defer st.Close()

		d := door.New(st, door.Mode(cfg.DoorMode))
		platform := args[0]
		code, err := d.GeneratePairingCode(ctx, &platform)
		if err != nil {
			return errors.Wrap(err, "failed to generate pairing code")
		}
		fmt.Println(code)
		return nil
	},
}

func init() {
	doorCmd.AddCommand(doorListCmd)
	doorCmd.AddCommand(doorPairCmd)
}
