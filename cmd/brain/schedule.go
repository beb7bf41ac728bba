package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/config"
	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/scheduler"
	"github.com/baker-street/brain/pkg/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect and manage scheduled jobs",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()

		st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open store")
		}
		defer st.Close()

		scheds, err := st.ListSchedules(ctx, false)
		if err != nil {
			return errors.Wrap(err, "failed to list schedules")
		}
		for _, s := range scheds {
			fmt.Printf("%s\t%s\t%s\tenabled=%t\n", s.ID, s.Name, s.ScheduleCron, s.Enabled)
		}
		return nil
	},
}

var scheduleTriggerCmd = &cobra.Command{
	Use:   "trigger <id>",
	Short: "Manually fire a schedule immediately, bypassing its cron expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()

		st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open store")
		}
		defer st.Close()

		b, err := bus.Connect(ctx, cfg.NATSURL)
		if err != nil {
			return errors.Wrap(err, "failed to connect to message bus")
		}
		defer b.Close()

		d := dispatcher.New(st, b)
		sch := scheduler.New(st, d)

		jobID, err := sch.Trigger(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "failed to trigger schedule")
		}
		fmt.Println(jobID)
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleTriggerCmd)
}
