package main

import (
	"github.com/spf13/cobra"

	"github.com/readingattendance/readingd/internal/config"
)

type configLoader func() (config.Config, error)

func newRootCmd(load configLoader) *cobra.Command {
	root := &cobra.Command{
		Use:   "readingd",
		Short: "Reading attendance service",
		Long: `readingd tracks timed reading sessions, awards a point for every
completed session of at least the minimum duration, ranks readers on a
leaderboard and gates access behind a one-off Paystack payment.

Configuration is read from READING_* environment variables. A .env file in
the working directory is loaded first when present.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newRunJobCmd(load),
	)
	return root
}
