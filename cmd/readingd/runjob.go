package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunJobCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:       "run-job <name>",
		Short:     "Run one scheduled job immediately",
		Long:      "Runs auto-complete, recompute-ranks or cleanup-sessions once, under the same lock the scheduler uses.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{jobAutoComplete, jobRecomputeRanks, jobCleanupSessions},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}
			if err := a.runner.RunOnce(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished\n", args[0])
			return nil
		},
	}
}
