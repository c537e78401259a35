package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSchedulerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler [version]",
		Short: "Show or change the scheduler generation",
		Long: "Without arguments, prints the scheduler generation the collection\n" +
			"uses. With a version (1 or 2), migrates the collection to that\n" +
			"generation. The migration rewrites cards in bulk, wipes undo state\n" +
			"and forces the next sync to upload the full collection.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				col, cleanup, err := openCollection(cmd, flags, nil)
				if err != nil {
					return err
				}
				defer cleanup()
				defer col.Close(cmd.Context(), false)

				ver, err := col.SchedVer(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Scheduler: v%d (%s)\n", ver, col.Sched().Name())
				return nil
			}

			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("scheduler version must be a number: %q", args[0])
			}

			confirm := confirmOrYes(flags,
				"Changing the scheduler forces a full upload on the next sync. Continue?", out)
			col, cleanup, err := openCollection(cmd, flags, func(ctx context.Context) bool {
				return confirm()
			})
			if err != nil {
				return err
			}
			defer cleanup()

			if err := col.ChangeSchedulerVer(cmd.Context(), target); err != nil {
				_ = col.Close(cmd.Context(), false)
				return err
			}
			if err := col.Close(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Fprintf(out, "Collection now uses the v%d scheduler.\n", target)
			return nil
		},
	}
}
