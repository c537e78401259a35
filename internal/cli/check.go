package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the collection for problems and fix them",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, cleanup, err := openCollection(cmd, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			problems, err := col.CheckDatabase(cmd.Context())
			if err != nil {
				_ = col.Close(cmd.Context(), false)
				return err
			}
			if err := col.Close(cmd.Context(), true); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, "No problems found.")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			fmt.Fprintln(out, "Problems were fixed; the next sync will upload the full collection.")
			return nil
		},
	}
}

func newOptimizeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Compact and re-analyze the collection file",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, cleanup, err := openCollection(cmd, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := col.Optimize(cmd.Context()); err != nil {
				_ = col.Close(cmd.Context(), false)
				return err
			}
			if err := col.Close(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Collection optimized.")
			return nil
		},
	}
}
