package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardbox-io/cardbox/internal/common"
)

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, cleanup, err := openCollection(cmd, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			defer col.Close(cmd.Context(), false)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cards, err := col.CardCount(ctx)
			if err != nil {
				return err
			}
			notes, err := col.NoteCount(ctx)
			if err != nil {
				return err
			}
			allDecks, err := col.Decks().All(ctx)
			if err != nil {
				return err
			}
			crt, err := col.Crt(ctx)
			if err != nil {
				return err
			}
			mod, err := col.Mod(ctx)
			if err != nil {
				return err
			}
			ls, err := col.Ls(ctx)
			if err != nil {
				return err
			}
			ver, err := col.SchedVer(ctx)
			if err != nil {
				return err
			}
			changed, err := col.SchemaChanged(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Collection: %s\n", col.Path())
			fmt.Fprintf(out, "Cards:      %d\n", cards)
			fmt.Fprintf(out, "Notes:      %d\n", notes)
			fmt.Fprintf(out, "Decks:      %d\n", len(allDecks))
			fmt.Fprintf(out, "Created:    %s\n", common.FormatTimestamp(crt))
			fmt.Fprintf(out, "Modified:   %s\n", common.FormatTimestampMS(mod))
			fmt.Fprintf(out, "Last sync:  %s\n", common.FormatTimestampMS(ls))
			fmt.Fprintf(out, "Scheduler:  v%d\n", ver)
			if changed {
				fmt.Fprintln(out, "Next sync:  full upload required")
			}
			return nil
		},
	}
}
