package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newNotesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Work with project notes",
	}
	cmd.AddCommand(newNotesAddCommand(ctx))
	return cmd
}

func newNotesAddCommand(ctx *commandContext) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "add <project> <text...>",
		Short: "Append a note to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			text := strings.Join(args[1:], " ")
			note, err := ctx.client().AddNote(reqCtx, args[0], text, author)
			if err != nil {
				return projectError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added note to %s at %s\n", args[0], note.Timestamp.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", "", "Note author")
	return cmd
}
