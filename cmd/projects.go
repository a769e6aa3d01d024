package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tapedeck/deck"

	"github.com/spf13/cobra"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "List and manage projects",
	}

	cmd.AddCommand(newProjectsListCommand(ctx))
	cmd.AddCommand(newProjectsCreateCommand(ctx))
	cmd.AddCommand(newProjectsShowCommand(ctx))
	cmd.AddCommand(newProjectsDescribeCommand(ctx))
	cmd.AddCommand(newProjectsDeleteCommand(ctx))
	return cmd
}

func newProjectsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			projects, err := ctx.client().List(reqCtx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects")
				return nil
			}

			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{p.Name, p.Description})
			}
			printTable(out, projectColumns, rows)
			return nil
		},
	}
}

func newProjectsCreateCommand(ctx *commandContext) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			if err := ctx.client().Create(reqCtx, args[0], description); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	return cmd
}

func newProjectsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a project's description, tracks and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			c := ctx.client()
			detail, err := c.Get(reqCtx, args[0])
			if err != nil {
				return projectError(args[0], err)
			}
			tracks, err := c.Tracks(reqCtx, args[0])
			if err != nil {
				return projectError(args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", detail.Name)
			if detail.Description != "" {
				fmt.Fprintf(out, "%s\n", detail.Description)
			}

			fmt.Fprintln(out)
			if len(tracks) == 0 {
				fmt.Fprintln(out, "No tracks")
			} else {
				rows := make([][]string, 0, len(tracks))
				for _, tr := range tracks {
					duration := "-"
					if tr.DurationSeconds > 0 {
						duration = deck.FormatTime(tr.DurationSeconds)
					}
					rows = append(rows, []string{tr.Filename, tr.Format, duration, formatBytes(tr.Size)})
				}
				printTable(out, trackColumns, rows)
			}

			fmt.Fprintln(out)
			if len(detail.Notes) == 0 {
				fmt.Fprintln(out, "No notes")
				return nil
			}
			for _, n := range detail.Notes {
				who := ""
				if n.Author != "" {
					who = " " + n.Author + ":"
				}
				fmt.Fprintf(out, "[%s]%s %s\n", n.Timestamp.Local().Format("2006-01-02 15:04"), who, n.Text)
			}
			return nil
		},
	}
}

func newProjectsDescribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name> <description>",
		Short: "Replace a project's description",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			if err := ctx.client().UpdateDescription(reqCtx, args[0], args[1]); err != nil {
				return projectError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated project %s\n", args[0])
			return nil
		},
	}
}

func newProjectsDeleteCommand(ctx *commandContext) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Permanently delete a project and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm != "yes" {
				return errors.New(`refusing to delete without --confirm yes`)
			}

			reqCtx, cancel := withTimeout(cmd)
			defer cancel()

			if err := ctx.client().Delete(reqCtx, args[0]); err != nil {
				return projectError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", `Type "yes" to confirm`)
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
