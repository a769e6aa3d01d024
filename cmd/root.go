// Package cmd implements the tapedeck command line.
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tapedeck/client"
	"tapedeck/config"

	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

type commandContext struct {
	serverFlag string
}

func (c *commandContext) serverURL() string {
	if url := strings.TrimSpace(c.serverFlag); url != "" {
		return strings.TrimRight(url, "/")
	}
	return config.GetServerURL()
}

func (c *commandContext) client() *client.Client {
	return client.New(c.serverURL(), nil)
}

// withTimeout bounds a single API call made on behalf of cmd
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

// projectError names the project when the server answers 404
func projectError(name string, err error) error {
	if client.IsNotFound(err) {
		return fmt.Errorf("project %s not found", name)
	}
	return err
}

// NewRootCommand builds the tapedeck command tree
func NewRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "tapedeck",
		Short:         "Organize audio takes into projects and play them back as a mix",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.serverFlag, "server", "", "Server URL (default $TAPEDECK_SERVER or http://localhost:3000)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newProjectsCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newNotesCommand(ctx))
	rootCmd.AddCommand(newDeckCommand(ctx))

	return rootCmd
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
