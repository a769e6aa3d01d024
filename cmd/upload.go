package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <project> <file...>",
		Short: "Upload audio files into a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, files := args[0], args[1:]
			c := ctx.client()
			out := cmd.OutOrStdout()
			interactive := isTerminal(out)

			for _, path := range files {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", path)
				}

				var progress io.Writer
				var bar *progressbar.ProgressBar
				if interactive {
					bar = newBytesBar(out, info.Size(), filepath.Base(path))
					progress = bar
				}

				result, err := c.Upload(cmd.Context(), project, path, progress)
				if bar != nil {
					_ = bar.Finish()
				}
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, projectError(project, err))
				}
				fmt.Fprintf(out, "Uploaded %s (%s)\n", result.Filename, formatBytes(result.Size))
			}
			return nil
		},
	}
}

func newBytesBar(w io.Writer, size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
