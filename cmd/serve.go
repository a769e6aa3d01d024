package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"tapedeck/config"
	"tapedeck/logging"
	"tapedeck/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		port       int
		dataDir    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Storage.DataDir = dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			app, err := server.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("serving projects", zap.String("data_dir", app.Projects().DataDir()))
			return app.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path (TOML)")
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory holding project folders")

	return cmd
}
