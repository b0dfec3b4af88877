package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/baywatch/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the correlation daemon",
	GroupID: "system",
	Long: `Run the correlation daemon.

The daemon reads object detections from the configured frame source, accepts
one RFID reader connection on reader_addr, and records dwell sessions. It serves
the query API over HTTP and gRPC health checks on the configured ports.

Settings come from the TOML file given by --config, then BAYWATCH_* environment
variables. A .env file in the working directory is loaded first if present.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}

		logger, logCloser, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer logCloser.Close()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := startDaemon(ctx, cfg, logger)
		if err != nil {
			logger.Error("startup failed", "err", err)
			return err
		}

		<-ctx.Done()
		logger.Info("received shutdown signal")
		d.shutdown()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", os.Getenv("BAYWATCH_CONFIG"), "path to TOML config file")
}
