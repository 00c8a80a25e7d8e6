package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/config"
	"github.com/vango-dev/roomsync/internal/logging"
	"github.com/vango-dev/roomsync/pkg/engine/records"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/server"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		addr    string
		backend string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the room server",
		Long: `Start the HTTP/WebSocket room server.

The server stops on SIGINT or SIGTERM. Before exiting it writes a final
snapshot of every loaded room and closes client connections with 1001.

Examples:
  roomsync serve
  roomsync serve --addr=:9000 --storage=badger
  ROOMSYNC_STORAGE__BACKEND=s3 ROOMSYNC_STORAGE__S3__BUCKET=rooms roomsync serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := g.overrides(cmd)
			if cmd.Flags().Changed("addr") {
				overrides["server.address"] = addr
			}
			if cmd.Flags().Changed("storage") {
				overrides["storage.backend"] = backend
			}
			return runServe(cmd, g, overrides)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&backend, "storage", "", "Storage backend (memory, s3, redis, sql, badger)")

	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, overrides map[string]any) error {
	cfg, logger, err := setup(g, overrides)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := cfg.RoomOptions()
	opts.Factory = records.Factory(
		records.WithLogger(logger),
		records.WithMaxTombstones(cfg.Engine.MaxTombstones),
	)
	opts.Metrics = room.NewMetrics(reg)
	opts.Logger = logger
	rooms := room.NewDirectory(store, opts)

	srv := server.New(cfg.ServerConfig(), rooms,
		server.WithLogger(logger),
		server.WithGatherer(reg),
	)

	logger.Info("roomsync starting",
		"version", version,
		"storage", cfg.Storage.Backend,
		"config", cfg.Path(),
		"persist_interval", cfg.Persistence.Interval,
	)
	return srv.Run(ctx)
}

// setup loads configuration and builds the logger.
func setup(g *globalFlags, overrides map[string]any) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath, overrides)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
