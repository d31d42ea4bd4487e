package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/server"
)

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the visited-countries HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if serveWatch {
			go func() {
				if err := env.Tracker.Run(ctx, cfg.Tracker.Persons, cfg.Tracker.Interval(), nil); err != nil {
					zap.L().Error("tracker stopped", zap.Error(err))
				}
			}()
		}

		srv := server.New(env.Tracker, env.Store, server.Config{
			Port:        port,
			IngestRPS:   cfg.Server.IngestRPS,
			IngestBurst: cfg.Server.IngestBurst,
		}, server.WithMetrics(env.Metrics), server.WithGatherer(env.Registry))

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also re-evaluate persons periodically")
	rootCmd.AddCommand(serveCmd)
}
