package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-evaluate persons periodically and log changes",
	Long:  "Evaluates tracker.persons (all known persons when empty) every interval and logs each person whose visited set changed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "watch")
		if err != nil {
			return err
		}
		defer env.Close()

		interval := watchInterval
		if interval <= 0 {
			interval = cfg.Tracker.Interval()
		}
		zap.L().Info("watching",
			zap.Strings("persons", cfg.Tracker.Persons),
			zap.Duration("interval", interval),
		)
		return env.Tracker.Run(ctx, cfg.Tracker.Persons, interval, nil)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "re-evaluation interval (default tracker.interval_secs)")
	rootCmd.AddCommand(watchCmd)
}
