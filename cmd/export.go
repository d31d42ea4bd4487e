package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/export"
)

var (
	exportOut     string
	exportPersons []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export visited-country reports to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		persons, err := personsOrAll(ctx, env.Store, exportPersons)
		if err != nil {
			return err
		}
		reports, err := env.Tracker.EvaluateAll(ctx, persons)
		if err != nil {
			return err
		}
		if err := export.WriteFile(exportOut, reports); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d reports to %s\n", len(reports), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "visited.xlsx", "output workbook path")
	exportCmd.Flags().StringSliceVar(&exportPersons, "person", nil, "person to export (repeatable, default all)")
	rootCmd.AddCommand(exportCmd)
}
