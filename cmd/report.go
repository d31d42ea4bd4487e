package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/tracker"
)

var (
	reportPersons []string
	reportJSON    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show visited countries",
	Long:  "Evaluates the visited-country set for the given persons (all known persons by default).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		persons, err := personsOrAll(ctx, env.Store, reportPersons)
		if err != nil {
			return err
		}

		reports, err := env.Tracker.EvaluateAll(ctx, persons)
		if err != nil {
			return err
		}

		if reportJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(reports), "report: encode json")
		}
		printReports(cmd.OutOrStdout(), reports)
		return nil
	},
}

func printReports(w io.Writer, reports []*tracker.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No persons found.")
		return
	}
	for _, r := range reports {
		fmt.Fprintf(w, "=== %s ===\n", r.Person)
		fmt.Fprintf(w, "Countries visited:  %d\n", r.Count)
		if r.Count > 0 {
			fmt.Fprintf(w, "Visited:            %s\n", strings.Join(r.VisitedNames, ", "))
		}
		if len(r.Manual) > 0 {
			fmt.Fprintf(w, "Manual:             %s\n", strings.Join(r.Manual, ", "))
		}
		if len(r.DetectedFromHistory) > 0 {
			fmt.Fprintf(w, "From history:       %s\n", strings.Join(r.DetectedFromHistory, ", "))
		}
		current := "unknown"
		if r.CurrentCountry != "" {
			current = fmt.Sprintf("%s (%s)", r.CurrentCountry, r.CurrentCountryName)
		}
		fmt.Fprintf(w, "Current country:    %s\n", current)
		fmt.Fprintln(w)
	}
}

func init() {
	reportCmd.Flags().StringSliceVar(&reportPersons, "person", nil, "person to report on (repeatable, default all)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print reports as JSON")
	rootCmd.AddCommand(reportCmd)
}
