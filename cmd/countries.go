package main

import (
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/country"
)

var (
	countriesGeoJSON bool
	countriesPerson  string
	fetchURL         string
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List the country reference table",
	Long:  "Prints the loaded country circles in table order, or a GeoJSON layer of them with --geojson.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := loadTable(cfg)
		if err != nil {
			return err
		}

		if !countriesGeoJSON {
			printCountries(cmd.OutOrStdout(), table)
			return nil
		}

		var highlight []string
		if countriesPerson != "" {
			highlight, err = visitedFor(cmd, countriesPerson)
			if err != nil {
				return err
			}
		}
		data, err := table.MarshalGeoJSON(highlight)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

var countriesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the country reference file",
	Long:  "Downloads the country circle JSON from --url (or country.data_url) and replaces country.data_path once it parses.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url := fetchURL
		if url == "" {
			url = cfg.Country.DataURL
		}
		if url == "" {
			return eris.New("countries fetch: --url or country.data_url is required")
		}

		client := &http.Client{Timeout: 60 * time.Second}
		n, err := country.Fetch(ctx, client, url, cfg.Country.DataPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %d countries to %s\n", n, cfg.Country.DataPath)
		return nil
	},
}

func printCountries(w io.Writer, table *country.Table) {
	if table.Len() == 0 {
		fmt.Fprintln(w, "No countries loaded.")
		return
	}
	fmt.Fprintf(w, "%-6s %-32s %10s %10s %10s\n", "CODE", "NAME", "LAT", "LON", "RADIUS_KM")
	for _, r := range table.Records() {
		fmt.Fprintf(w, "%-6s %-32s %10.4f %10.4f %10.1f\n",
			r.Code, table.Name(r.Code), r.Center.Latitude, r.Center.Longitude, r.RadiusKM)
	}
	fmt.Fprintf(w, "\n%d countries (tie break: %s)\n", table.Len(), table.TieBreak())
}

// visitedFor evaluates one person for map highlighting.
func visitedFor(cmd *cobra.Command, person string) ([]string, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, cfg, "evaluate")
	if err != nil {
		return nil, err
	}
	defer env.Close()

	report, err := env.Tracker.Evaluate(ctx, person)
	if err != nil {
		return nil, err
	}
	return report.Visited, nil
}

func init() {
	countriesCmd.Flags().BoolVar(&countriesGeoJSON, "geojson", false, "print a GeoJSON FeatureCollection of the country circles")
	countriesCmd.Flags().StringVar(&countriesPerson, "person", "", "with --geojson, mark this person's visited countries")
	countriesFetchCmd.Flags().StringVar(&fetchURL, "url", "", "source URL (default country.data_url)")
	countriesCmd.AddCommand(countriesFetchCmd)
	rootCmd.AddCommand(countriesCmd)
}
