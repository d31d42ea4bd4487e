package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/geo"
)

var (
	resolveLat float64
	resolveLon float64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a coordinate to a country",
	Long:  "Classifies a latitude/longitude pair against the country reference table and prints the matching code.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := loadTable(cfg)
		if err != nil {
			return err
		}

		c := geo.Coordinate{Latitude: resolveLat, Longitude: resolveLon}
		m, ok := table.Match(c)
		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintf(out, "%s: no country\n", c)
			return nil
		}
		fmt.Fprintf(out, "%s: %s (%s), %.1f km from center\n", c, m.Record.Code, table.Name(m.Record.Code), m.DistanceKM)
		return nil
	},
}

func init() {
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "latitude in degrees")
	resolveCmd.Flags().Float64Var(&resolveLon, "lon", 0, "longitude in degrees")
	_ = resolveCmd.MarkFlagRequired("lat")
	_ = resolveCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(resolveCmd)
}
