package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/zone"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Manage named zones stored in the database",
}

var (
	zoneName   string
	zoneLat    float64
	zoneLon    float64
	zoneRadius float64
)

var zonesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List zones from the zone file and the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		file := loadZones(cfg)
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			stored, err := st.Zones(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, z := range file.Zones() {
				fmt.Fprintf(w, "%-20s %10.5f %10.5f  file\n", z.Name, z.Latitude, z.Longitude)
			}
			for _, z := range stored {
				fmt.Fprintf(w, "%-20s %10.5f %10.5f  store\n", z.Name, z.Latitude, z.Longitude)
			}
			return nil
		})
	},
}

var zonesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a stored zone",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			if err := st.UpsertZone(ctx, zoneFromFlags()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved zone %s\n", zoneName)
			return nil
		})
	},
}

var zonesImportCmd = &cobra.Command{
	Use:   "import [FILE]",
	Short: "Copy zones from a YAML zone file into the database",
	Long:  "Upserts every zone from FILE (default zones.path) into the database so they resolve without the file.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Zones.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return eris.New("zones import: FILE or zones.path is required")
		}
		reg := zone.LoadFile(path)

		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			n, err := st.UpsertZones(ctx, reg.Zones())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d zones from %s\n", n, path)
			return nil
		})
	},
}

func zoneFromFlags() zone.Zone {
	return zone.Zone{
		Name:      zoneName,
		Latitude:  zoneLat,
		Longitude: zoneLon,
		RadiusM:   zoneRadius,
	}
}

func init() {
	zonesSetCmd.Flags().StringVar(&zoneName, "name", "", "zone name, with or without the zone. prefix")
	zonesSetCmd.Flags().Float64Var(&zoneLat, "lat", 0, "latitude in degrees")
	zonesSetCmd.Flags().Float64Var(&zoneLon, "lon", 0, "longitude in degrees")
	zonesSetCmd.Flags().Float64Var(&zoneRadius, "radius", 100, "radius in meters")
	_ = zonesSetCmd.MarkFlagRequired("name")
	_ = zonesSetCmd.MarkFlagRequired("lat")
	_ = zonesSetCmd.MarkFlagRequired("lon")
	zonesCmd.AddCommand(zonesListCmd, zonesSetCmd, zonesImportCmd)
	rootCmd.AddCommand(zonesCmd)
}
