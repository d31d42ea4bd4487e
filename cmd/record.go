package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/store"
)

var (
	recordPerson string
	recordLat    float64
	recordLon    float64
	recordZone   string
	recordAt     string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a location sample",
	Long:  "Stores one location sample for a person, either a coordinate (--lat/--lon) or a named zone (--zone).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sample, err := sampleFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := sample.Validate(); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RecordSample(ctx, &sample); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s at %s\n", sample.ID, sample.Person, sample.RecordedAt.Format(time.RFC3339))
		return nil
	},
}

// sampleFromFlags builds a sample from the record flags. A zone wins when
// no coordinate flags were given.
func sampleFromFlags(cmd *cobra.Command) (store.LocationSample, error) {
	var at time.Time
	if recordAt != "" {
		t, err := time.Parse(time.RFC3339, recordAt)
		if err != nil {
			return store.LocationSample{}, eris.Wrap(err, "record: parse --at")
		}
		at = t
	}

	latSet := cmd.Flags().Changed("lat")
	lonSet := cmd.Flags().Changed("lon")
	switch {
	case latSet && lonSet:
		return store.NewPointSample(recordPerson, geo.Coordinate{Latitude: recordLat, Longitude: recordLon}, at), nil
	case latSet || lonSet:
		return store.LocationSample{}, eris.New("record: --lat and --lon must be given together")
	case recordZone != "":
		return store.NewZoneSample(recordPerson, recordZone, at), nil
	default:
		return store.LocationSample{}, eris.New("record: either --lat/--lon or --zone is required")
	}
}

func init() {
	recordCmd.Flags().StringVar(&recordPerson, "person", "", "person the sample belongs to")
	recordCmd.Flags().Float64Var(&recordLat, "lat", 0, "latitude in degrees")
	recordCmd.Flags().Float64Var(&recordLon, "lon", 0, "longitude in degrees")
	recordCmd.Flags().StringVar(&recordZone, "zone", "", "named zone, e.g. zone.home")
	recordCmd.Flags().StringVar(&recordAt, "at", "", "sample time in RFC 3339 (default now)")
	_ = recordCmd.MarkFlagRequired("person")
	rootCmd.AddCommand(recordCmd)
}
