package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/importer"
	"github.com/sells-group/countries-visited/internal/store"
)

var importPerson string

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import location history from CSV or XLSX",
	Long: `Imports location samples from a CSV file or the first sheet of an XLSX
workbook. The header must name latitude and longitude columns, a zone column,
or both; person and recorded_at columns are optional.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := importer.ReadFile(args[0], importPerson)
		if err != nil {
			return err
		}

		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			n, err := importer.Import(ctx, st, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d samples (%d rows skipped)\n", n, res.Skipped)
			return nil
		})
	},
}

func init() {
	importCmd.Flags().StringVar(&importPerson, "person", "", "person for rows without a person column")
	rootCmd.AddCommand(importCmd)
}
