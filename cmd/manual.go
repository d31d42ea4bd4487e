package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/countries-visited/internal/store"
)

var manualPerson string

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Manage manually entered countries",
}

var manualListCmd = &cobra.Command{
	Use:   "list",
	Short: "List manual countries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			codes, err := st.ManualCountries(ctx, manualPerson)
			if err != nil {
				return err
			}
			if len(codes) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no manual countries\n", manualPerson)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(codes, "\n"))
			return nil
		})
	},
}

var manualAddCmd = &cobra.Command{
	Use:   "add CODE...",
	Short: "Add manual countries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			for _, code := range args {
				if err := st.AddManualCountry(ctx, manualPerson, code); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d countries for %s\n", len(args), manualPerson)
			return nil
		})
	},
}

var manualRemoveCmd = &cobra.Command{
	Use:   "remove CODE...",
	Short: "Remove manual countries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			for _, code := range args {
				if err := st.RemoveManualCountry(ctx, manualPerson, code); err != nil {
					return fmt.Errorf("remove %s: %w", store.NormalizeCode(code), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d countries for %s\n", len(args), manualPerson)
			return nil
		})
	},
}

var manualSetCmd = &cobra.Command{
	Use:   "set [CODE...]",
	Short: "Replace the manual country list",
	Long:  "Replaces the person's manual countries with the given codes. No codes clears the list.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			if err := st.SetManualCountries(ctx, manualPerson, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %d manual countries for %s\n", len(args), manualPerson)
			return nil
		})
	},
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	return fn(ctx, st)
}

func init() {
	manualCmd.PersistentFlags().StringVar(&manualPerson, "person", "", "person whose manual list to change")
	_ = manualCmd.MarkPersistentFlagRequired("person")
	manualCmd.AddCommand(manualListCmd, manualAddCmd, manualRemoveCmd, manualSetCmd)
	rootCmd.AddCommand(manualCmd)
}
