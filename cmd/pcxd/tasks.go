package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pcx/internal/core"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo batches, measurements and discrepancies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.svc.SeedDemoData(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed demo data: %w", err)
			}
			opts.logger.Info("demo data loaded", zap.Int("records", n))
			fmt.Fprintf(opts.out, "seeded %d records\n", n)
			return nil
		},
	}
}

func newMassBalanceCmd(opts *rootOptions) *cobra.Command {
	var batchID string
	cmd := &cobra.Command{
		Use:   "mass-balance",
		Short: "Print the VRCQ mass balance as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			mb, err := a.svc.MassBalance(cmd.Context(), core.MassBalanceScope{BatchID: batchID})
			if err != nil {
				return err
			}
			return printJSON(opts, mb)
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "Limit to one batch id")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the automated-vs-manual reconciliation check once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			created, _, err := a.svc.RunReconciliationCheck(cmd.Context(), core.Actor{ID: actor, Role: core.RoleOperator})
			if err != nil {
				return err
			}
			return printJSON(opts, map[string]any{"created": created})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", core.SystemActor.ID, "Actor recorded on created discrepancies")
	return cmd
}

func printJSON(opts *rootOptions, v any) error {
	enc := json.NewEncoder(opts.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
