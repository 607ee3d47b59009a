package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset the list of completed orders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List orders recorded as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, _, closeStore, err := openCheckpoint(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			printCheckpoint(cmd.OutOrStdout(), store.Location(), store.Load(cmd.Context()))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget completed orders so the next run starts fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, _, closeStore, err := openCheckpoint(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", store.Location())
			return nil
		},
	})
	return cmd
}
