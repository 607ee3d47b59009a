package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderproof/internal/console"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Open the orders page and list the order numbers found on it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.CaptureMode = mode
			}
			if cfg.OrdersPageURL == "" {
				return fmt.Errorf("ORDERS_PAGE_URL is not set")
			}
			b, err := openBrowser(cmd.Context(), cfg, console.NewLineReader(cmd.InOrStdin()), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer b.Close()

			ids, err := b.DetectOrders(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No order numbers found")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Capture mode used to open the browser: manual or auto")
	return cmd
}
