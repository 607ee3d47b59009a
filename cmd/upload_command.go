package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"orderproof/internal/core/upload"
	"orderproof/internal/platform/storage"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var parallelism, maxRetries int
	cmd := &cobra.Command{
		Use:   "upload <paths...>",
		Short: "Upload evidence files and print their shareable links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if parallelism <= 0 {
				parallelism = cfg.UploadParallelism
			}
			if maxRetries <= 0 {
				maxRetries = cfg.UploadMaxRetries
			}
			backend, container, err := storage.New(cfg)
			if err != nil {
				return err
			}
			o := upload.New(backend, upload.Options{
				MaxRetries: maxRetries,
				BaseDelay:  time.Duration(cfg.UploadBaseDelayMs) * time.Millisecond,
			})
			if err := o.Ping(cmd.Context()); err != nil {
				return err
			}

			refs := o.UploadMany(cmd.Context(), args, container, parallelism)
			tw := newTable(cmd.OutOrStdout(), "No", "File", "Link")
			failed := 0
			for i, p := range args {
				link := "FAILED"
				if ref := refs[p]; ref != nil {
					link = *ref
				} else {
					failed++
				}
				tw.AppendRow(table.Row{i + 1, filepath.Base(p), link})
			}
			tw.Render()
			if failed == len(args) {
				return fmt.Errorf("all %d uploads failed", failed)
			}
			if failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d uploads failed\n", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Concurrent uploads (default from config)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Attempts per file (default from config)")
	return cmd
}
