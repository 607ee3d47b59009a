package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(startBrowser)
}

func newRootCommandWith(capturers capturerFactory) *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)
	ctx.newCapturer = capturers

	rootCmd := &cobra.Command{
		Use:           "orderproof",
		Short:         "Collect order evidence screenshots into a shareable report",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ORDERPROOF_CONFIG or ./orderproof.yaml)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newCheckpointCommand(ctx))
	rootCmd.AddCommand(newDetectCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	return rootCmd
}
