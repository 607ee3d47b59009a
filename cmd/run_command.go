package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderproof/internal/config"
	"orderproof/internal/console"
	"orderproof/internal/core/order"
	"orderproof/internal/core/pipeline"
	"orderproof/internal/core/upload"
	"orderproof/internal/platform/storage"
)

type runOptions struct {
	file              string
	resume            bool
	excludeDuplicates bool
	maxRetries        int
	mode              string
	report            string
	yes               bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [order numbers...]",
		Short: "Capture, upload and record evidence for a batch of orders",
		Long: `Processes each order in turn: capture the evidence screenshot, upload it,
and record the shareable link. Successful orders are appended to the report;
failures are listed in the failure manifest.

Order numbers come from the arguments, --file, or are read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				cfg.CaptureMode = opts.mode
			}
			if opts.report != "" {
				cfg.ReportPath = opts.report
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			in := console.NewLineReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			ids, err := collectOrderIDs(cmd.Context(), args, opts.file, in, out)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.New("no order numbers given")
			}

			req := pipeline.Request{
				IDs:                   ids,
				AutoExcludeDuplicates: opts.excludeDuplicates,
				MaxRetries:            opts.maxRetries,
			}
			if cmd.Flags().Changed("resume") {
				req.Resume = &opts.resume
			}
			var decider pipeline.Decider = pipeline.NewConsoleDecider(in, out)
			if opts.yes {
				decider = pipeline.StaticDecider{Resume: opts.resume, Suspicious: true, SkipDuplicates: opts.excludeDuplicates}
			}
			return runBatch(cmd.Context(), ctx, cfg, req, decider, in, out)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read order numbers from a file (comma or newline separated)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Skip orders already in the checkpoint (--resume=false starts fresh)")
	cmd.Flags().BoolVar(&opts.excludeDuplicates, "exclude-duplicates", false, "Skip orders already present in the report")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0, "Upload attempts per order (default from config)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Capture mode: manual or auto")
	cmd.Flags().StringVar(&opts.report, "report", "", "Report path (default from config)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not ask questions; use the default answers")
	return cmd
}

func runBatch(ctx context.Context, cc *commandContext, cfg config.Config, req pipeline.Request, decider pipeline.Decider, in *console.LineReader, out io.Writer) error {
	backend, container, err := storage.New(cfg)
	if err != nil {
		return err
	}
	store, lockPath, closeStore, err := openCheckpoint(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	capturer, closeCapturer, err := cc.newCapturer(ctx, cfg, in, out)
	if err != nil {
		return err
	}
	defer closeCapturer()

	uploader := upload.New(backend, upload.Options{
		MaxRetries: cfg.UploadMaxRetries,
		BaseDelay:  time.Duration(cfg.UploadBaseDelayMs) * time.Millisecond,
	})
	ctrl := pipeline.New(store, capturer, uploader, pipeline.Options{
		ReportPath:   cfg.ReportPath,
		ManifestPath: cfg.ManifestPath,
		LockPath:     lockPath,
		Container:    container,
		Decider:      decider,
	})

	summary, err := ctrl.Run(ctx, req)
	printSummary(out, summary)
	return err
}

// collectOrderIDs gathers order numbers from args, then file, then stdin.
func collectOrderIDs(ctx context.Context, args []string, file string, in *console.LineReader, out io.Writer) ([]string, error) {
	var raw []string
	for _, a := range args {
		raw = append(raw, order.ParseList(a)...)
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read order file: %w", err)
		}
		raw = append(raw, order.ParseList(string(b))...)
	}
	if len(raw) == 0 {
		fmt.Fprintln(out, "Enter order numbers separated by commas or new lines. Finish with an empty line:")
		for {
			line, err := in.ReadLine(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(line) == "" {
				break
			}
			raw = append(raw, order.ParseList(line)...)
		}
	}
	return order.Unique(raw), nil
}
