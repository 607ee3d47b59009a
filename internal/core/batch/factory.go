package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"orderproof/internal/config"
	"orderproof/internal/core/capture"
	"orderproof/internal/core/checkpoint"
	"orderproof/internal/core/pipeline"
	"orderproof/internal/core/upload"
	rds "orderproof/internal/platform/redis"
)

// WorkerSetup is what a queued batch runs against. Worker batches always use
// automated capture and answer every question from the request flags.
type WorkerSetup struct {
	Config    config.Config
	Redis     *rds.Service
	Backend   upload.Backend
	Container string
}

// NewPipelineFactory returns the RunnerFactory used by the worker.
func NewPipelineFactory(ws WorkerSetup) RunnerFactory {
	cfg := ws.Config
	return func(ctx context.Context, req Request, progress pipeline.ProgressFunc) (Runner, func(), error) {
		opts := capture.OptionsFromConfig(cfg)
		opts.Mode = capture.ModeAuto
		opts.ScreenshotDir = underData(cfg, cfg.ScreenshotDir)
		opts.BrowserDataDir = underData(cfg, cfg.BrowserDataDir)
		browser, err := capture.NewBrowser(opts, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := browser.Start(ctx); err != nil {
			return nil, nil, err
		}

		var store checkpoint.Store
		lockPath := underData(cfg, "orderproof.lock")
		if cfg.CheckpointBackend == "redis" && ws.Redis != nil {
			store = checkpoint.NewRedisStore(ws.Redis, cfg.CheckpointKey)
		} else {
			store = checkpoint.NewFileStore(underData(cfg, cfg.CheckpointPath))
			lockPath = underData(cfg, cfg.CheckpointPath) + ".lock"
		}

		uploader := upload.New(ws.Backend, upload.Options{
			MaxRetries: cfg.UploadMaxRetries,
			BaseDelay:  time.Duration(cfg.UploadBaseDelayMs) * time.Millisecond,
		})
		ctrl := pipeline.New(store, browser, uploader, pipeline.Options{
			ReportPath:   underData(cfg, cfg.ReportPath),
			ManifestPath: underData(cfg, filepath.Join("manifests", fmt.Sprintf("failed_orders_%d.txt", time.Now().UnixNano()))),
			LockPath:     lockPath,
			Container:    ws.Container,
			Decider: pipeline.StaticDecider{
				Resume:         req.Resume,
				Suspicious:     true,
				SkipDuplicates: req.ExcludeDuplicates,
			},
			Progress: progress,
		})
		return ctrl, func() { _ = browser.Close() }, nil
	}
}

// FileLinks serves paths below cfg.DataDir under /files.
func FileLinks(cfg config.Config) Links {
	return func(path string) string {
		rel, err := filepath.Rel(cfg.DataDir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return ""
		}
		return "/files/" + filepath.ToSlash(rel)
	}
}

func underData(cfg config.Config, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}
