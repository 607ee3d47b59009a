package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"orderproof/internal/config"
	"orderproof/internal/console"
	"orderproof/internal/core/capture"
	"orderproof/internal/core/checkpoint"
	rds "orderproof/internal/platform/redis"
)

// capturerFactory starts a capture source; the returned func releases it.
type capturerFactory func(ctx context.Context, cfg config.Config, in *console.LineReader, out io.Writer) (capture.Capturer, func(), error)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error

	newCapturer capturerFactory
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, newCapturer: startBrowser}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func startBrowser(ctx context.Context, cfg config.Config, in *console.LineReader, out io.Writer) (capture.Capturer, func(), error) {
	b, err := openBrowser(ctx, cfg, in, out)
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = b.Close() }, nil
}

func openBrowser(ctx context.Context, cfg config.Config, in *console.LineReader, out io.Writer) (*capture.Browser, error) {
	var prompter capture.Prompter
	if cfg.CaptureMode == capture.ModeManual {
		p := capture.NewConsolePrompter(in, out)
		p.FullPage = cfg.FullPage
		p.AskFullPage = !cfg.FullPage
		prompter = p
	}
	b, err := capture.NewBrowser(capture.OptionsFromConfig(cfg), prompter)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// openCheckpoint returns the configured store and the lock path guarding it.
func openCheckpoint(cfg config.Config) (checkpoint.Store, string, func(), error) {
	if cfg.CheckpointBackend == "redis" {
		r, err := rds.New(rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return nil, "", nil, fmt.Errorf("checkpoint redis: %w", err)
		}
		return checkpoint.NewRedisStore(r, cfg.CheckpointKey), cfg.ReportPath + ".lock", func() { _ = r.Close() }, nil
	}
	return checkpoint.NewFileStore(cfg.CheckpointPath), cfg.CheckpointPath + ".lock", func() {}, nil
}
