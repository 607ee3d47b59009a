// Package upload drives evidence files into object storage with bounded
// retry and exponential backoff, and makes each object link-shareable.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"orderproof/internal/logger"
	"orderproof/internal/metrics"
)

// ErrUnavailable marks a backend that cannot be reached at all. Callers treat
// it as fatal for the whole batch.
var ErrUnavailable = errors.New("storage backend unavailable")

// Backend stores objects and hands out shareable references.
type Backend interface {
	Put(ctx context.Context, container, name string, r io.Reader, contentType string) (objectID string, err error)
	Share(ctx context.Context, container, objectID string) (reference string, err error)
	Ping(ctx context.Context) error
}

// Outcome of a single-item upload.
type Outcome string

const (
	Succeeded    Outcome = "succeeded"
	UploadFailed Outcome = "upload_failed"
	// ShareFailed means the object exists but is not link-shareable yet.
	ShareFailed Outcome = "share_failed"
)

type Result struct {
	Outcome   Outcome
	Reference string
	ObjectID  string
	Attempts  int
	Err       error
}

func (r Result) OK() bool { return r.Outcome == Succeeded }

const (
	DefaultMaxRetries  = 3
	DefaultParallelism = 3
	DefaultBaseDelay   = time.Second
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep waits between attempts; it returns early with ctx.Err() on cancel.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Orchestrator struct {
	backend Backend
	opts    Options
	log     *logger.Logger
}

func New(backend Backend, opts Options) *Orchestrator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Orchestrator{backend: backend, opts: opts, log: logger.New("Upload")}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ping checks the backend is reachable.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if err := o.backend.Ping(ctx); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Backoff is the wait after failed attempt n (numbered from 1).
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	return o.opts.BaseDelay * time.Duration(1<<attempt)
}

// Upload stores one file and shares it. Attempts are numbered from 1; after a
// failed attempt that is not the last, it waits 2^attempt base delays. An
// upload that succeeded is not repeated when only sharing fails.
func (o *Orchestrator) Upload(ctx context.Context, path, container string) Result {
	return o.UploadWithRetries(ctx, path, container, o.opts.MaxRetries)
}

func (o *Orchestrator) UploadWithRetries(ctx context.Context, path, container string, maxRetries int) Result {
	if maxRetries <= 0 {
		maxRetries = o.opts.MaxRetries
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res := Result{Outcome: UploadFailed}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		res.Attempts = attempt
		metrics.UploadAttempts.Inc()

		if res.ObjectID == "" {
			id, err := o.put(ctx, path, container, name, contentType)
			if err != nil {
				res.Err = err
				if !o.retryable(ctx, err, attempt, maxRetries, name) {
					break
				}
				if err := o.opts.Sleep(ctx, o.Backoff(attempt)); err != nil {
					res.Err = err
					break
				}
				continue
			}
			res.ObjectID = id
			res.Outcome = ShareFailed
		}

		ref, err := o.backend.Share(ctx, container, res.ObjectID)
		if err == nil {
			res.Outcome = Succeeded
			res.Reference = ref
			res.Err = nil
			o.log.LogSuccessf("Uploaded %s", name)
			return res
		}
		res.Err = fmt.Errorf("share %s: %w", res.ObjectID, err)
		if !o.retryable(ctx, err, attempt, maxRetries, name) {
			break
		}
		if err := o.opts.Sleep(ctx, o.Backoff(attempt)); err != nil {
			res.Err = err
			break
		}
	}
	o.log.LogErrorf("Upload of %s failed after %d attempts: %v", name, res.Attempts, res.Err)
	return res
}

func (o *Orchestrator) retryable(ctx context.Context, err error, attempt, maxRetries int, name string) bool {
	if ctx.Err() != nil || errors.Is(err, ErrUnavailable) || attempt >= maxRetries {
		return false
	}
	o.log.LogWarnf("Upload attempt %d for %s failed, retrying in %s: %v", attempt, name, o.Backoff(attempt), err)
	return true
}

func (o *Orchestrator) put(ctx context.Context, path, container, name, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil {
		o.log.LogDebugf("Uploading %s (%s) to %s", name, humanize.Bytes(uint64(info.Size())), container)
	}
	id, err := o.backend.Put(ctx, container, name, f, contentType)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return id, nil
}

// UploadMany uploads paths with at most parallelism uploads in flight. The
// returned map has exactly the input paths as keys; nil marks a path whose
// retries were exhausted. One failure never cancels the others.
func (o *Orchestrator) UploadMany(ctx context.Context, paths []string, container string, parallelism int) map[string]*string {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	results := make(map[string]*string, len(paths))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, p := range paths {
		p := p
		mu.Lock()
		if _, seen := results[p]; seen {
			mu.Unlock()
			continue
		}
		results[p] = nil
		mu.Unlock()

		g.Go(func() error {
			res := o.Upload(ctx, p, container)
			if res.OK() {
				ref := res.Reference
				mu.Lock()
				results[p] = &ref
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
