// Package pipeline runs a batch of orders through capture, upload and
// record, with checkpoint resume and duplicate suppression. Each success is
// written to the report before it is checkpointed, so a checkpointed order
// always has its report row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"orderproof/internal/core/capture"
	"orderproof/internal/core/checkpoint"
	"orderproof/internal/core/duplicate"
	"orderproof/internal/core/order"
	"orderproof/internal/core/report"
	"orderproof/internal/core/upload"
	"orderproof/internal/logger"
	"orderproof/internal/metrics"
)

// Uploader is the part of upload.Orchestrator the controller needs.
type Uploader interface {
	Ping(ctx context.Context) error
	UploadWithRetries(ctx context.Context, path, container string, maxRetries int) upload.Result
}

type Options struct {
	ReportPath   string
	ManifestPath string
	// LockPath is locked for the duration of Run; empty disables locking.
	LockPath  string
	Container string
	Decider   Decider
	Progress  ProgressFunc
}

type Controller struct {
	log        *logger.Logger
	checkpoint checkpoint.Store
	capturer   capture.Capturer
	uploader   Uploader
	reports    *report.Accumulator
	opts       Options
	now        func() time.Time
}

func New(store checkpoint.Store, capturer capture.Capturer, uploader Uploader, opts Options) *Controller {
	if opts.Decider == nil {
		opts.Decider = StaticDecider{Suspicious: true}
	}
	return &Controller{
		log:        logger.New("Pipeline"),
		checkpoint: store,
		capturer:   capturer,
		uploader:   uploader,
		reports:    report.NewAccumulator(),
		opts:       opts,
		now:        time.Now,
	}
}

// run carries the state of one Run call.
type run struct {
	req       Request
	summary   *Summary
	work      []string
	pending   []report.Entry
	reported  bool
	started   time.Time
	itemTotal time.Duration
}

// Run processes req and returns the summary. The summary is non-nil unless
// the run lock could not be taken. The error is the abort cause, or
// ErrNoSuccess when no order of a non-empty work set succeeded.
func (c *Controller) Run(ctx context.Context, req Request) (*Summary, error) {
	if c.opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.opts.LockPath), 0o755); err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		lock := flock.New(c.opts.LockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, c.opts.LockPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				c.log.LogWarnf("Failed to release run lock: %v", err)
			}
		}()
	}

	r := &run{req: req, summary: &Summary{}, started: c.now()}
	if err := c.init(ctx, r); err != nil {
		r.summary.abort(err)
	} else {
		c.process(ctx, r)
	}
	c.finalize(r)

	s := r.summary
	if s.Aborted {
		metrics.BatchesAborted.Inc()
		return s, s.cause
	}
	if s.WorkSet > 0 && s.Succeeded == 0 {
		return s, ErrNoSuccess
	}
	return s, nil
}

func (c *Controller) init(ctx context.Context, r *run) error {
	ids := order.Unique(r.req.IDs)
	r.summary.Requested = len(ids)
	if len(ids) == 0 {
		return errors.New("no order numbers to process")
	}

	conforming, suspicious := order.Classify(ids)
	if len(suspicious) > 0 {
		r.summary.Suspicious = suspicious
		for _, id := range suspicious {
			c.log.LogWarnf("Order number %s does not match the expected format", id)
		}
		keep, err := c.opts.Decider.KeepSuspicious(ctx, suspicious)
		if err != nil {
			return err
		}
		if !keep {
			ids = conforming
		}
	}

	index := duplicate.LoadIndex(c.opts.ReportPath)
	if index.Status == duplicate.StatusUnreadable {
		c.log.LogWarnf("Report %s unreadable, duplicate check skipped: %v", c.opts.ReportPath, index.Err)
	}

	resumed := map[string]struct{}{}
	loaded := c.checkpoint.Load(ctx)
	switch loaded.Status {
	case checkpoint.StatusCorrupt:
		c.log.LogWarnf("Checkpoint %s unreadable, starting fresh: %v", c.checkpoint.Location(), loaded.Err)
	case checkpoint.StatusLoaded:
		if n := len(loaded.Log.Entries); n > 0 {
			resume := false
			if r.req.Resume != nil {
				resume = *r.req.Resume
			} else {
				var err error
				if resume, err = c.opts.Decider.ResumeFromCheckpoint(ctx, n); err != nil {
					return err
				}
			}
			if resume {
				resumed = c.reconcile(loaded.Log, index)
				c.log.LogInfof("Resuming, %d order(s) already processed", len(resumed))
			} else if err := c.checkpoint.Clear(ctx); err != nil {
				c.log.LogWarnf("Failed to clear checkpoint: %v", err)
			}
		}
	}

	if err := c.uploader.Ping(ctx); err != nil {
		c.log.LogErrorf("Storage check failed: %v", err)
		return err
	}

	work := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, done := resumed[id]; done {
			r.summary.Resumed++
			continue
		}
		work = append(work, id)
	}
	if r.summary.Resumed > 0 {
		c.log.LogInfof("Skipping %d already processed order(s)", r.summary.Resumed)
	}

	dups := index.Present(work)
	if len(dups) > 0 {
		r.summary.Duplicates = dups
		c.log.LogWarnf("%d order(s) already in %s", len(dups), c.opts.ReportPath)
		exclude := r.req.AutoExcludeDuplicates
		if !exclude {
			var err error
			if exclude, err = c.opts.Decider.ExcludeDuplicates(ctx, dups); err != nil {
				return err
			}
		}
		if exclude {
			work = index.Without(work)
			r.summary.Excluded = len(dups)
		}
	}

	r.work = work
	r.summary.WorkSet = len(work)
	return nil
}

// reconcile returns the checkpointed ids that also have a report row. An
// order checkpointed without its row is processed again. When the report
// cannot be read the checkpoint is trusted as is.
func (c *Controller) reconcile(l checkpoint.Log, index duplicate.Index) map[string]struct{} {
	ids := l.OrderIDs()
	if index.Status == duplicate.StatusUnreadable {
		return ids
	}
	for id := range ids {
		if !index.Contains(id) {
			c.log.LogWarnf("Order %s is checkpointed but missing from %s, processing it again", id, c.opts.ReportPath)
			delete(ids, id)
		}
	}
	return ids
}

func (c *Controller) process(ctx context.Context, r *run) {
	total := len(r.work)
	if total == 0 {
		c.log.LogInfo("Nothing to process")
		return
	}
	c.log.LogInfof("Processing %d order(s)", total)

	for i, id := range r.work {
		if err := ctx.Err(); err != nil {
			r.summary.abort(err)
			return
		}
		itemStart := c.now()
		res, fatal := c.processOne(ctx, id, r.req.MaxRetries)
		if fatal != nil {
			if res.Outcome != "" {
				c.record(r, res)
			}
			r.summary.abort(fatal)
			return
		}
		res.Duration = c.now().Sub(itemStart)
		c.record(r, res)

		r.itemTotal += res.Duration
		done := i + 1
		p := Progress{
			Index:   done,
			Total:   total,
			OrderID: id,
			Outcome: res.Outcome,
			Percent: float64(done) / float64(total) * 100,
			Elapsed: c.now().Sub(r.started),
		}
		if done > 1 {
			p.ETA = r.itemTotal / time.Duration(done) * time.Duration(total-done)
		}
		c.log.LogInfof("[%d/%d] %.0f%% %s %s elapsed %s eta %s", done, total, p.Percent, id, res.Outcome,
			p.Elapsed.Round(time.Second), p.ETA.Round(time.Second))
		if c.opts.Progress != nil {
			c.opts.Progress(p)
		}
	}
}

// processOne returns a non-nil error only when the batch must stop. A
// cancelled item comes back with an empty outcome and is not recorded.
func (c *Controller) processOne(ctx context.Context, id string, maxRetries int) (ItemResult, error) {
	log := c.log.WithOrder(id)
	res := ItemResult{OrderID: id}

	path, err := c.capturer.Capture(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ItemResult{}, ctx.Err()
		}
		if errors.Is(err, capture.ErrUnavailable) {
			log.LogErrorf("Capture unavailable: %v", err)
			return ItemResult{}, err
		}
		log.LogWarnf("Capture failed: %v", err)
		res.Outcome = CaptureFailed
		res.Reason = "capture failed: " + err.Error()
		return res, nil
	}

	up := c.uploader.UploadWithRetries(ctx, path, c.opts.Container, maxRetries)
	if !up.OK() && ctx.Err() != nil {
		return ItemResult{}, ctx.Err()
	}
	switch up.Outcome {
	case upload.Succeeded:
		res.Outcome = Succeeded
		res.Reference = up.Reference
		// The evidence is stored; record it even if the run is being cancelled.
		if _, err := c.reports.Append([]report.Entry{{OrderID: id, Evidence: up.Reference}}, c.opts.ReportPath); err != nil {
			log.LogWarnf("Report write failed, retrying at the end of the batch: %v", err)
			return res, nil
		}
		res.reported = true
		c.markDone(context.WithoutCancel(ctx), id, up.Reference)
		return res, nil
	case upload.ShareFailed:
		res.Outcome = ShareFailed
		res.Reason = "share failed: " + up.Err.Error()
	default:
		res.Outcome = UploadFailed
		res.Reason = "upload failed: " + up.Err.Error()
	}
	if errors.Is(up.Err, upload.ErrUnavailable) {
		return res, up.Err
	}
	return res, nil
}

func (c *Controller) markDone(ctx context.Context, id, reference string) {
	if err := c.checkpoint.Append(ctx, id, reference); err != nil {
		c.log.WithOrder(id).LogWarnf("Checkpoint write failed, resume may redo this order: %v", err)
	}
}

func (c *Controller) record(r *run, res ItemResult) {
	r.summary.Results = append(r.summary.Results, res)
	metrics.ItemOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	if res.Duration > 0 {
		metrics.ItemDuration.Observe(res.Duration.Seconds())
	}
	if res.Outcome == Succeeded {
		r.summary.Succeeded++
		if res.reported {
			r.reported = true
		} else {
			r.pending = append(r.pending, report.Entry{OrderID: res.OrderID, Evidence: res.Reference})
		}
		return
	}
	r.summary.Failed++
	r.summary.Failures = append(r.summary.Failures, report.Failure{OrderID: res.OrderID, Reason: res.Reason})
}

// finalize retries report rows that could not be written per item, then
// writes the failure manifest. It does not take a context: it must run after
// cancellation.
func (c *Controller) finalize(r *run) {
	s := r.summary
	if len(r.pending) > 0 {
		if _, err := c.reports.Append(r.pending, c.opts.ReportPath); err != nil {
			c.log.LogError("Failed to write report", err)
		} else {
			r.reported = true
			for _, e := range r.pending {
				c.markDone(context.Background(), e.OrderID, e.Evidence)
			}
		}
	}
	if r.reported {
		s.ReportPath = c.opts.ReportPath
	}
	if len(s.Failures) > 0 && c.opts.ManifestPath != "" {
		if err := report.WriteManifest(c.opts.ManifestPath, s.Failures, c.now()); err != nil {
			c.log.LogError("Failed to write failure manifest", err)
		} else {
			s.ManifestPath = c.opts.ManifestPath
		}
	}
	s.Elapsed = c.now().Sub(r.started)
	if s.Aborted {
		c.log.LogWarnf("Batch stopped after %d succeeded, %d failed: %s", s.Succeeded, s.Failed, s.Cause)
		return
	}
	c.log.LogSuccessf("Batch finished: %d succeeded, %d failed in %s", s.Succeeded, s.Failed, s.Elapsed.Round(time.Second))
}
