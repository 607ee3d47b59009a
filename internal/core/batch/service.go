// Package batch runs order batches as queued tasks for the HTTP API.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"orderproof/internal/core/job"
	"orderproof/internal/core/order"
	"orderproof/internal/core/pipeline"
	"orderproof/internal/logger"
)

const TaskTypeBatch = "batch:task"

var ErrNoOrders = errors.New("order_ids is required")

// Request is the body of POST /v1/batches.
type Request struct {
	OrderIDs          []string `json:"order_ids"`
	Resume            bool     `json:"resume"`
	ExcludeDuplicates bool     `json:"exclude_duplicates"`
	MaxRetries        int      `json:"max_retries"`
}

type Payload struct {
	JobID   string  `json:"job_id"`
	Request Request `json:"request"`
}

// Enqueuer is satisfied by tasks.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Summary, error)
}

// RunnerFactory builds a Runner for one task. close releases whatever the
// runner holds, such as the browser.
type RunnerFactory func(ctx context.Context, req Request, progress pipeline.ProgressFunc) (r Runner, close func(), err error)

// Links maps a written report or manifest to the URL it is served under.
type Links func(path string) string

type Service struct {
	log        *logger.Logger
	jobs       *job.JobService
	newRunner  RunnerFactory
	links      Links
	maxRetries int
}

func New(jobs *job.JobService, newRunner RunnerFactory, links Links, taskMaxRetries int) *Service {
	if links == nil {
		links = func(string) string { return "" }
	}
	return &Service{
		log:        logger.New("BatchService"),
		jobs:       jobs,
		newRunner:  newRunner,
		links:      links,
		maxRetries: taskMaxRetries,
	}
}

func (s *Service) Enqueue(ctx context.Context, t Enqueuer, req Request) (string, error) {
	req.OrderIDs = order.Unique(req.OrderIDs)
	if len(req.OrderIDs) == 0 {
		return "", ErrNoOrders
	}
	jobID := uuid.NewString()
	payload, err := json.Marshal(Payload{JobID: jobID, Request: req})
	if err != nil {
		return "", err
	}
	if err := s.jobs.InitPending(ctx, jobID, req.OrderIDs); err != nil {
		return "", err
	}
	task := asynq.NewTask(TaskTypeBatch, payload)
	if err := t.Enqueue(task, "default", s.maxRetries); err != nil {
		return "", err
	}
	s.log.LogInfof("Queued batch %s with %d order(s)", jobID, len(req.OrderIDs))
	return jobID, nil
}

func (s *Service) HandleTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode batch payload: %w", err)
	}
	if err := s.jobs.SetProcessing(ctx, p.JobID); err != nil {
		return err
	}

	progress := func(pr pipeline.Progress) {
		if err := s.jobs.SetProgress(ctx, p.JobID, pr); err != nil {
			s.log.LogWarnf("Failed to store progress for %s: %v", p.JobID, err)
		}
		_ = s.jobs.PublishProgress(ctx, p.JobID, pr)
	}
	runner, closeRunner, err := s.newRunner(ctx, p.Request, progress)
	if err != nil {
		s.log.LogErrorf("Batch %s could not start: %v", p.JobID, err)
		return s.jobs.Complete(ctx, p.JobID, job.StatusFailed, nil, err)
	}
	defer closeRunner()

	resume := p.Request.Resume
	summary, err := runner.Run(ctx, pipeline.Request{
		IDs:                   p.Request.OrderIDs,
		Resume:                &resume,
		AutoExcludeDuplicates: p.Request.ExcludeDuplicates,
		MaxRetries:            p.Request.MaxRetries,
	})
	if errors.Is(err, pipeline.ErrLocked) {
		// Another batch holds the files; let the queue retry later.
		return err
	}

	bg := context.WithoutCancel(ctx)
	result := &job.BatchResult{Summary: summary}
	if summary != nil {
		if summary.ReportPath != "" {
			result.ReportURL = s.links(summary.ReportPath)
		}
		if summary.ManifestPath != "" {
			result.ManifestURL = s.links(summary.ManifestPath)
		}
	}
	if err != nil {
		s.log.LogWarnf("Batch %s failed: %v", p.JobID, err)
		return s.jobs.Complete(bg, p.JobID, job.StatusFailed, result, err)
	}
	s.log.LogSuccessf("Batch %s completed", p.JobID)
	return s.jobs.Complete(bg, p.JobID, job.StatusCompleted, result, nil)
}
