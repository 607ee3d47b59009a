package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderproof/internal/core/pipeline"
	"orderproof/internal/logger"
	rds "orderproof/internal/platform/redis"
)

type JobService struct {
	redis *rds.Service
	log   *logger.Logger
	now   func() time.Time
}

func NewJobService(redis *rds.Service) *JobService {
	return &JobService{redis: redis, log: logger.New("JobService"), now: time.Now}
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := s.redis.CacheGet(ctx, key(jobID), &job); err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &job, nil
}

// update loads the job, applies fn, saves it and notifies subscribers of
// the job channel.
func (s *JobService) update(ctx context.Context, jobID string, fn func(*Job)) error {
	var job Job
	_ = s.redis.CacheGet(ctx, key(jobID), &job)
	job.JobID = jobID
	job.Type = TypeBatch
	fn(&job)
	job.UpdatedAt = s.now().UTC()
	if err := s.redis.CacheSet(ctx, key(jobID), job, ttl(job.Status)); err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, key(jobID), "updated"); err != nil {
		s.log.LogDebugf("Publish for job %s failed: %v", jobID, err)
	}
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID string, orderIDs []string) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusPending
		j.OrderIDs = orderIDs
	})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, func(j *Job) { j.Status = StatusProcessing })
}

func (s *JobService) SetProgress(ctx context.Context, jobID string, p pipeline.Progress) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusProcessing
		j.Progress = &p
	})
}

// Complete stores the final state. cause is recorded as the job error when
// non-nil.
func (s *JobService) Complete(ctx context.Context, jobID string, status Status, result *BatchResult, cause error) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = status
		j.Result = result
		if cause != nil {
			j.Error = cause.Error()
		}
	})
}

// PublishProgress sends a progress event on the job channel for live
// listeners.
func (s *JobService) PublishProgress(ctx context.Context, jobID string, p pipeline.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return s.redis.Publish(ctx, key(jobID), "progress:"+string(b))
}

func key(id string) string { return "job:" + id }
func ttl(s Status) int {
	if s == StatusCompleted || s == StatusFailed {
		return 3600
	}
	return 600
}
