package job

import (
	"time"

	"orderproof/internal/core/pipeline"
)

// Job is the stored state of one queued batch.
type Job struct {
	JobID     string             `json:"job_id"`
	Type      Type               `json:"type"`
	Status    Status             `json:"status"`
	OrderIDs  []string           `json:"order_ids,omitempty"`
	Progress  *pipeline.Progress `json:"progress,omitempty"`
	Result    *BatchResult       `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type Type string

const (
	TypeBatch Type = "batch"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// BatchResult is what a finished batch reports back to API callers.
type BatchResult struct {
	Summary     *pipeline.Summary `json:"summary"`
	ReportURL   string            `json:"report_url,omitempty"`
	ManifestURL string            `json:"manifest_url,omitempty"`
}
