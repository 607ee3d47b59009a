package pipeline

import (
	"errors"
	"time"

	"orderproof/internal/core/report"
)

// ErrNoSuccess is returned when the work set was not empty but no order
// reached the report.
var ErrNoSuccess = errors.New("no order was processed successfully")

// ErrLocked means another run holds the lock next to the checkpoint.
var ErrLocked = errors.New("another run is using this checkpoint")

type Outcome string

const (
	Succeeded     Outcome = "succeeded"
	CaptureFailed Outcome = "capture_failed"
	UploadFailed  Outcome = "upload_failed"
	ShareFailed   Outcome = "share_failed"
)

type ItemResult struct {
	OrderID   string        `json:"order_id"`
	Outcome   Outcome       `json:"outcome"`
	Reference string        `json:"reference,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`

	// reported is set once the row is in the report file.
	reported bool
}

type Request struct {
	IDs []string
	// Resume answers the resume question without asking the Decider.
	Resume                *bool
	AutoExcludeDuplicates bool
	// MaxRetries overrides the orchestrator's attempt budget when > 0.
	MaxRetries int
}

// Progress is reported after every processed order.
type Progress struct {
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	OrderID string        `json:"order_id"`
	Outcome Outcome       `json:"outcome"`
	Percent float64       `json:"percent"`
	Elapsed time.Duration `json:"elapsed"`
	// ETA is zero until at least two orders are done.
	ETA time.Duration `json:"eta"`
}

type ProgressFunc func(Progress)

type Summary struct {
	Requested  int              `json:"requested"`
	Suspicious []string         `json:"suspicious,omitempty"`
	Resumed    int              `json:"resumed"`
	Duplicates []string         `json:"duplicates,omitempty"`
	Excluded   int              `json:"excluded"`
	WorkSet    int              `json:"work_set"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Results    []ItemResult     `json:"results"`
	Failures   []report.Failure `json:"failures,omitempty"`
	Elapsed    time.Duration    `json:"elapsed"`

	// ReportPath and ManifestPath are set only when the file was written.
	ReportPath   string `json:"report_path,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`

	Aborted bool   `json:"aborted"`
	Cause   string `json:"cause,omitempty"`
	cause   error
}

// Err is the error that stopped the batch, if any.
func (s *Summary) Err() error { return s.cause }

func (s *Summary) abort(err error) {
	s.Aborted = true
	s.cause = err
	s.Cause = err.Error()
}
