// Package checkpoint records orders whose full capture and upload workflow
// finished, so an interrupted batch can resume without redoing them.
package checkpoint

import (
	"context"
	"time"
)

// Entry is one completed order. Entries are only ever appended.
type Entry struct {
	OrderID     string    `json:"order_number"`
	Reference   string    `json:"reference"`
	CompletedAt time.Time `json:"timestamp"`
}

// Log is the persisted checkpoint state.
type Log struct {
	Entries   []Entry    `json:"processed_orders"`
	UpdatedAt *time.Time `json:"timestamp"`
}

// OrderIDs returns the set of identifiers present in the log.
func (l Log) OrderIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Entries))
	for _, e := range l.Entries {
		ids[e.OrderID] = struct{}{}
	}
	return ids
}

// Status says how a Load produced its log.
type Status string

const (
	StatusMissing Status = "missing"
	StatusLoaded  Status = "loaded"
	StatusCorrupt Status = "corrupt"
)

// LoadResult is always usable: on Missing or Corrupt the log is empty and Err
// carries the read problem, if any.
type LoadResult struct {
	Log    Log
	Status Status
	Err    error
}

// Store persists the checkpoint log. Implementations do not de-duplicate.
type Store interface {
	Load(ctx context.Context) LoadResult
	Append(ctx context.Context, orderID, reference string) error
	Clear(ctx context.Context) error
	// Location describes where the state lives, for operator messages.
	Location() string
}
