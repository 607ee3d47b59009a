// Package duplicate tells whether an order already has a row in the report.
// Every read problem is treated as "not a duplicate".
package duplicate

import (
	"errors"
	"os"

	"orderproof/internal/core/order"
	"orderproof/internal/core/report"
	"orderproof/internal/logger"
)

type Status string

const (
	StatusMissing    Status = "missing"
	StatusLoaded     Status = "loaded"
	StatusUnreadable Status = "unreadable"
)

// Index is the report's identifier column loaded once.
type Index struct {
	ids    map[string]struct{}
	Status Status
	Err    error
}

// LoadIndex reads the identifier column of the report at path.
func LoadIndex(path string) Index {
	ids, err := report.ReadIdentifiers(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Index{Status: StatusMissing}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return Index{Status: StatusMissing}
		}
		logger.New("Duplicate").LogWarnf("Could not read report %s, skipping duplicate check: %v", path, err)
		return Index{Status: StatusUnreadable, Err: err}
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[order.Normalize(id)] = struct{}{}
	}
	return Index{ids: set, Status: StatusLoaded}
}

func (ix Index) Contains(id string) bool {
	_, ok := ix.ids[order.Normalize(id)]
	return ok
}

func (ix Index) Len() int { return len(ix.ids) }

// Present returns the ids found in the index, in input order.
func (ix Index) Present(ids []string) []string {
	var dups []string
	for _, id := range ids {
		if ix.Contains(id) {
			dups = append(dups, id)
		}
	}
	return dups
}

// Without returns the ids not found in the index, in input order.
func (ix Index) Without(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !ix.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// IsDuplicate is the single-shot form of LoadIndex(path).Contains(id).
func IsDuplicate(id, path string) bool {
	return LoadIndex(path).Contains(id)
}
