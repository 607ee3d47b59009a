package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"orderproof/internal/logger"
)

// FileStore keeps the log as an indented JSON document on disk.
type FileStore struct {
	path string
	log  *logger.Logger
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, log: logger.New("Checkpoint"), now: time.Now}
}

func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Load(_ context.Context) LoadResult {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadResult{Status: StatusMissing}
	}
	if err != nil {
		s.log.LogWarnf("Could not read checkpoint %s: %v", s.path, err)
		return LoadResult{Status: StatusCorrupt, Err: err}
	}
	var l Log
	if err := json.Unmarshal(b, &l); err != nil {
		s.log.LogWarnf("Checkpoint %s is malformed, treating as empty: %v", s.path, err)
		return LoadResult{Status: StatusCorrupt, Err: err}
	}
	return LoadResult{Log: l, Status: StatusLoaded}
}

// Append rewrites the whole log with one more entry. A corrupt file is
// replaced rather than appended to.
func (s *FileStore) Append(ctx context.Context, orderID, reference string) error {
	res := s.Load(ctx)
	l := res.Log
	now := s.now()
	l.Entries = append(l.Entries, Entry{OrderID: orderID, Reference: reference, CompletedAt: now})
	l.UpdatedAt = &now
	return s.write(l)
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// write replaces the file atomically so an interrupt never leaves a torn log.
func (s *FileStore) write(l Log) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	b, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
