// Package storage implements upload.Backend for Supabase Storage and for a
// local directory served under /files.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"orderproof/internal/config"
	"orderproof/internal/core/upload"
)

// Local copies evidence under <root>/<container>/ and shares it as a path
// below PublicBase. Only meant for development and the demo server.
type Local struct {
	root       string
	publicBase string
}

func NewLocal(root, publicBase string) *Local {
	return &Local{root: root, publicBase: strings.TrimRight(publicBase, "/")}
}

func (l *Local) Ping(_ context.Context) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", upload.ErrUnavailable, err)
	}
	return nil
}

func (l *Local) Put(_ context.Context, container, name string, r io.Reader, _ string) (string, error) {
	dir := filepath.Join(l.root, filepath.FromSlash(container))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(name))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path.Join(container, filepath.Base(name)), nil
}

func (l *Local) Share(_ context.Context, _, objectID string) (string, error) {
	if _, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(objectID))); err != nil {
		return "", err
	}
	return l.publicBase + "/" + objectID, nil
}

// New picks the backend named by cfg.StorageBackend.
func New(cfg config.Config) (upload.Backend, string, error) {
	switch cfg.StorageBackend {
	case "local":
		return NewLocal(cfg.DataDir, "/files"), "evidence", nil
	case "supabase":
		s, err := NewSupabase(cfg)
		if err != nil {
			return nil, "", err
		}
		return s, cfg.SupabaseBucket, nil
	}
	return nil, "", fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
