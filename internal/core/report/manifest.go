package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Failure is one order that did not reach success.
type Failure struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// WriteManifest writes the failure manifest, replacing any previous one.
func WriteManifest(path string, failures []Failure, generatedAt time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Failed orders (%s)\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 50))
	for _, fl := range failures {
		fmt.Fprintf(w, "%s - %s\n", fl.OrderID, fl.Reason)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}
