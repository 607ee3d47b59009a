package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderproof/internal/config"
	"orderproof/internal/console"
	"orderproof/internal/core/capture"
	"orderproof/internal/core/checkpoint"
	"orderproof/internal/core/pipeline"
	"orderproof/internal/core/report"
)

type stubCapturer struct {
	dir  string
	fail map[string]bool
}

func (s *stubCapturer) Capture(_ context.Context, id string) (string, error) {
	if s.fail[id] {
		return "", assert.AnError
	}
	p := filepath.Join(s.dir, id+".png")
	return p, os.WriteFile(p, []byte("png"), 0o644)
}

// setupEnv points every path the CLI touches at a temp dir and selects the
// local storage backend.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ORDERPROOF_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("CHECKPOINT_BACKEND", "file")
	t.Setenv("CAPTURE_MODE", "manual")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("CHECKPOINT_PATH", filepath.Join(dir, "processed_orders.json"))
	t.Setenv("REPORT_PATH", filepath.Join(dir, "order_report.xlsx"))
	t.Setenv("MANIFEST_PATH", filepath.Join(dir, "failed_orders.txt"))
	t.Setenv("UPLOAD_BASE_DELAY_MS", "1")
	return dir
}

func execute(t *testing.T, factory capturerFactory, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func stubFactory(c capture.Capturer) capturerFactory {
	return func(context.Context, config.Config, *console.LineReader, io.Writer) (capture.Capturer, func(), error) {
		return c, func() {}, nil
	}
}

func TestCollectOrderIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(file, []byte("250422cccc3333\n250422AAAA1111"), 0o644))

	ids, err := collectOrderIDs(ctx, []string{"250422AAAA1111, 250422bbbb2222"}, file, console.NewLineReader(strings.NewReader("")), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"250422AAAA1111", "250422BBBB2222", "250422CCCC3333"}, ids)

	var out bytes.Buffer
	ids, err = collectOrderIDs(ctx, nil, "", console.NewLineReader(strings.NewReader("250422AAAA1111,250422BBBB2222\n250422CCCC3333\n\nignored\n")), &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"250422AAAA1111", "250422BBBB2222", "250422CCCC3333"}, ids)
	assert.Contains(t, out.String(), "Finish with an empty line")

	_, err = collectOrderIDs(ctx, nil, filepath.Join(dir, "nope.txt"), console.NewLineReader(strings.NewReader("")), io.Discard)
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	dir := setupEnv(t)
	shots := t.TempDir()
	c := &stubCapturer{dir: shots, fail: map[string]bool{"250422BBBB2222": true}}

	out, err := execute(t, stubFactory(c), "", "run", "--yes", "250422AAAA1111", "250422BBBB2222")
	require.NoError(t, err)
	assert.Contains(t, out, "Succeeded:  1/2")
	assert.Contains(t, out, "Failed:     1")
	assert.Contains(t, out, "Next steps:")

	rows, err := report.ReadRows(filepath.Join(dir, "order_report.xlsx"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "250422AAAA1111", rows[0].OrderID)
	assert.True(t, strings.HasPrefix(rows[0].Evidence, "/files/evidence/"))

	manifest, err := os.ReadFile(filepath.Join(dir, "failed_orders.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "250422BBBB2222")

	res := checkpoint.NewFileStore(filepath.Join(dir, "processed_orders.json")).Load(context.Background())
	require.Equal(t, checkpoint.StatusLoaded, res.Status)
	require.Len(t, res.Log.Entries, 1)
	assert.Equal(t, "250422AAAA1111", res.Log.Entries[0].OrderID)
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	dir := setupEnv(t)
	store := checkpoint.NewFileStore(filepath.Join(dir, "processed_orders.json"))
	require.NoError(t, store.Append(context.Background(), "250422AAAA1111", "/files/evidence/old.png"))
	_, err := report.NewAccumulator().Append([]report.Entry{{OrderID: "250422AAAA1111", Evidence: "/files/evidence/old.png"}},
		filepath.Join(dir, "order_report.xlsx"))
	require.NoError(t, err)

	c := &stubCapturer{dir: t.TempDir()}
	out, err := execute(t, stubFactory(c), "", "run", "--resume", "--yes", "250422AAAA1111", "250422BBBB2222")
	require.NoError(t, err)
	assert.Contains(t, out, "Resumed:    1 already processed")
	assert.Contains(t, out, "Succeeded:  1/1")
}

func TestRunExcludeDuplicatesKeepsNewOrders(t *testing.T) {
	dir := setupEnv(t)
	reportPath := filepath.Join(dir, "order_report.xlsx")
	_, err := report.NewAccumulator().Append([]report.Entry{{OrderID: "250422AAAA1111", Evidence: "old"}}, reportPath)
	require.NoError(t, err)

	c := &stubCapturer{dir: t.TempDir()}
	out, err := execute(t, stubFactory(c), "", "run", "--yes", "--exclude-duplicates", "250422AAAA1111", "250422BBBB2222")
	require.NoError(t, err)
	assert.Contains(t, out, "Excluded:   1 already in report")
	assert.Contains(t, out, "Succeeded:  1/1")

	rows, err := report.ReadRows(reportPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "250422BBBB2222", rows[1].OrderID)
}

func TestRunAllFailedIsAnError(t *testing.T) {
	setupEnv(t)
	c := &stubCapturer{dir: t.TempDir(), fail: map[string]bool{"250422AAAA1111": true}}
	_, err := execute(t, stubFactory(c), "", "run", "--yes", "250422AAAA1111")
	assert.ErrorIs(t, err, pipeline.ErrNoSuccess)
}

func TestRunRejectsBadMode(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, stubFactory(&stubCapturer{}), "", "run", "--mode", "robot", "250422AAAA1111")
	assert.ErrorContains(t, err, "CAPTURE_MODE")
}

func TestUploadCommand(t *testing.T) {
	setupEnv(t)
	src := t.TempDir()
	a := filepath.Join(src, "a.png")
	require.NoError(t, os.WriteFile(a, []byte("png"), 0o644))

	out, err := execute(t, stubFactory(nil), "", "upload", a, filepath.Join(src, "missing.png"))
	require.NoError(t, err)
	assert.Contains(t, out, "/files/evidence/a.png")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "1 of 2 uploads failed")

	_, err = execute(t, stubFactory(nil), "", "upload", filepath.Join(src, "missing.png"))
	assert.ErrorContains(t, err, "all 1 uploads failed")
}

func TestCheckpointShowAndClear(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "processed_orders.json")

	out, err := execute(t, stubFactory(nil), "", "checkpoint", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(missing)")
	assert.Contains(t, out, "Processed orders: none")

	require.NoError(t, checkpoint.NewFileStore(path).Append(context.Background(), "250422AAAA1111", "ref-a"))
	out, err = execute(t, stubFactory(nil), "", "checkpoint", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "250422AAAA1111")
	assert.Contains(t, out, "ref-a")

	out, err = execute(t, stubFactory(nil), "", "checkpoint", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared "+path)
	assert.Equal(t, checkpoint.StatusMissing, checkpoint.NewFileStore(path).Load(context.Background()).Status)
}

func TestConfigFlagReadsYAML(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("STORAGE_BACKEND", "")
	cfgPath := filepath.Join(dir, "orderproof.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: ftp\n"), 0o644))

	_, err := execute(t, stubFactory(nil), "", "--config", cfgPath, "checkpoint", "show")
	assert.ErrorContains(t, err, "STORAGE_BACKEND")
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &pipeline.Summary{
		Requested: 2,
		WorkSet:   2,
		Succeeded: 1,
		Failed:    1,
		Results: []pipeline.ItemResult{
			{OrderID: "250422AAAA1111", Outcome: pipeline.Succeeded, Reference: "https://x/a.png"},
			{OrderID: "250422BBBB2222", Outcome: pipeline.CaptureFailed, Reason: "capture failed: timeout"},
		},
		ReportPath:   "order_report.xlsx",
		ManifestPath: "failed_orders.txt",
	})
	s := out.String()
	assert.Contains(t, s, "https://x/a.png")
	assert.Contains(t, s, "capture failed: timeout")
	assert.Contains(t, s, "Succeeded:  1/2")
	assert.Contains(t, s, "4. Retry the orders listed in failed_orders.txt")

	out.Reset()
	printSummary(&out, nil)
	assert.Empty(t, out.String())
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := execute(t, stubFactory(nil), "")
	require.NoError(t, err)
	for _, name := range []string{"run", "upload", "checkpoint", "detect", "serve"} {
		assert.Contains(t, out, name)
	}
}
