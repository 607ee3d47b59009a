package server

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderproof/internal/health"
	"orderproof/internal/metrics"
)

func TestRegisterRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed_orders.txt"), []byte("Failed orders"), 0o644))
	metrics.UploadAttempts.Inc()

	app := fiber.New()
	h := RegisterRoutes(app, Dependencies{
		Checks:   map[string]health.Check{"redis": func(context.Context) error { return nil }},
		FilesDir: dir,
	})
	h.SetReady()

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "orderproof_upload_attempts_total")

	resp, err = app.Test(httptest.NewRequest("GET", "/files/failed_orders.txt", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "Failed orders", string(body))
}
