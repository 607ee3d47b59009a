package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderproof/internal/core/batch"
	"orderproof/internal/core/job"
	"orderproof/internal/health"
)

type Dependencies struct {
	Job    *job.JobService
	Batch  *batch.Service
	Tasks  batch.Enqueuer
	Checks map[string]health.Check
	// FilesDir is served under /files when set.
	FilesDir string
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Checks)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if d.FilesDir != "" {
		app.Static("/files", d.FilesDir)
	}

	api := app.Group("/v1")
	batchHandler := batch.NewHandler(d.Batch, d.Tasks, d.Job)
	api.Post("/batches", batchHandler.HandleCreate)
	api.Get("/batches/:jobId", batchHandler.HandleGet)

	return healthHandler
}
