package batch

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"orderproof/internal/core/job"
)

type Handler struct {
	service *Service
	tasks   Enqueuer
	jobs    *job.JobService
}

func NewHandler(service *Service, tasks Enqueuer, jobs *job.JobService) *Handler {
	return &Handler{service: service, tasks: tasks, jobs: jobs}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type createResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

type statusResponse struct {
	Success bool `json:"success"`
	*job.Job
}

func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}
	if req.MaxRetries < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "max_retries must not be negative"})
	}
	id, err := h.service.Enqueue(c.Context(), h.tasks, req)
	if err != nil {
		if errors.Is(err, ErrNoOrders) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(createResponse{Success: true, JobID: id})
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "job_id is required"})
	}
	j, err := h.jobs.GetJobStatus(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "not_found"})
	}
	if j.Status == job.StatusPending || j.Status == job.StatusProcessing {
		return c.Status(fiber.StatusAccepted).JSON(statusResponse{Success: true, Job: j})
	}
	return c.JSON(statusResponse{Success: j.Status == job.StatusCompleted, Job: j})
}
