package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rakheshkrishna2005/EchoStream/internal/queue"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// JobsHandler serves the job query surface. With the queue disabled the
// store is nil and every id is unknown.
type JobsHandler struct {
	store *queue.Store
}

// NewJobsHandler creates the handler.
func NewJobsHandler(store *queue.Store) *JobsHandler {
	return &JobsHandler{store: store}
}

// Get processes GET /jobs/:id. An unknown id, whether purged or never
// submitted, is a 404.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("id")

	if h.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	view, err := h.store.Get(jobID)
	if errors.Is(err, types.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	if err != nil {
		log.Printf("Job lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_lookup_failed"})
	}

	return c.JSON(fiber.Map{
		"id":     view.ID,
		"state":  view.State,
		"result": view.Result,
	})
}
