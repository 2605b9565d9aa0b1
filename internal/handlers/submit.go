package handlers

import (
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rakheshkrishna2005/EchoStream/internal/dispatch"
	"github.com/rakheshkrishna2005/EchoStream/internal/media"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// SubmitHandler serves the one-shot work surfaces. It depends only on the
// Submitter strategy; whether work runs inline or queued was decided once
// at startup.
type SubmitHandler struct {
	submitter dispatch.Submitter
	files     *tempfiles.Manager
}

// NewSubmitHandler creates the handler.
func NewSubmitHandler(submitter dispatch.Submitter, files *tempfiles.Manager) *SubmitHandler {
	return &SubmitHandler{submitter: submitter, files: files}
}

// Finalize processes POST /api/finalize: an optional audio upload plus an
// optional partial transcript.
func (h *SubmitHandler) Finalize(c *fiber.Ctx) error {
	audioID := c.FormValue("audioId")
	if audioID == "" {
		audioID = "rest-" + uuid.New().String()
	}

	payload := types.Payload{Transcript: c.FormValue("transcript")}

	if file, err := c.FormFile("audio"); err == nil {
		path, err := h.stageUpload(c, file)
		if err != nil {
			log.Printf("Failed to stage uploaded file: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "finalize_failed"})
		}
		payload.AudioPath = path
	}

	outcome, err := h.submitter.Submit(c.UserContext(), payload)
	if err != nil {
		log.Printf("Finalize failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "finalize_failed"})
	}

	if outcome.Queued {
		return c.JSON(fiber.Map{
			"success": true,
			"queued":  true,
			"jobId":   outcome.JobID,
			"audioId": audioID,
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"audioId":    audioID,
		"transcript": outcome.Result.Transcript,
		"insights":   outcome.Result.Insights,
	})
}

// uploadRequest is the JSON body accepted by Upload when no file is sent.
type uploadRequest struct {
	AudioURL string `json:"audioUrl"`
}

// Upload processes POST /upload-audio: an audio upload or a remote URL.
func (h *SubmitHandler) Upload(c *fiber.Ctx) error {
	var payload types.Payload

	file, fileErr := c.FormFile("audio")
	payload.AudioURL = c.FormValue("audioUrl")
	if payload.AudioURL == "" && fileErr != nil {
		var req uploadRequest
		if err := c.BodyParser(&req); err == nil {
			payload.AudioURL = req.AudioURL
		}
	}

	if fileErr != nil && payload.AudioURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_audioUrl_or_audio"})
	}

	if fileErr == nil {
		if !media.ValidFormat(file.Filename) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_format"})
		}
		path, err := h.stageUpload(c, file)
		if err != nil {
			log.Printf("Failed to stage uploaded file: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "process_failed"})
		}
		payload.AudioPath = path
		payload.AudioURL = ""
	}

	outcome, err := h.submitter.Submit(c.UserContext(), payload)
	if err != nil {
		log.Printf("Upload processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "process_failed"})
	}

	if outcome.Queued {
		return c.JSON(fiber.Map{
			"success": true,
			"queued":  true,
			"jobId":   outcome.JobID,
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"transcript": outcome.Result.Transcript,
		"insights":   outcome.Result.Insights,
	})
}

// stageUpload saves the multipart file to a temp path. Ownership of the
// path transfers with the payload: the inline strategy's pipeline scope or
// the worker that dequeues the job releases it, never this handler.
func (h *SubmitHandler) stageUpload(c *fiber.Ctx, file *multipart.FileHeader) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(file.Filename), ".")
	path := h.files.NewPath(ext)

	if err := c.SaveFile(file, path); err != nil {
		h.files.Release(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}
