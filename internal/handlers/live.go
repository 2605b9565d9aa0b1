package handlers

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/gofiber/websocket/v2"

	"github.com/rakheshkrishna2005/EchoStream/internal/insights"
	"github.com/rakheshkrishna2005/EchoStream/internal/metrics"
	"github.com/rakheshkrishna2005/EchoStream/internal/session"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// Transcriber is the per-chunk transcription dependency of the live handler.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// wsEvent is the JSON frame exchanged over the live channel, both
// directions. Data carries base64-encoded audio bytes on audio_chunk.
type wsEvent struct {
	Event     string `json:"event"`
	AudioID   string `json:"audioId,omitempty"`
	AudioName string `json:"audioName,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Ext       string `json:"ext,omitempty"`
}

// LiveHandler handles streaming transcription sessions over WebSocket.
type LiveHandler struct {
	registry    *session.Registry
	transcriber Transcriber
	builder     *insights.Builder
	files       *tempfiles.Manager
	metrics     *metrics.Metrics
}

// NewLiveHandler creates the handler.
func NewLiveHandler(registry *session.Registry, transcriber Transcriber, builder *insights.Builder, files *tempfiles.Manager, m *metrics.Metrics) *LiveHandler {
	return &LiveHandler{
		registry:    registry,
		transcriber: transcriber,
		builder:     builder,
		files:       files,
		metrics:     m,
	}
}

// Handle processes one WebSocket connection. One connection drives at
// most one session at a time; a connection that drops before end_audio
// tears the session down silently.
func (h *LiveHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	if ok, _ := c.Locals("authorized").(bool); !ok {
		h.send(c, map[string]any{"event": "error", "error": "unauthorized"})
		return
	}

	var activeID string

	log.Printf("WebSocket connection established")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev wsEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Printf("WebSocket bad frame: %v", err)
			continue
		}

		switch ev.Event {
		case "start_audio":
			s := h.registry.Start(ev.AudioID, ev.AudioName)
			activeID = s.ID
			h.metrics.RecordSessionStarted()
			h.metrics.SetActiveSessions(h.registry.Len())
			h.send(c, map[string]any{
				"event":     "audio_started",
				"audioId":   s.ID,
				"audioName": s.DisplayName,
			})

		case "audio_chunk":
			fragment, ok := h.chunkFragment(activeID, ev)
			if !ok {
				continue
			}
			h.send(c, map[string]any{
				"event": "partial_transcript",
				"text":  fragment,
			})

		case "end_audio":
			if activeID == "" {
				continue
			}
			h.finalize(c, activeID)
			activeID = ""
			h.metrics.SetActiveSessions(h.registry.Len())

		default:
			log.Printf("WebSocket unknown event %q", ev.Event)
		}
	}

	// Disconnect without end_audio discards the session outright. No
	// events are emitted; the peer is gone.
	if activeID != "" {
		h.registry.Finalize(activeID)
		h.metrics.SetActiveSessions(h.registry.Len())
		log.Printf("Session %s discarded on disconnect", activeID)
	}
}

// chunkFragment processes one audio_chunk against the live session.
// A chunk for a session that no longer exists, including one finalized
// through another connection, is a silent no-op: no transcription work
// and no emit.
func (h *LiveHandler) chunkFragment(activeID string, ev wsEvent) (string, bool) {
	if activeID == "" || !h.registry.Live(activeID) {
		return "", false
	}
	fragment := h.transcribeChunk(ev)
	if fragment == "" {
		return "", false
	}
	if !h.registry.Append(activeID, fragment) {
		return "", false
	}
	return fragment, true
}

// transcribeChunk stages the chunk bytes in a temp file, transcribes
// them, and returns the fragment. Failures are logged and skipped so a
// bad chunk never ends the stream.
func (h *LiveHandler) transcribeChunk(ev wsEvent) string {
	if len(ev.Data) == 0 {
		h.metrics.RecordChunk(false)
		return ""
	}

	ext := strings.TrimPrefix(ev.Ext, ".")
	if ext == "" {
		ext = "wav"
	}

	scope := h.files.NewScope()
	defer scope.Close()

	path := scope.NewPath(ext)
	if err := os.WriteFile(path, ev.Data, 0644); err != nil {
		log.Printf("Chunk stage failed: %v", err)
		h.metrics.RecordChunk(false)
		return ""
	}

	text, err := h.transcriber.TranscribeFile(context.Background(), path)
	if err != nil {
		log.Printf("Chunk transcription failed: %v", err)
		h.metrics.RecordChunk(false)
		return ""
	}

	h.metrics.RecordChunk(true)
	return text
}

// finalize closes the session and emits audio_final. Insight building
// runs under a recover so a panic there still reports failure to the
// peer instead of killing the connection goroutine.
func (h *LiveHandler) finalize(c *websocket.Conn, id string) {
	transcript, _, ok := h.registry.Finalize(id)
	if !ok {
		return
	}
	h.metrics.RecordSessionFinalized()

	final, err := h.buildFinal(transcript)
	if err != nil {
		h.send(c, map[string]any{
			"event":   "audio_final",
			"audioId": id,
			"error":   "finalize_failed",
		})
		return
	}

	h.send(c, map[string]any{
		"event":      "audio_final",
		"audioId":    id,
		"transcript": transcript,
		"insights":   final,
	})
}

func (h *LiveHandler) buildFinal(transcript string) (ins types.Insights, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Insight build panic: %v", r)
			err = types.ErrTranscriptionFailed
		}
	}()
	return h.builder.Build(context.Background(), transcript), nil
}

func (h *LiveHandler) send(c *websocket.Conn, payload map[string]any) {
	if err := c.WriteJSON(payload); err != nil {
		log.Printf("WebSocket write error: %v", err)
	}
}
