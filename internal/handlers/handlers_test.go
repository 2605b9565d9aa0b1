package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rakheshkrishna2005/EchoStream/internal/dispatch"
	"github.com/rakheshkrishna2005/EchoStream/internal/insights"
	"github.com/rakheshkrishna2005/EchoStream/internal/pipeline"
	"github.com/rakheshkrishna2005/EchoStream/internal/queue"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// echoTranscriber returns a fixed fragment for any file.
type echoTranscriber struct {
	text string
}

func (e *echoTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	return e.text, nil
}

// cannedModel answers insight prompts by marker substring.
type cannedModel struct{}

func (cannedModel) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "summarizer"):
		return "Short recap of the conversation.", nil
	case strings.Contains(prompt, "topical tags"):
		return "recap, testing", nil
	case strings.Contains(prompt, "action items"):
		return "follow up", nil
	case strings.Contains(prompt, "Return ONLY JSON"):
		return `{"sentiment": {"label": "neutral", "score": 0.6}}`, nil
	}
	return "", nil
}

func newTestApp(t *testing.T, submitter dispatch.Submitter, store *queue.Store, token string) *fiber.App {
	t.Helper()

	files, err := tempfiles.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	submitHandler := NewSubmitHandler(submitter, files)
	jobsHandler := NewJobsHandler(store)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api := app.Group("/", Bearer(token))
	api.Post("/api/finalize", submitHandler.Finalize)
	api.Post("/upload-audio", submitHandler.Upload)
	api.Get("/jobs/:id", jobsHandler.Get)

	return app
}

func newInlineSubmitter(t *testing.T, transcript string) dispatch.Submitter {
	t.Helper()

	files, err := tempfiles.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	builder := insights.NewBuilder(cannedModel{})
	processor := pipeline.NewProcessor(&echoTranscriber{text: transcript}, builder, files)
	return dispatch.NewInline(processor, nil)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return out
}

func multipartForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestHealthUnauthenticated(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "secret")

	resp, err := app.Test(newRequest("GET", "/health", nil, ""))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestBearerRejections(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "secret")

	resp, err := app.Test(newRequest("GET", "/jobs/abc", nil, ""))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", resp.StatusCode)
	}

	resp, err = app.Test(newRequest("GET", "/jobs/abc", nil, "Bearer wrong"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("bad token: status = %d, want 403", resp.StatusCode)
	}

	// A valid credential reaches the handler; the unknown id is a 404.
	resp, err = app.Test(newRequest("GET", "/jobs/abc", nil, "Bearer secret"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("good token: status = %d, want 404", resp.StatusCode)
	}
}

func TestBearerUnconfiguredRejectsAll(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "")

	resp, err := app.Test(newRequest("GET", "/jobs/abc", nil, "Bearer anything"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestFinalizeInlineTranscriptOnly(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "secret")

	body, contentType := multipartForm(t, map[string]string{"transcript": "hello world"})
	req := newRequest("POST", "/api/finalize", body, "Bearer secret")
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody(t, resp)
	if got["success"] != true {
		t.Errorf("success = %v", got["success"])
	}
	if got["transcript"] != "hello world" {
		t.Errorf("transcript = %v", got["transcript"])
	}
	if id, _ := got["audioId"].(string); !strings.HasPrefix(id, "rest-") {
		t.Errorf("audioId = %v, want rest- prefix", got["audioId"])
	}
	ins, ok := got["insights"].(map[string]any)
	if !ok {
		t.Fatalf("insights missing: %v", got["insights"])
	}
	for _, key := range []string{"summary", "topics", "action_items", "sentiment"} {
		if _, present := ins[key]; !present {
			t.Errorf("insights missing %q: %v", key, ins)
		}
	}
}

func TestUploadRequiresFileOrURL(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "secret")

	body, contentType := multipartForm(t, map[string]string{})
	req := newRequest("POST", "/upload-audio", body, "Bearer secret")
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeBody(t, resp); got["error"] != "missing_audioUrl_or_audio" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestUploadRejectsUnknownFormat(t *testing.T) {
	app := newTestApp(t, newInlineSubmitter(t, ""), nil, "secret")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("not audio")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := newRequest("POST", "/upload-audio", &buf, "Bearer secret")
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeBody(t, resp); got["error"] != "unsupported_format" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestFinalizeQueuedReturnsJobID(t *testing.T) {
	store, err := queue.NewStore(filepath.Join(t.TempDir(), "jobs.db"), queue.DefaultRetention())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	app := newTestApp(t, dispatch.NewQueued(store, nil), store, "secret")

	body, contentType := multipartForm(t, map[string]string{"transcript": "queued text"})
	req := newRequest("POST", "/api/finalize", body, "Bearer secret")
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody(t, resp)
	if got["queued"] != true {
		t.Fatalf("queued = %v", got["queued"])
	}
	jobID, _ := got["jobId"].(string)
	if jobID == "" {
		t.Fatal("missing jobId")
	}

	state, err := store.State(jobID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != types.StateWaiting {
		t.Errorf("state = %q, want %q", state, types.StateWaiting)
	}

	// The handle is queryable immediately.
	resp, err = app.Test(newRequest("GET", "/jobs/"+jobID, nil, "Bearer secret"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("job lookup status = %d, want 200", resp.StatusCode)
	}
	view := decodeBody(t, resp)
	if view["id"] != jobID || view["state"] != types.StateWaiting {
		t.Errorf("job view = %v", view)
	}
	if view["result"] != nil {
		t.Errorf("result = %v, want null", view["result"])
	}
}

func TestJobsUnknownID(t *testing.T) {
	store, err := queue.NewStore(filepath.Join(t.TempDir(), "jobs.db"), queue.DefaultRetention())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	app := newTestApp(t, dispatch.NewQueued(store, nil), store, "secret")

	resp, err := app.Test(newRequest("GET", "/jobs/no-such-job", nil, "Bearer secret"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := decodeBody(t, resp); got["error"] != "not_found" {
		t.Errorf("error = %v", got["error"])
	}
}

func newRequest(method, target string, body io.Reader, authorization string) *http.Request {
	req, _ := http.NewRequest(method, target, body)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}
