package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rakheshkrishna2005/EchoStream/internal/audio"
)

// Engine is the speech-to-text collaborator. Its native input is a mono
// PCM signal at a fixed sample rate; TranscribeFile exists for the raw
// fallback path where decoding the input locally failed.
type Engine interface {
	TranscribeSamples(ctx context.Context, samples []float32, sampleRate int) (string, error)
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// EngineConfig contains speech engine client configuration.
type EngineConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPEngine talks to a whisper-compatible transcription server over
// multipart HTTP.
type HTTPEngine struct {
	config     EngineConfig
	httpClient *http.Client
}

// NewHTTPEngine creates an engine client for the configured endpoint.
func NewHTTPEngine(config EngineConfig) *HTTPEngine {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPEngine{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TranscribeSamples ships a mono signal to the engine as a PCM-16 WAV.
func (e *HTTPEngine) TranscribeSamples(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		pcm[i] = int16(s * 32767.0)
	}

	wavData, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode samples: %w", err)
	}

	return e.post(ctx, "samples.wav", bytes.NewReader(wavData))
}

// TranscribeFile ships the raw file to the engine unchanged.
func (e *HTTPEngine) TranscribeFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	return e.post(ctx, filepath.Base(path), f)
}

type engineResponse struct {
	Text string `json:"text"`
}

func (e *HTTPEngine) post(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if e.config.Model != "" {
		if err := mw.WriteField("model", e.config.Model); err != nil {
			return "", err
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(b))
	}

	var out engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse engine response: %w", err)
	}

	return strings.TrimSpace(out.Text), nil
}
