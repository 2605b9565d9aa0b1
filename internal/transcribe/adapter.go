package transcribe

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rakheshkrishna2005/EchoStream/internal/audio"
	"github.com/rakheshkrishna2005/EchoStream/internal/media"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// ExtractFunc converts a media file into a 16kHz mono WAV inside dir.
type ExtractFunc func(ctx context.Context, inputPath, dir string) (string, error)

// Adapter is the uniform interface over the speech engine. Non-native
// inputs are normalized via the extraction collaborator; the resulting
// temp file is owned here and released regardless of outcome.
type Adapter struct {
	engine  Engine
	files   *tempfiles.Manager
	extract ExtractFunc
}

// NewAdapter creates a transcription adapter.
func NewAdapter(engine Engine, files *tempfiles.Manager) *Adapter {
	return &Adapter{
		engine:  engine,
		files:   files,
		extract: media.ExtractAudio,
	}
}

// TranscribeFile transcribes any supported audio file. A failure anywhere
// in the decode path triggers exactly one fallback attempt with the
// original unconverted input; if that also fails, the original error is
// the one surfaced.
func (a *Adapter) TranscribeFile(ctx context.Context, path string) (string, error) {
	text, primaryErr := a.transcribeDecoded(ctx, path)
	if primaryErr == nil {
		return text, nil
	}

	log.Printf("Decode path failed for %s, trying raw input: %v", filepath.Base(path), primaryErr)
	if text, err := a.engine.TranscribeFile(ctx, path); err == nil {
		return text, nil
	}

	return "", fmt.Errorf("%w: %v", types.ErrTranscriptionFailed, primaryErr)
}

// transcribeDecoded runs the native path: normalize to WAV if needed,
// decode, downmix to mono, hand the signal to the engine.
func (a *Adapter) transcribeDecoded(ctx context.Context, path string) (string, error) {
	scope := a.files.NewScope()
	defer scope.Close()

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		converted, err := a.extract(ctx, path, a.files.Dir())
		if converted != "" {
			scope.Track(converted)
		}
		if err != nil {
			return "", err
		}
		wavPath = converted
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}

	samples, channels, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return "", err
	}

	mono := audio.DownmixMono(samples, channels)
	return a.engine.TranscribeSamples(ctx, mono, sampleRate)
}
