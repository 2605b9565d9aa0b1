package pipeline

import (
	"context"
	"fmt"

	"github.com/rakheshkrishna2005/EchoStream/internal/insights"
	"github.com/rakheshkrishna2005/EchoStream/internal/media"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// DownloadFunc fetches a remote media resource into dir.
type DownloadFunc func(ctx context.Context, url, dir string) (string, error)

// ExtractFunc converts a media file into engine-ready audio inside dir.
type ExtractFunc func(ctx context.Context, inputPath, dir string) (string, error)

// Transcriber is the transcription adapter surface the pipeline needs.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Processor runs one unit of work end to end: reconstruct inputs from the
// payload, transcribe, build insights. It is shared by the inline request
// path and the worker pool so both produce the same logical result.
type Processor struct {
	transcriber Transcriber
	builder     *insights.Builder
	files       *tempfiles.Manager
	download    DownloadFunc
	extract     ExtractFunc
}

// NewProcessor creates a processor over the two adapters.
func NewProcessor(transcriber Transcriber, builder *insights.Builder, files *tempfiles.Manager) *Processor {
	return &Processor{
		transcriber: transcriber,
		builder:     builder,
		files:       files,
		download:    media.Download,
		extract:     media.ExtractAudio,
	}
}

// Process executes the payload. Every temp file touched during the unit of
// work, including an audio path staged by the submitter, is released
// before return on success and failure alike.
func (p *Processor) Process(ctx context.Context, payload types.Payload) (types.Result, error) {
	scope := p.files.NewScope()
	defer scope.Close()

	// A staged upload's ownership was transferred with the payload.
	scope.Track(payload.AudioPath)

	transcript := payload.Transcript

	switch {
	case payload.AudioPath != "":
		text, err := p.transcriber.TranscribeFile(ctx, payload.AudioPath)
		if err != nil {
			return types.Result{}, err
		}
		transcript = joinTranscript(transcript, text)

	case payload.AudioURL != "":
		mediaPath, err := p.download(ctx, payload.AudioURL, p.files.Dir())
		if mediaPath != "" {
			scope.Track(mediaPath)
		}
		if err != nil {
			return types.Result{}, err
		}

		audioPath, err := p.extract(ctx, mediaPath, p.files.Dir())
		if audioPath != "" {
			scope.Track(audioPath)
		}
		if err != nil {
			return types.Result{}, err
		}

		text, err := p.transcriber.TranscribeFile(ctx, audioPath)
		if err != nil {
			return types.Result{}, err
		}
		transcript = joinTranscript(transcript, text)
	}

	return types.Result{
		Transcript: transcript,
		Insights:   p.builder.Build(ctx, transcript),
	}, nil
}

func joinTranscript(existing, chunk string) string {
	if existing == "" {
		return chunk
	}
	return fmt.Sprintf("%s\n%s", existing, chunk)
}
