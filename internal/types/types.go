package types

import "errors"

// Job state constants as observed through the query API.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Error taxonomy for the orchestration layer. Adapter failures are wrapped
// around one of these so handlers and workers can classify without parsing
// messages.
var (
	ErrValidation          = errors.New("missing required input")
	ErrMediaFetch          = errors.New("media download failed")
	ErrExtraction          = errors.New("audio extraction failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrJobNotFound         = errors.New("job not found")
)

// Payload describes one unit of work. At least one field is set.
type Payload struct {
	Transcript string `json:"transcript,omitempty"`
	AudioPath  string `json:"audioPath,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
}

// Sentiment is the label/score pair derived from a full transcript.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Insights is the structure derived from a transcript.
type Insights struct {
	Summary     string    `json:"summary"`
	Topics      []string  `json:"topics"`
	ActionItems []string  `json:"action_items"`
	Sentiment   Sentiment `json:"sentiment"`
}

// Result is the terminal output of one inline request or one job.
type Result struct {
	Transcript string   `json:"transcript"`
	Insights   Insights `json:"insights"`
}

// DefaultInsights returns the empty structure used when every insight
// sub-call degrades. A 0.5 sentiment score marks per-call degradation;
// a build that could not start at all uses FailedInsights.
func DefaultInsights() Insights {
	return Insights{
		Topics:      []string{},
		ActionItems: []string{},
		Sentiment:   Sentiment{Label: "neutral", Score: 0.5},
	}
}

// FailedInsights marks an insight build that could not even start.
func FailedInsights() Insights {
	return Insights{
		Topics:      []string{},
		ActionItems: []string{},
		Sentiment:   Sentiment{Label: "neutral", Score: 0},
	}
}
