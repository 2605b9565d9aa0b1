package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

const (
	maxTopics      = 8
	maxActionItems = 12
)

// TextModel is the external insight engine: prompt in, raw text out.
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Builder derives {summary, topics, action items, sentiment} from a
// transcript. Each sub-call degrades independently to its default; a
// build that cannot start at all returns types.FailedInsights.
type Builder struct {
	model TextModel
}

// NewBuilder creates an insight builder over the given model.
func NewBuilder(model TextModel) *Builder {
	return &Builder{model: model}
}

// Build produces the insight structure. Sentiment runs concurrently with
// the summary; topics and action items require the summary and run
// concurrently with each other afterward.
func (b *Builder) Build(ctx context.Context, transcript string) types.Insights {
	if b.model == nil || ctx.Err() != nil {
		return types.FailedInsights()
	}

	out := types.DefaultInsights()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		out.Sentiment = b.sentiment(ctx, transcript)
	}()

	out.Summary = b.summarize(ctx, transcript)

	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Topics = b.topics(ctx, out.Summary)
	}()
	go func() {
		defer wg.Done()
		out.ActionItems = b.actionItems(ctx, out.Summary)
	}()

	wg.Wait()
	return out
}

func (b *Builder) summarize(ctx context.Context, transcript string) string {
	prompt := fmt.Sprintf(`You are a precise audio summarizer. Summarize the FULL transcript in <= 8 sentences.
Return plain text only (no JSON, no code fences).

FULL_TRANSCRIPT:
%s`, transcript)

	raw, err := b.model.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Insight summary call failed: %v", err)
		return ""
	}
	return strings.TrimSpace(raw)
}

func (b *Builder) topics(ctx context.Context, summary string) []string {
	prompt := fmt.Sprintf(`Given the audio summary below, list 3-8 topical tags as comma-separated values.
Plain text only. No quotes, no JSON, no code fences, no escape characters.

SUMMARY:
%s`, summary)

	raw, err := b.model.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Insight topics call failed: %v", err)
		return []string{}
	}
	return splitList(raw, maxTopics)
}

func (b *Builder) actionItems(ctx context.Context, summary string) []string {
	prompt := fmt.Sprintf(`From the audio summary below, extract concrete action items as a comma-separated list of short imperative phrases.
Plain text only. No JSON, no code fences, no escape characters.

SUMMARY:
%s`, summary)

	raw, err := b.model.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Insight action items call failed: %v", err)
		return []string{}
	}
	return splitList(raw, maxActionItems)
}

func (b *Builder) sentiment(ctx context.Context, transcript string) types.Sentiment {
	neutral := types.Sentiment{Label: "neutral", Score: 0.5}

	prompt := fmt.Sprintf(`Return ONLY JSON with this exact shape and no extra text:
{"sentiment": {"label": "positive|neutral|negative", "score": 0.0}}
Score must be in [0,1]. No code fences.

FULL_TRANSCRIPT:
%s`, transcript)

	raw, err := b.model.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Insight sentiment call failed: %v", err)
		return neutral
	}

	var parsed struct {
		Sentiment types.Sentiment `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		log.Printf("Insight sentiment reply unparseable: %v", err)
		return neutral
	}
	if parsed.Sentiment.Label == "" {
		return neutral
	}
	return parsed.Sentiment
}

// splitList parses a comma-separated model reply, dropping empties and
// capping the count.
func splitList(raw string, max int) []string {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// stripFences removes markdown code fences the model sometimes wraps
// otherwise well-formed JSON in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
