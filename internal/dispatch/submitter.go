package dispatch

import (
	"context"

	"github.com/rakheshkrishna2005/EchoStream/internal/metrics"
	"github.com/rakheshkrishna2005/EchoStream/internal/pipeline"
	"github.com/rakheshkrishna2005/EchoStream/internal/queue"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// Outcome of submitting one unit of work. Exactly one of JobID and Result
// is meaningful: a queued submission returns a handle, an inline one the
// completed result.
type Outcome struct {
	Queued bool
	JobID  string
	Result types.Result
}

// Submitter decides how a unit of work executes. The variant is selected
// once at startup from configuration; endpoints depend only on this
// interface.
type Submitter interface {
	Submit(ctx context.Context, payload types.Payload) (Outcome, error)
}

// Inline runs the work within the caller's lifetime and releases all temp
// files itself via the pipeline's cleanup scope.
type Inline struct {
	processor *pipeline.Processor
	metrics   *metrics.Metrics
}

// NewInline creates the inline strategy.
func NewInline(processor *pipeline.Processor, m *metrics.Metrics) *Inline {
	return &Inline{processor: processor, metrics: m}
}

// Submit executes the payload and returns the completed result.
func (s *Inline) Submit(ctx context.Context, payload types.Payload) (Outcome, error) {
	result, err := s.processor.Process(ctx, payload)
	s.metrics.RecordInlineRequest(err == nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: result}, nil
}

// Queued records the job durably and returns its handle immediately.
// Ownership of any staged file travels with the payload to the worker.
type Queued struct {
	store   *queue.Store
	metrics *metrics.Metrics
}

// NewQueued creates the queued strategy over the job store.
func NewQueued(store *queue.Store, m *metrics.Metrics) *Queued {
	return &Queued{store: store, metrics: m}
}

// Submit enqueues the payload without waiting for execution.
func (s *Queued) Submit(ctx context.Context, payload types.Payload) (Outcome, error) {
	jobID, err := s.store.Submit(payload)
	if err != nil {
		return Outcome{}, err
	}
	s.metrics.RecordJobSubmitted()
	return Outcome{Queued: true, JobID: jobID}, nil
}
