package queue

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rakheshkrishna2005/EchoStream/internal/metrics"
	"github.com/rakheshkrishna2005/EchoStream/internal/pipeline"
	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

const idlePollInterval = 500 * time.Millisecond

// Pool consumes jobs from the store at a fixed concurrency. Each job runs
// the shared pipeline and reaches exactly one terminal state; every temp
// file the execution touched, including ones staged by the submitter, is
// released before the job is marked terminal.
type Pool struct {
	store       *Store
	processor   *pipeline.Processor
	workerCount int
	metrics     *metrics.Metrics

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a worker pool of workerCount consumers.
func NewPool(workerCount int, store *Store, processor *pipeline.Processor, m *metrics.Metrics) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		store:       store,
		processor:   processor,
		workerCount: workerCount,
		metrics:     m,
		stop:        make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	log.Printf("Starting worker pool with %d workers", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// worker claims and processes jobs until stopped.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		jobID, payload, ok, err := p.store.Claim()
		if err != nil {
			log.Printf("Worker %d: claim failed: %v", id, err)
			ok = false
		}

		if !ok {
			select {
			case <-p.stop:
				return
			case <-p.store.Wake():
			case <-time.After(idlePollInterval):
			}
			continue
		}

		p.runJob(id, jobID, payload)
	}
}

// runJob executes one claimed job with panic recovery, so a crashing job
// still reaches a terminal state instead of corrupting the queue.
func (p *Pool) runJob(workerID int, jobID string, payload types.Payload) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
				workerID, jobID, r, string(debug.Stack()))
			if err := p.store.Fail(jobID, fmt.Sprintf("worker panic: %v", r)); err != nil {
				log.Printf("Worker %d: failed to record panic for job %s: %v", workerID, jobID, err)
			}
		}
	}()

	log.Printf("Worker %d: processing job %s", workerID, jobID)
	started := time.Now()

	result, err := p.processor.Process(context.Background(), payload)
	if err != nil {
		log.Printf("Worker %d: job %s failed: %v", workerID, jobID, err)
		if ferr := p.store.Fail(jobID, err.Error()); ferr != nil {
			log.Printf("Worker %d: failed to mark job %s failed: %v", workerID, jobID, ferr)
		}
		p.metrics.RecordJobFailed(time.Since(started).Seconds())
		return
	}

	if err := p.store.Complete(jobID, result); err != nil {
		log.Printf("Worker %d: failed to mark job %s completed: %v", workerID, jobID, err)
		return
	}

	p.metrics.RecordJobCompleted(time.Since(started).Seconds())
	log.Printf("Worker %d: job %s completed", workerID, jobID)
}
