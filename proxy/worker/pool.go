// Package worker provides an asynchronous worker pool that persists recorded
// chat turns with the provided storage.Driver and publishes a turn event for
// each newly stored turn.
//
// The pool decouples storage operations from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is fully transparent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/veneer/pkg/eventstream"
	"github.com/papercomputeco/veneer/pkg/eventstream/nop"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Path is the proxy route that produced the turn.
	Path string
	Turn storage.Turn
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting turns.
	Driver storage.Driver

	// Publisher receives a TurnRecordedEvent for every newly stored turn.
	// Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// Source is copied into every published event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// OnStored is called after each turn is newly stored. Optional.
	OnStored func(storage.Turn)

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed",
			"turn_id", job.Turn.ID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"turn_id", job.Turn.ID,
			"model", job.Turn.Model,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"turn_id", job.Turn.ID,
			"model", job.Turn.Model,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
// Close is safe to call more than once; later calls return immediately.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob stores the turn and, when it was new, publishes its event.
// Publish failures are logged; the stored turn is kept.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
	defer cancel()

	inserted, err := p.config.Driver.Put(ctx, &job.Turn)
	if err != nil {
		p.logger.Error("async turn storage failed",
			"turn_id", job.Turn.ID,
			"error", err,
		)
		return
	}

	if !inserted {
		p.logger.Debug("turn already stored", "turn_id", job.Turn.ID)
		return
	}

	p.logger.Info("turn stored",
		"turn_id", job.Turn.ID,
		"model", job.Turn.Model,
		"prompt_tokens", job.Turn.PromptTokens,
		"completion_tokens", job.Turn.CompletionTokens,
	)

	if p.config.OnStored != nil {
		p.config.OnStored(job.Turn)
	}

	event := eventstream.NewTurnRecordedEvent(job.Turn, p.config.Source, job.Path, time.Now().UTC())
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			"turn_id", job.Turn.ID,
			"event_id", event.EventID,
			"error", err,
		)
	}
}
