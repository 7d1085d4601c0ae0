package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/metrics"
)

// MatchRunner performs one matching pass.
type MatchRunner interface {
	RunMatchPass(ctx context.Context, requestID uuid.UUID) error
}

type QueueConfig struct {
	Workers     int
	Size        int
	MaxAttempts int
	PassTimeout time.Duration
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

func (c *QueueConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Size <= 0 {
		c.Size = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 30 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

// MatchQueue runs matching passes on a fixed pool of workers. Tasks are
// detached from the caller's context.
type MatchQueue struct {
	runner  MatchRunner
	cfg     QueueConfig
	tasks   chan uuid.UUID
	abort   chan struct{}
	aborted sync.Once
	wg      sync.WaitGroup
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewMatchQueue(runner MatchRunner, cfg QueueConfig, m *metrics.Metrics, logger zerolog.Logger) *MatchQueue {
	cfg.defaults()
	return &MatchQueue{
		runner:  runner,
		cfg:     cfg,
		tasks:   make(chan uuid.UUID, cfg.Size),
		abort:   make(chan struct{}),
		metrics: m,
		logger:  logger.With().Str("component", "match_queue").Logger(),
	}
}

// Start launches the workers. Calling it twice has no effect.
func (q *MatchQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Enqueue hands a task to the workers without blocking. A full or stopped
// queue drops the task and returns false.
func (q *MatchQueue) Enqueue(requestID uuid.UUID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.tasks <- requestID:
		q.metrics.SetQueueDepth(len(q.tasks))
		return true
	default:
		q.metrics.IncQueueDropped()
		return false
	}
}

// Stop refuses new tasks and waits for queued ones to finish. When ctx
// ends first, pending retries are abandoned and ctx's error is returned.
func (q *MatchQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.aborted.Do(func() { close(q.abort) })
		return ctx.Err()
	}
}

func (q *MatchQueue) work() {
	defer q.wg.Done()
	for id := range q.tasks {
		q.metrics.SetQueueDepth(len(q.tasks))
		q.process(id)
	}
}

func (q *MatchQueue) process(requestID uuid.UUID) {
	log := q.logger.With().Str("request_id", requestID.String()).Logger()

	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.PassTimeout)
		err := q.runner.RunMatchPass(ctx, requestID)
		cancel()
		if err == nil {
			q.metrics.IncMatchPass("succeeded")
			return
		}
		if apperr.IsKind(err, apperr.KindNotFound) {
			q.metrics.IncMatchPass("failed")
			log.Warn().Err(err).Msg("matching pass for missing request")
			return
		}
		if attempt == q.cfg.MaxAttempts {
			q.metrics.IncMatchPass("failed")
			log.Error().Err(err).Int("attempt", attempt).Msg("matching pass failed, giving up")
			return
		}

		q.metrics.IncMatchPass("retried")
		log.Warn().Err(err).Int("attempt", attempt).Msg("matching pass failed, retrying")
		select {
		case <-time.After(q.cfg.Backoff * time.Duration(attempt)):
		case <-q.abort:
			log.Warn().Int("attempt", attempt).Msg("matching pass abandoned on shutdown")
			return
		}
	}
}
