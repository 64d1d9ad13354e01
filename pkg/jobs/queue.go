package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a queued background task. Payload is pre-serialized by the producer
// so a job survives independently of the structs that built it.
type Job struct {
	ID       string
	Type     string
	Payload  []byte
	Attempt  int
	Enqueued time.Time
}

// Handler processes one job. A returned error triggers a retry.
type Handler func(context.Context, Job) error

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (cfg *QueueConfig) applyDefaults() {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Queue is an in-memory dispatcher for fire-and-forget work. Enqueue never
// blocks the producer: a full buffer drops the job and reports false. Failed
// jobs are retried up to MaxRetries and then dropped with a log line.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig

	ch      chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue that feeds jobs to handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	cfg.applyDefaults()
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		ch:      make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.cfg.Logger.Info("queue started",
		zap.String("queue", q.name), zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.cfg.Logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue offers a job to the workers without blocking. It reports false
// when the queue is not running or the buffer is full; the producer decides
// whether that is worth logging.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return false
	}

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.ch:
			q.process(job)
		}
	}
}

func (q *Queue) process(job Job) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			return
		}

		job.Attempt++
		if job.Attempt > q.cfg.MaxRetries {
			q.cfg.Logger.Error("job dropped after retries",
				zap.String("queue", q.name),
				zap.String("type", job.Type),
				zap.String("job_id", job.ID),
				zap.Error(err))
			return
		}
		q.cfg.Logger.Warn("job failed, retrying",
			zap.String("queue", q.name),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(q.cfg.RetryDelay):
		}
	}
}
