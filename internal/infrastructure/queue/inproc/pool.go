package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

// Pool runs dispatched jobs on a fixed set of goroutines inside the current process.
type Pool struct {
	runner  ports.JobRunner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan domain.JobTicket
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan domain.JobTicket, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(runner ports.JobRunner, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan domain.JobTicket, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Info("worker started", "worker_id", workerID)

				for ticket := range p.ch {
					p.run(workerID, ticket)
				}

				p.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, ticket domain.JobTicket) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.runner.Run(ctx, ticket); err != nil {
		p.logger.Error("job run failed", "worker_id", workerID, "job_id", ticket.JobID, "error", err)
		return
	}
	p.logger.Info("job run finished", "worker_id", workerID, "job_id", ticket.JobID)
}

// Dispatch queues the ticket. A full queue blocks until space frees up or ctx ends.
func (p *Pool) Dispatch(ctx context.Context, ticket domain.JobTicket) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.WrapError(domain.ErrTemporary, "dispatch job", errors.New("worker pool is shutting down"))
	}

	select {
	case p.ch <- ticket:
		p.logger.Info("queued job for processing", "job_id", ticket.JobID)
		return nil
	default:
	}

	p.logger.Warn("queue full, applying backpressure", "job_id", ticket.JobID)
	select {
	case p.ch <- ticket:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "dispatch job", ctx.Err())
	}
}

// Shutdown stops accepting tickets and waits for queued jobs to finish or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
	}
}
