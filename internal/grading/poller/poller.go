// Package poller drives a batch job to a terminal state by polling the status endpoint.
//
// There is exactly one goroutine and at most one in-flight request per job: the next poll
// is scheduled only after the previous response (or failure) has been handled. A failed
// poll never stops the loop by itself; it only slows it down.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"essaygrade/internal/grading/batch"
	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// StatusFetcher returns the service's current snapshot of a batch job.
type StatusFetcher interface {
	BatchStatus(ctx context.Context, uploadID string) (model.BatchJob, error)
}

// UpdateFunc receives every snapshot that was accepted by the job.
type UpdateFunc func(model.BatchJob)

// Config controls poll pacing.
type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	// MaxFailures stops polling after that many consecutive failures. Zero means never.
	MaxFailures int
}

// Poller polls batch jobs.
type Poller struct {
	fetcher StatusFetcher
	cfg     Config
}

// New creates a poller, filling unset pacing with defaults.
func New(fetcher StatusFetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	if cfg.MaxFailures < 0 {
		cfg.MaxFailures = 0
	}
	return &Poller{fetcher: fetcher, cfg: cfg}
}

// Handle is the owned cancellation token for one running poll loop.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	attempts atomic.Int64

	mu  sync.Mutex
	err error
}

// Cancel stops scheduling further polls. An in-flight request is abandoned via its context.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop exits. It returns nil when the job reached a terminal status;
// use batch.Job.Err to tell a completed job from one that ended in error.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Attempts returns how many status requests have been issued.
func (h *Handle) Attempts() int {
	return int(h.attempts.Load())
}

// Start polls job in the background until it is terminal, ctx is canceled or Cancel is called.
func (p *Poller) Start(ctx context.Context, job *batch.Job, onUpdate UpdateFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		err := p.run(ctx, job, onUpdate, &h.attempts)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()
	return h
}

// Run polls in the calling goroutine. It has the same semantics as Start followed by Wait.
func (p *Poller) Run(ctx context.Context, job *batch.Job, onUpdate UpdateFunc) error {
	var attempts atomic.Int64
	return p.run(ctx, job, onUpdate, &attempts)
}

func (p *Poller) run(ctx context.Context, job *batch.Job, onUpdate UpdateFunc, attempts *atomic.Int64) error {
	if job.Terminal() {
		return nil
	}
	uploadID := job.ID()
	if uploadID == "" {
		return appErr.New(appErr.InvalidTransition).WithMessage("job has not been accepted yet")
	}
	ctx = logger.WithJobID(ctx, uploadID)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		attempts.Add(1)
		snap, err := p.pollOnce(ctx, job, uploadID)
		delay := p.cfg.Interval
		switch {
		case err == nil:
			failures = 0
			if onUpdate != nil {
				onUpdate(snap)
			}
			if snap.Status.Terminal() {
				logger.Info(ctx, "batch job finished",
					zap.String("status", string(snap.Status)),
					zap.Int("success", snap.SuccessCount),
					zap.Int("errors", snap.ErrorCount))
				return nil
			}
		case appErr.Is(err, appErr.JobImmutable):
			return nil
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return canceled(ctxErr)
			}
			failures++
			delay = ComputeBackoff(failures-1, p.cfg.Interval, p.cfg.MaxBackoff)
			logger.Warn(ctx, "batch status poll failed",
				zap.Error(err),
				zap.Int("consecutive_failures", failures),
				zap.Duration("next_delay", delay))
			if p.cfg.MaxFailures > 0 && failures >= p.cfg.MaxFailures {
				return appErr.Wrapf(err, appErr.PollExhausted, "gave up after %d consecutive failures: %v", failures, err)
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return canceled(ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, job *batch.Job, uploadID string) (model.BatchJob, error) {
	snap, err := p.fetcher.BatchStatus(ctx, uploadID)
	if err != nil {
		return model.BatchJob{}, err
	}
	return job.Apply(snap)
}

func canceled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErr.Wrapf(err, appErr.PollCanceled, "polling deadline exceeded")
	}
	return appErr.Wrapf(err, appErr.PollCanceled, "polling canceled")
}
