// Package service composes the client, state machines and stores into the grading workflows
// the CLI drives.
package service

import (
	"context"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/batch"
	"essaygrade/internal/grading/jobstore"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/poller"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// BatchAPI is the batch upload collaborator.
type BatchAPI interface {
	poller.StatusFetcher
	PreviewUpload(ctx context.Context, file client.Upload) (model.UploadPreview, error)
	ExecuteBatchUpload(ctx context.Context, file client.Upload, cfg model.UploadConfig) (model.UploadAccepted, error)
}

// BatchService starts and tracks batch jobs.
type BatchService struct {
	api    BatchAPI
	store  jobstore.Store
	poller *poller.Poller
}

// NewBatchService creates the service. store may be nil, in which case jobs are not persisted.
func NewBatchService(api BatchAPI, store jobstore.Store, p *poller.Poller) *BatchService {
	if p == nil {
		p = poller.New(api, poller.Config{})
	}
	return &BatchService{api: api, store: store, poller: p}
}

// Tracker is a running (or finished) batch job and the handle of its poll loop.
type Tracker struct {
	job    *batch.Job
	handle *poller.Handle
}

func (t *Tracker) ID() string               { return t.job.ID() }
func (t *Tracker) Snapshot() model.BatchJob { return t.job.Snapshot() }
func (t *Tracker) Cancel()                  { t.handle.Cancel() }
func (t *Tracker) Done() <-chan struct{}    { return t.handle.Done() }
func (t *Tracker) Attempts() int            { return t.handle.Attempts() }

// Wait blocks until polling ends. It returns the poller's error if polling was canceled or
// gave up, and otherwise the job's own outcome (TerminalJobError for a failed job).
func (t *Tracker) Wait() (model.BatchJob, error) {
	if err := t.handle.Wait(); err != nil {
		return t.job.Snapshot(), err
	}
	return t.job.Snapshot(), t.job.Err()
}

// Preview inspects a CSV. Detected issues are returned but never block Start.
func (s *BatchService) Preview(ctx context.Context, file client.Upload) (model.UploadPreview, error) {
	return s.api.PreviewUpload(ctx, file)
}

// Start uploads file with cfg and begins polling the accepted job. onUpdate may be nil and is
// called from the poll goroutine.
func (s *BatchService) Start(ctx context.Context, file client.Upload, cfg model.UploadConfig, onUpdate poller.UpdateFunc) (*Tracker, error) {
	job := batch.New()
	accepted, err := s.api.ExecuteBatchUpload(ctx, file, cfg)
	if err != nil {
		return nil, err
	}
	if err := job.Accept(accepted.UploadID); err != nil {
		return nil, err
	}
	logger.Info(ctx, "batch upload accepted",
		zap.String("job_id", accepted.UploadID),
		zap.String("exam_name", cfg.ExamName),
		zap.String("message", accepted.Message))
	s.save(ctx, job.Snapshot())
	return s.track(ctx, job, onUpdate), nil
}

// Watch resumes tracking of a known job. The job store is consulted first; unknown jobs are
// seeded from a single status request.
func (s *BatchService) Watch(ctx context.Context, uploadID string, onUpdate poller.UpdateFunc) (*Tracker, error) {
	if uploadID == "" {
		return nil, appErr.ValidationError("upload_id", "must not be blank")
	}
	snap, err := s.lookup(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	job, err := batch.Resume(snap)
	if err != nil {
		return nil, err
	}
	s.save(ctx, job.Snapshot())
	return s.track(ctx, job, onUpdate), nil
}

// Jobs lists the tracked jobs, newest first.
func (s *BatchService) Jobs(ctx context.Context) ([]model.BatchJob, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List(ctx)
}

// Forget removes a job from the store.
func (s *BatchService) Forget(ctx context.Context, uploadID string) error {
	if s.store == nil {
		return nil
	}
	return s.store.Delete(ctx, uploadID)
}

func (s *BatchService) lookup(ctx context.Context, uploadID string) (model.BatchJob, error) {
	if s.store != nil {
		snap, err := s.store.Get(ctx, uploadID)
		if err == nil {
			return snap, nil
		}
		if !appErr.Is(err, appErr.NotFound) {
			logger.Warn(ctx, "job store lookup failed", zap.String("job_id", uploadID), zap.Error(err))
		}
	}
	snap, err := s.api.BatchStatus(ctx, uploadID)
	if err != nil {
		return model.BatchJob{}, err
	}
	if snap.ID == "" {
		snap.ID = uploadID
	}
	return snap, nil
}

func (s *BatchService) track(ctx context.Context, job *batch.Job, onUpdate poller.UpdateFunc) *Tracker {
	h := s.poller.Start(ctx, job, func(snap model.BatchJob) {
		s.save(ctx, snap)
		if onUpdate != nil {
			onUpdate(snap)
		}
	})
	return &Tracker{job: job, handle: h}
}

// save is best effort: a store failure never interrupts tracking.
func (s *BatchService) save(ctx context.Context, snap model.BatchJob) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		logger.Warn(ctx, "save job snapshot failed", zap.String("job_id", snap.ID), zap.Error(err))
	}
}
