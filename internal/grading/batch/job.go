// Package batch tracks the lifecycle of one batch upload: uploading -> processing -> completed|error.
package batch

import (
	"sync"
	"time"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// Job owns the local BatchJob snapshot. Poll responses replace it wholesale until a terminal
// status is reached; after that the snapshot never changes again.
type Job struct {
	mu   sync.RWMutex
	snap model.BatchJob
	now  func() time.Time
}

// New creates a job in the uploading state.
func New() *Job {
	return &Job{
		snap: model.BatchJob{Status: model.JobUploading},
		now:  time.Now,
	}
}

// Resume rebuilds a job from a stored snapshot, e.g. after the CLI restarts.
func Resume(snap model.BatchJob) (*Job, error) {
	if snap.ID == "" {
		return nil, appErr.ValidationError("upload_id", "required")
	}
	if !snap.Status.Valid() || snap.Status == model.JobUploading {
		return nil, appErr.Newf(appErr.InvalidTransition, "cannot resume job in status %q", snap.Status)
	}
	if err := CheckCounts(snap); err != nil {
		return nil, err
	}
	snap = snap.Clone()
	snap.ProgressPercentage = model.Progress(snap.ProcessedCount, snap.TotalCount)
	return &Job{snap: snap, now: time.Now}, nil
}

// Accept records the service-assigned id and moves uploading -> processing.
func (j *Job) Accept(uploadID string) error {
	if uploadID == "" {
		return appErr.ValidationError("upload_id", "required")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Status != model.JobUploading {
		return appErr.Newf(appErr.InvalidTransition, "cannot accept job in status %q", j.snap.Status)
	}
	j.snap.ID = uploadID
	j.snap.Status = model.JobProcessing
	j.snap.UpdatedAt = j.now()
	return nil
}

// Apply replaces the snapshot with a poll response. The service always returns a full
// snapshot, so fields are not merged. Snapshots breaking the count invariants, or moving
// progress backwards, are rejected and the current state is kept.
func (j *Job) Apply(next model.BatchJob) (model.BatchJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cur := j.snap.Status
	if cur.Terminal() {
		return j.snap.Clone(), appErr.Newf(appErr.JobImmutable, "job %s already %s", j.snap.ID, cur)
	}
	if cur == model.JobUploading {
		return j.snap.Clone(), appErr.New(appErr.InvalidTransition).WithMessage("job has not been accepted yet")
	}
	if next.ID != "" && next.ID != j.snap.ID {
		return j.snap.Clone(), appErr.Newf(appErr.InvalidSnapshot, "snapshot for job %s applied to job %s", next.ID, j.snap.ID)
	}
	if !cur.CanTransition(next.Status) {
		return j.snap.Clone(), appErr.Newf(appErr.InvalidTransition, "job cannot move from %s to %s", cur, next.Status)
	}
	if err := CheckCounts(next); err != nil {
		return j.snap.Clone(), err
	}
	if err := checkProgress(j.snap, next); err != nil {
		return j.snap.Clone(), err
	}

	next = next.Clone()
	next.ID = j.snap.ID
	next.ProgressPercentage = model.Progress(next.ProcessedCount, next.TotalCount)
	next.UpdatedAt = j.now()
	j.snap = next
	return j.snap.Clone(), nil
}

// Snapshot returns a copy of the current state.
func (j *Job) Snapshot() model.BatchJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.Clone()
}

// ID returns the service-assigned upload id, empty until accepted.
func (j *Job) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.ID
}

// Terminal reports whether the job is completed or errored.
func (j *Job) Terminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.Status.Terminal()
}

// Err returns a TerminalJobError when the job itself ended in error.
// It says nothing about transport failures seen while polling.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.snap.Status != model.JobError {
		return nil
	}
	msg := j.snap.Message
	if msg == "" {
		msg = appErr.TerminalJobError.Message()
	}
	return appErr.New(appErr.TerminalJobError).
		WithMessage(msg).
		WithDetail("upload_id", j.snap.ID).
		WithDetail("errors", append([]string(nil), j.snap.Errors...))
}

// CheckCounts validates processed = success + error and processed <= total.
func CheckCounts(s model.BatchJob) error {
	if s.TotalCount < 0 || s.ProcessedCount < 0 || s.SuccessCount < 0 || s.ErrorCount < 0 {
		return appErr.New(appErr.InvalidSnapshot).WithMessage("negative count in snapshot").
			WithDetails(countDetails(s))
	}
	if s.ProcessedCount != s.SuccessCount+s.ErrorCount {
		return appErr.Newf(appErr.InvalidSnapshot, "processed %d != success %d + error %d",
			s.ProcessedCount, s.SuccessCount, s.ErrorCount).WithDetails(countDetails(s))
	}
	if s.ProcessedCount > s.TotalCount {
		return appErr.Newf(appErr.InvalidSnapshot, "processed %d exceeds total %d",
			s.ProcessedCount, s.TotalCount).WithDetails(countDetails(s))
	}
	return nil
}

// checkProgress rejects snapshots that un-process rows or rewrite the error list.
// Errors are append-only: the current list must be a prefix of the next one.
func checkProgress(cur, next model.BatchJob) error {
	if next.ProcessedCount < cur.ProcessedCount {
		return appErr.Newf(appErr.InvalidSnapshot, "processed went back from %d to %d",
			cur.ProcessedCount, next.ProcessedCount).WithDetails(countDetails(next))
	}
	if len(next.Errors) < len(cur.Errors) {
		return appErr.Newf(appErr.InvalidSnapshot, "error list shrank from %d to %d",
			len(cur.Errors), len(next.Errors))
	}
	for i, e := range cur.Errors {
		if next.Errors[i] != e {
			return appErr.Newf(appErr.InvalidSnapshot, "error %d changed from %q to %q", i, e, next.Errors[i])
		}
	}
	return nil
}

func countDetails(s model.BatchJob) map[string]interface{} {
	return map[string]interface{}{
		"total":     s.TotalCount,
		"processed": s.ProcessedCount,
		"success":   s.SuccessCount,
		"error":     s.ErrorCount,
	}
}
