// Package model defines the grading domain types shared by the client, the state machines and the CLI.
package model

import (
	"encoding/json"
	"fmt"
)

// JobStatus represents the lifecycle state of a batch upload job.
type JobStatus string

const (
	JobUploading  JobStatus = "uploading"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobUploading, JobProcessing, JobCompleted, JobError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobError:
		return true
	case JobUploading, JobProcessing:
		return false
	}
	return false
}

// CanTransition reports whether a job in s may move to next.
// Repeating processing is allowed since every poll restates the current state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobUploading:
		return next == JobProcessing
	case JobProcessing:
		return next == JobProcessing || next == JobCompleted || next == JobError
	case JobCompleted, JobError:
		return false
	}
	return false
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := JobStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("unknown job status %q", raw)
	}
	*s = status
	return nil
}

// ResultStatus represents the state of one scoring result.
type ResultStatus string

const (
	ResultPending    ResultStatus = "pending"
	ResultInProgress ResultStatus = "in_progress"
	ResultCompleted  ResultStatus = "completed"
	ResultFailed     ResultStatus = "failed"
	ResultReviewed   ResultStatus = "reviewed"
)

// Valid reports whether s is one of the known result states.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultPending, ResultInProgress, ResultCompleted, ResultFailed, ResultReviewed:
		return true
	}
	return false
}

// Scored reports whether the grading engine has produced an AI score.
func (s ResultStatus) Scored() bool {
	switch s {
	case ResultCompleted, ResultReviewed:
		return true
	case ResultPending, ResultInProgress, ResultFailed:
		return false
	}
	return false
}

func (s *ResultStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := ResultStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("unknown result status %q", raw)
	}
	*s = status
	return nil
}
