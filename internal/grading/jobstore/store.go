// Package jobstore remembers tracked batch jobs so a watch can resume after a restart.
package jobstore

import (
	"context"
	"sort"

	"essaygrade/internal/grading/model"
)

// Store persists the latest snapshot of each tracked job. A stored terminal snapshot is
// final: later saves for the same job are ignored.
type Store interface {
	Save(ctx context.Context, job model.BatchJob) error
	Get(ctx context.Context, uploadID string) (model.BatchJob, error)
	List(ctx context.Context) ([]model.BatchJob, error)
	Delete(ctx context.Context, uploadID string) error
}

// sortJobs orders newest first, then by id, so listings are stable.
func sortJobs(jobs []model.BatchJob) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[k].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[k].UpdatedAt)
		}
		return jobs[i].ID < jobs[k].ID
	})
}
