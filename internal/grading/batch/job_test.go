package batch_test

import (
	"testing"

	"essaygrade/internal/grading/batch"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/testutil"
	appErr "essaygrade/pkg/errors"
)

func acceptedJob(t *testing.T) *batch.Job {
	t.Helper()
	job := batch.New()
	testutil.AssertNoError(t, job.Accept("upload_1"))
	return job
}

func TestJobLifecycle(t *testing.T) {
	job := batch.New()
	testutil.AssertEqual(t, job.Snapshot().Status, model.JobUploading)

	_, err := job.Apply(model.BatchJob{Status: model.JobProcessing})
	testutil.AssertCode(t, err, appErr.InvalidTransition)

	testutil.AssertNoError(t, job.Accept("upload_1"))
	testutil.AssertEqual(t, job.ID(), "upload_1")
	testutil.AssertEqual(t, job.Snapshot().Status, model.JobProcessing)
	testutil.AssertCode(t, job.Accept("upload_2"), appErr.InvalidTransition)

	snap, err := job.Apply(model.BatchJob{Status: model.JobProcessing, TotalCount: 4, ProcessedCount: 2, SuccessCount: 2})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, snap.ProgressPercentage, 50.0)
	testutil.AssertEqual(t, snap.ID, "upload_1")
	testutil.AssertFalse(t, job.Terminal(), "processing is not terminal")

	snap, err = job.Apply(model.BatchJob{Status: model.JobCompleted, TotalCount: 4, ProcessedCount: 4, SuccessCount: 3, ErrorCount: 1})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, snap.ProgressPercentage, 100.0)
	testutil.AssertTrue(t, job.Terminal(), "completed is terminal")
	testutil.AssertNoError(t, job.Err())
}

func TestJobTerminalIsImmutable(t *testing.T) {
	job := acceptedJob(t)
	_, err := job.Apply(model.BatchJob{Status: model.JobError, Message: "bad file", Errors: []string{"row 2: answer is empty"}})
	testutil.AssertNoError(t, err)

	before := job.Snapshot()
	_, err = job.Apply(model.BatchJob{Status: model.JobProcessing, TotalCount: 10})
	testutil.AssertCode(t, err, appErr.JobImmutable)
	_, err = job.Apply(model.BatchJob{Status: model.JobCompleted})
	testutil.AssertCode(t, err, appErr.JobImmutable)

	after := job.Snapshot()
	testutil.AssertEqual(t, after.Status, before.Status)
	testutil.AssertEqual(t, after.TotalCount, before.TotalCount)
	testutil.AssertEqual(t, after.Message, "bad file")

	jobErr := job.Err()
	testutil.AssertCode(t, jobErr, appErr.TerminalJobError)
	testutil.AssertEqual(t, jobErr.Error(), "bad file")
}

func TestJobRejectsInconsistentCounts(t *testing.T) {
	tests := []struct {
		name string
		snap model.BatchJob
	}{
		{"processed != success + error", model.BatchJob{Status: model.JobProcessing, TotalCount: 5, ProcessedCount: 3, SuccessCount: 1, ErrorCount: 1}},
		{"processed > total", model.BatchJob{Status: model.JobProcessing, TotalCount: 2, ProcessedCount: 3, SuccessCount: 3}},
		{"negative count", model.BatchJob{Status: model.JobProcessing, TotalCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := acceptedJob(t)
			_, err := job.Apply(tt.snap)
			testutil.AssertCode(t, err, appErr.InvalidSnapshot)
			testutil.AssertEqual(t, job.Snapshot().Status, model.JobProcessing)
			testutil.AssertEqual(t, job.Snapshot().TotalCount, 0)
		})
	}
}

func TestJobProgressIsAppendOnly(t *testing.T) {
	base := model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 2, ErrorCount: 2,
		Errors: []string{"row 1: blank", "row 2: blank"}}
	tests := []struct {
		name string
		snap model.BatchJob
	}{
		{"errors replaced", model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 3, ErrorCount: 3,
			Errors: []string{"row 9: blank"}}},
		{"errors reordered", model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 2, ErrorCount: 2,
			Errors: []string{"row 2: blank", "row 1: blank"}}},
		{"errors dropped", model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 2, SuccessCount: 2}},
		{"processed went back", model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 1, ErrorCount: 1,
			Errors: []string{"row 1: blank", "row 2: blank"}}},
		{"completed with fewer errors", model.BatchJob{Status: model.JobCompleted, TotalCount: 10, ProcessedCount: 10, SuccessCount: 9, ErrorCount: 1,
			Errors: []string{"row 1: blank"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := acceptedJob(t)
			_, err := job.Apply(base)
			testutil.AssertNoError(t, err)

			_, err = job.Apply(tt.snap)
			testutil.AssertCode(t, err, appErr.InvalidSnapshot)
			snap := job.Snapshot()
			testutil.AssertEqual(t, snap.ProcessedCount, 2)
			testutil.AssertEqual(t, len(snap.Errors), 2)
			testutil.AssertEqual(t, snap.Errors[1], "row 2: blank")
		})
	}

	job := acceptedJob(t)
	_, err := job.Apply(base)
	testutil.AssertNoError(t, err)
	snap, err := job.Apply(model.BatchJob{Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 5, SuccessCount: 2, ErrorCount: 3,
		Errors: []string{"row 1: blank", "row 2: blank", "row 5: too long"}})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(snap.Errors), 3)
}

func TestJobRejectsForeignSnapshot(t *testing.T) {
	job := acceptedJob(t)
	_, err := job.Apply(model.BatchJob{ID: "upload_2", Status: model.JobProcessing})
	testutil.AssertCode(t, err, appErr.InvalidSnapshot)
}

func TestJobZeroTotalProgress(t *testing.T) {
	job := acceptedJob(t)
	snap, err := job.Apply(model.BatchJob{Status: model.JobProcessing})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, snap.ProgressPercentage, 0.0)
}

func TestSnapshotIsACopy(t *testing.T) {
	job := acceptedJob(t)
	_, err := job.Apply(model.BatchJob{Status: model.JobProcessing, Errors: []string{"row 1: blank"}})
	testutil.AssertNoError(t, err)

	snap := job.Snapshot()
	snap.Errors[0] = "changed"
	testutil.AssertEqual(t, job.Snapshot().Errors[0], "row 1: blank")
}

func TestResume(t *testing.T) {
	job, err := batch.Resume(model.BatchJob{ID: "upload_9", Status: model.JobProcessing, TotalCount: 10, ProcessedCount: 5, SuccessCount: 5})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, job.Snapshot().ProgressPercentage, 50.0)

	_, err = batch.Resume(model.BatchJob{Status: model.JobProcessing})
	testutil.AssertCode(t, err, appErr.ValidationFailed)
	_, err = batch.Resume(model.BatchJob{ID: "upload_9", Status: model.JobUploading})
	testutil.AssertCode(t, err, appErr.InvalidTransition)
	_, err = batch.Resume(model.BatchJob{ID: "upload_9", Status: model.JobProcessing, ProcessedCount: 1})
	testutil.AssertCode(t, err, appErr.InvalidSnapshot)

	done, err := batch.Resume(model.BatchJob{ID: "upload_9", Status: model.JobCompleted, TotalCount: 1, ProcessedCount: 1, SuccessCount: 1})
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, done.Terminal(), "resumed completed job is terminal")
}
