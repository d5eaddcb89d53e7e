package service_test

import (
	"context"
	"sync"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// fakeAPI is an in-memory grading service.
type fakeAPI struct {
	mu sync.Mutex

	submitted  []client.SubmitAnswerRequest
	evaluated  []int64
	question   model.Question
	result     model.ScoringResult
	results    []model.ScoringResult
	reviews    []client.ReviewRequest
	statuses   []model.BatchJob
	statusHits int
	executed   []model.UploadConfig
	download   client.Download
	submitErr  error
	executeErr error
	statusErr  error
	saveErr    error
}

func (f *fakeAPI) SubmitAnswer(_ context.Context, req client.SubmitAnswerRequest) (model.AnswerSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return model.AnswerSubmission{}, f.submitErr
	}
	return model.AnswerSubmission{ID: int64(len(f.submitted)), ExamID: req.ExamID, QuestionID: req.QuestionID, CandidateID: req.CandidateID}, nil
}

func (f *fakeAPI) EvaluateAnswer(_ context.Context, answerID int64) (model.ScoringResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, answerID)
	out := f.result
	out.AnswerID = answerID
	return out, nil
}

func (f *fakeAPI) GetQuestion(_ context.Context, questionID int64) (model.Question, error) {
	if f.question.ID == 0 {
		return model.Question{}, appErr.Rejection(404, "question not found").WithDetail("not_found", true)
	}
	return f.question, nil
}

func (f *fakeAPI) ListResults(_ context.Context, examID int64, candidateID string) ([]model.ScoringResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScoringResult
	for _, r := range f.results {
		if candidateID == "" || r.CandidateID == candidateID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetResult(_ context.Context, resultID int64) (model.ScoringResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result.ID != resultID {
		return model.ScoringResult{}, appErr.Rejection(404, "result not found")
	}
	return f.result.Clone(), nil
}

func (f *fakeAPI) SaveReview(_ context.Context, resultID int64, req client.ReviewRequest) (model.ScoringResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, req)
	if f.saveErr != nil {
		return model.ScoringResult{}, f.saveErr
	}
	out := f.result.Clone()
	score, notes := req.FinalScore, req.ReviewerNotes
	out.FinalScore = &score
	out.ReviewerNotes = &notes
	out.IsReviewed = true
	out.Status = model.ResultReviewed
	f.result = out
	return out.Clone(), nil
}

func (f *fakeAPI) PreviewUpload(_ context.Context, file client.Upload) (model.UploadPreview, error) {
	return model.UploadPreview{TotalRows: 2, DetectedIssues: []string{"row 3: blank answer"}}, nil
}

func (f *fakeAPI) ExecuteBatchUpload(_ context.Context, file client.Upload, cfg model.UploadConfig) (model.UploadAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, cfg)
	if f.executeErr != nil {
		return model.UploadAccepted{}, f.executeErr
	}
	return model.UploadAccepted{UploadID: "upload_1", Message: "processing started"}, nil
}

// BatchStatus replays statuses and then repeats the last one.
func (f *fakeAPI) BatchStatus(_ context.Context, uploadID string) (model.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHits++
	if f.statusErr != nil {
		return model.BatchJob{}, f.statusErr
	}
	i := f.statusHits - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	snap := f.statuses[i]
	snap.ID = uploadID
	return snap, nil
}

func (f *fakeAPI) ExportResults(_ context.Context, examID int64, format string, reviewedOnly bool) (client.Download, error) {
	return f.download, nil
}

func (f *fakeAPI) ExportSummary(_ context.Context, examID int64) (model.Summary, error) {
	return model.Summary{ExamID: examID, TotalCount: 99}, nil
}

func (f *fakeAPI) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusHits
}

func scoredResult(id int64, total float64) model.ScoringResult {
	return model.ScoringResult{
		ID:          id,
		CandidateID: "C001",
		Status:      model.ResultCompleted,
		AIScore:     model.AIScore{TotalScore: total, MaxScore: 25, Percentage: total * 4, Grade: "B"},
	}
}
