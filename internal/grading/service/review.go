package service

import (
	"context"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/review"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// ResultAPI reads and reviews scoring results.
type ResultAPI interface {
	ListResults(ctx context.Context, examID int64, candidateID string) ([]model.ScoringResult, error)
	GetResult(ctx context.Context, resultID int64) (model.ScoringResult, error)
	SaveReview(ctx context.Context, resultID int64, req client.ReviewRequest) (model.ScoringResult, error)
}

// ReviewService loads results into editors and saves reviewer decisions.
type ReviewService struct {
	api ResultAPI
}

func NewReviewService(api ResultAPI) *ReviewService {
	return &ReviewService{api: api}
}

// SaveOutcome is the result of a save. Conflict is set when another writer changed the review
// while the edit was open; the save still went through.
type SaveOutcome struct {
	Result   model.ScoringResult
	Conflict bool
}

func (s *ReviewService) List(ctx context.Context, examID int64, candidateID string) ([]model.ScoringResult, error) {
	if examID <= 0 {
		return nil, appErr.ValidationError("exam_id", "must be greater than 0")
	}
	return s.api.ListResults(ctx, examID, candidateID)
}

func (s *ReviewService) Get(ctx context.Context, resultID int64) (model.ScoringResult, error) {
	if resultID <= 0 {
		return model.ScoringResult{}, appErr.ValidationError("id", "must be greater than 0")
	}
	return s.api.GetResult(ctx, resultID)
}

// Open fetches a result and returns an editor for it.
func (s *ReviewService) Open(ctx context.Context, resultID int64) (*review.Editor, error) {
	r, err := s.Get(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if !r.Status.Scored() && !r.IsReviewed {
		return nil, appErr.New(appErr.ResultNotScored).WithDetail("status", string(r.Status))
	}
	return review.NewEditor(r), nil
}

// Refresh re-fetches the editor's result. An open draft is never touched; the returned flag
// reports whether the refresh conflicts with it.
func (s *ReviewService) Refresh(ctx context.Context, ed *review.Editor) (bool, error) {
	r, err := s.api.GetResult(ctx, ed.Result().ID)
	if err != nil {
		return ed.Conflict(), err
	}
	return ed.Refresh(r), nil
}

// Save writes the editor's draft. On failure the draft stays open so it can be retried.
func (s *ReviewService) Save(ctx context.Context, ed *review.Editor) (SaveOutcome, error) {
	prepared, conflict, err := ed.Prepare()
	if err != nil {
		return SaveOutcome{Result: prepared, Conflict: conflict}, err
	}
	req := client.ReviewRequest{FinalScore: *prepared.FinalScore}
	if prepared.ReviewerNotes != nil {
		req.ReviewerNotes = *prepared.ReviewerNotes
	}
	saved, err := s.api.SaveReview(ctx, prepared.ID, req)
	if err != nil {
		return SaveOutcome{Result: ed.Result(), Conflict: conflict}, err
	}
	if saved.ID == 0 {
		saved = prepared
	}
	ed.Commit(saved)
	if conflict {
		logger.Warn(ctx, "review saved over a concurrent change", zap.Int64("result_id", saved.ID))
	}
	return SaveOutcome{Result: saved, Conflict: conflict}, nil
}

// Apply is the one-shot form: open, set the draft, save.
func (s *ReviewService) Apply(ctx context.Context, resultID int64, finalScore float64, notes string) (SaveOutcome, error) {
	ed, err := s.Open(ctx, resultID)
	if err != nil {
		return SaveOutcome{}, err
	}
	ed.Open()
	if err := ed.SetDraft(finalScore, notes); err != nil {
		return SaveOutcome{Result: ed.Result()}, err
	}
	return s.Save(ctx, ed)
}
