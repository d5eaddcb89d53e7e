package service

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/validate"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Phase is the busy state of a scoring flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseScoring
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseScoring:
		return "scoring"
	default:
		return "idle"
	}
}

// ScoringAPI is the submission and grading collaborator.
type ScoringAPI interface {
	SubmitAnswer(ctx context.Context, req client.SubmitAnswerRequest) (model.AnswerSubmission, error)
	EvaluateAnswer(ctx context.Context, answerID int64) (model.ScoringResult, error)
}

// QuestionSource resolves a question's character limit.
type QuestionSource interface {
	GetQuestion(ctx context.Context, questionID int64) (model.Question, error)
}

// ScoringFlow submits one answer and then asks for its evaluation.
type ScoringFlow struct {
	api       ScoringAPI
	questions QuestionSource

	mu      sync.Mutex
	phase   Phase
	onPhase func(Phase)
}

// NewScoringFlow creates a flow. A nil questions source applies model.DefaultMaxChars.
func NewScoringFlow(api ScoringAPI, questions QuestionSource) *ScoringFlow {
	return &ScoringFlow{api: api, questions: questions}
}

// OnPhase registers an observer for busy-phase changes.
func (f *ScoringFlow) OnPhase(fn func(Phase)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPhase = fn
}

func (f *ScoringFlow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *ScoringFlow) setPhase(p Phase) {
	f.mu.Lock()
	f.phase = p
	fn := f.onPhase
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// SubmitAndScore validates the answer, submits it, then evaluates it. Errors from either
// network step are returned as-is and the flow is not retried.
func (f *ScoringFlow) SubmitAndScore(ctx context.Context, req client.SubmitAnswerRequest) (model.ScoringResult, error) {
	if err := validate.Struct(req); err != nil {
		return model.ScoringResult{}, err
	}
	limit := model.DefaultMaxChars
	if f.questions != nil {
		q, err := f.questions.GetQuestion(ctx, req.QuestionID)
		if err != nil {
			return model.ScoringResult{}, err
		}
		limit = q.CharLimit()
	}
	return f.submitAndScore(ctx, req, limit)
}

// SubmitAndScoreFor is SubmitAndScore for a caller that already holds the question.
func (f *ScoringFlow) SubmitAndScoreFor(ctx context.Context, q model.Question, req client.SubmitAnswerRequest) (model.ScoringResult, error) {
	if err := validate.Struct(req); err != nil {
		return model.ScoringResult{}, err
	}
	return f.submitAndScore(ctx, req, q.CharLimit())
}

func (f *ScoringFlow) submitAndScore(ctx context.Context, req client.SubmitAnswerRequest, limit int) (model.ScoringResult, error) {
	if n := utf8.RuneCountInString(req.AnswerText); n > limit {
		return model.ScoringResult{}, appErr.Newf(appErr.AnswerTooLong, "answer_text: %d characters exceeds the limit of %d", n, limit).
			WithDetail("field", "answer_text").
			WithDetail("char_count", n).
			WithDetail("max_chars", limit)
	}

	defer f.setPhase(PhaseIdle)
	f.setPhase(PhaseSubmitting)
	sub, err := f.api.SubmitAnswer(ctx, req)
	if err != nil {
		logger.Warn(ctx, "submit answer failed", zap.String("candidate_id", req.CandidateID), zap.Error(err))
		return model.ScoringResult{}, err
	}
	if sub.ID <= 0 {
		return model.ScoringResult{}, appErr.New(appErr.DecodeFailed).WithMessage(fmt.Sprintf("submit response carried invalid id %d", sub.ID))
	}

	f.setPhase(PhaseScoring)
	result, err := f.api.EvaluateAnswer(ctx, sub.ID)
	if err != nil {
		logger.Warn(ctx, "evaluate answer failed", zap.Int64("answer_id", sub.ID), zap.Error(err))
		return model.ScoringResult{}, err
	}
	logger.Info(ctx, "answer scored",
		zap.Int64("answer_id", sub.ID),
		zap.Int64("result_id", result.ID),
		zap.Float64("total_score", result.AIScore.TotalScore))
	return result, nil
}
