// Package review reconciles the AI score of a result with an optional reviewer override.
package review

import (
	"math"
	"strings"
	"time"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// DisplayScore is the authoritative score of a result: the reviewer's final score once
// reviewed, the AI total otherwise. Every display, statistic and export goes through here.
func DisplayScore(r model.ScoringResult) float64 {
	if r.IsReviewed && r.FinalScore != nil {
		return *r.FinalScore
	}
	return r.AIScore.TotalScore
}

// ValidateScore checks finalScore against [0, maxScore].
func ValidateScore(finalScore, maxScore float64) error {
	if math.IsNaN(finalScore) || math.IsInf(finalScore, 0) || finalScore < 0 || finalScore > maxScore {
		return appErr.RangeError(finalScore, maxScore)
	}
	return nil
}

// ApplyReview returns a copy of r carrying the reviewer's score and notes. The AI score is
// never touched and a reviewed result stays reviewed. On error r is returned unchanged.
func ApplyReview(r model.ScoringResult, finalScore float64, notes string) (model.ScoringResult, error) {
	return applyAt(r, finalScore, notes, time.Now())
}

func applyAt(r model.ScoringResult, finalScore float64, notes string, at time.Time) (model.ScoringResult, error) {
	if err := ValidateScore(finalScore, r.MaxScore()); err != nil {
		return r, err
	}
	out := r.Clone()
	score := finalScore
	trimmed := strings.TrimSpace(notes)
	out.FinalScore = &score
	out.ReviewerNotes = &trimmed
	out.IsReviewed = true
	out.Status = model.ResultReviewed
	reviewedAt := at
	out.ReviewedAt = &reviewedAt
	return out, nil
}

// Adjustment is how far the reviewer moved the score; zero for unreviewed results.
func Adjustment(r model.ScoringResult) float64 {
	if !r.IsReviewed || r.FinalScore == nil {
		return 0
	}
	return *r.FinalScore - r.AIScore.TotalScore
}
