// Package export flattens scoring results into report rows and writes them out.
package export

import (
	"strings"
	"time"

	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/review"
)

// Row is one exported result. Score is always the authoritative (display) score.
type Row struct {
	ResultID            int64
	AnswerID            int64
	CandidateID         string
	Status              model.ResultStatus
	AIScore             float64
	FinalScore          *float64
	Score               float64
	MaxScore            float64
	Grade               string
	Confidence          float64
	Reviewed            bool
	ReviewerNotes       string
	ScoredAt            *time.Time
	ReviewedAt          *time.Time
	ConfidenceReasoning string
	Strengths           string
	Weaknesses          string
	MissingElements     string
	Suggestions         string
}

// Project maps results to rows in input order. With reviewedOnly, unreviewed results are dropped.
func Project(results []model.ScoringResult, reviewedOnly bool) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		if reviewedOnly && !r.IsReviewed {
			continue
		}
		rows = append(rows, projectOne(r))
	}
	return rows
}

func projectOne(r model.ScoringResult) Row {
	score := review.DisplayScore(r)
	row := Row{
		ResultID:    r.ID,
		AnswerID:    r.AnswerID,
		CandidateID: r.CandidateID,
		Status:      r.Status,
		AIScore:     r.AIScore.TotalScore,
		Score:       score,
		MaxScore:    r.AIScore.MaxScore,
		Grade:       GradeFor(score, r.AIScore.MaxScore),
		Confidence:  r.AIScore.Confidence,
		Reviewed:    r.IsReviewed,
		ScoredAt:    r.ScoredAt,
		ReviewedAt:  r.ReviewedAt,
	}
	if r.IsReviewed && r.FinalScore != nil {
		v := *r.FinalScore
		row.FinalScore = &v
	}
	if r.ReviewerNotes != nil {
		row.ReviewerNotes = *r.ReviewerNotes
	}
	if fb := r.AIFeedback; fb != nil {
		row.ConfidenceReasoning = fb.ConfidenceReasoning
		row.Strengths = strings.Join(fb.DetailedAnalysis.Strengths, "; ")
		row.Weaknesses = strings.Join(fb.DetailedAnalysis.Weaknesses, "; ")
		row.MissingElements = strings.Join(fb.DetailedAnalysis.MissingElements, "; ")
		row.Suggestions = strings.Join(fb.ImprovementSuggestions, "; ")
	}
	return row
}

// GradeFor maps a score to a letter grade by percentage of max: A>=90, B>=80, C>=70, D>=60, else F.
func GradeFor(score, max float64) string {
	if score == 0 || max == 0 {
		return "N/A"
	}
	pct := score / max * 100
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}
