package export

import (
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/review"
)

// Summarize computes exam statistics over the authoritative scores. Results without an AI
// score and without a review are counted but excluded from the score statistics.
func Summarize(examID int64, results []model.ScoringResult) model.Summary {
	s := model.Summary{
		ExamID:            examID,
		TotalCount:        len(results),
		GradeDistribution: map[string]int{},
	}
	scored := 0
	sum := 0.0
	for _, r := range results {
		if r.IsReviewed {
			s.ReviewedCount++
		}
		if !r.Status.Scored() && !r.IsReviewed {
			continue
		}
		score := review.DisplayScore(r)
		if scored == 0 || score > s.MaxScore {
			s.MaxScore = score
		}
		if scored == 0 || score < s.MinScore {
			s.MinScore = score
		}
		sum += score
		scored++
		s.GradeDistribution[GradeFor(score, r.AIScore.MaxScore)]++
	}
	if scored > 0 {
		s.AverageScore = sum / float64(scored)
	}
	return s
}
