package model

import (
	"encoding/json"
	"time"
)

// AspectScore is one grading criterion's sub-score.
type AspectScore struct {
	Criterion string   `json:"criteria"`
	Score     float64  `json:"score"`
	Reasoning string   `json:"reasoning"`
	Evidence  []string `json:"evidence"`
}

// AIScore is the grading engine's output. It is written once and never edited.
type AIScore struct {
	TotalScore   float64       `json:"total_score"`
	MaxScore     float64       `json:"max_score"`
	Percentage   float64       `json:"percentage"` // 0-100
	Confidence   float64       `json:"confidence"` // 0.0-1.0
	Grade        string        `json:"grade"`
	AspectScores []AspectScore `json:"aspect_scores,omitempty"`
}

// DetailedAnalysis is the engine's narrative breakdown.
type DetailedAnalysis struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	MissingElements []string `json:"missing_elements"`
	SpecificIssues  []string `json:"specific_issues"`
}

// AIFeedback is only present on the result-detail endpoint.
type AIFeedback struct {
	AspectScores           []AspectScore    `json:"aspect_scores"`
	DetailedAnalysis       DetailedAnalysis `json:"detailed_analysis"`
	ImprovementSuggestions []string         `json:"improvement_suggestions"`
	ConfidenceReasoning    string           `json:"confidence_reasoning"`
	RubricAlignment        string           `json:"rubric_alignment"`
}

// ScoringResult reconciles the AI score with an optional reviewer score.
// The grading engine owns AIScore; a reviewer owns FinalScore, ReviewerNotes and IsReviewed.
type ScoringResult struct {
	ID            int64        `json:"id"`
	AnswerID      int64        `json:"answer_id"`
	CandidateID   string       `json:"candidate_id,omitempty"`
	Status        ResultStatus `json:"status"`
	AIScore       AIScore      `json:"-"`
	FinalScore    *float64     `json:"final_score"`
	ReviewerNotes *string      `json:"reviewer_notes"`
	IsReviewed    bool         `json:"is_reviewed"`
	AIFeedback    *AIFeedback  `json:"ai_feedback,omitempty"`
	ScoredAt      *time.Time   `json:"scored_at,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewed_at,omitempty"`
}

type resultAlias ScoringResult

// MarshalJSON flattens AIScore into the result object, matching the service's wire shape.
func (r ScoringResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		resultAlias
		AIScore
	}{resultAlias(r), r.AIScore})
}

func (r *ScoringResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		resultAlias
		AIScore
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = ScoringResult(wire.resultAlias)
	r.AIScore = wire.AIScore
	if len(r.AIScore.AspectScores) == 0 && r.AIFeedback != nil {
		r.AIScore.AspectScores = r.AIFeedback.AspectScores
	}
	return nil
}

// MaxScore is the upper bound a reviewer may award.
func (r ScoringResult) MaxScore() float64 {
	return r.AIScore.MaxScore
}

// Clone returns a deep copy of the reviewer-owned pointers.
func (r ScoringResult) Clone() ScoringResult {
	out := r
	if r.FinalScore != nil {
		v := *r.FinalScore
		out.FinalScore = &v
	}
	if r.ReviewerNotes != nil {
		v := *r.ReviewerNotes
		out.ReviewerNotes = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		out.ReviewedAt = &v
	}
	return out
}

// AnswerSubmission is an accepted candidate answer.
type AnswerSubmission struct {
	ID          int64  `json:"id"`
	ExamID      int64  `json:"exam_id"`
	QuestionID  int64  `json:"question_id"`
	CandidateID string `json:"candidate_id"`
	AnswerText  string `json:"answer_text"`
	CharCount   int    `json:"char_count"`
	IsBlank     bool   `json:"is_blank"`
	SubmittedAt string `json:"submitted_at"`
}

// DefaultMaxChars applies when a question carries no character limit.
const DefaultMaxChars = 400

// Question is the subset of question metadata the client needs.
type Question struct {
	ID       int64  `json:"id"`
	ExamID   int64  `json:"exam_id"`
	Title    string `json:"title"`
	Number   string `json:"question_number"`
	Text     string `json:"question_text"`
	MaxChars int    `json:"max_chars"`
	Points   int    `json:"points"`
}

// Summary is the server's per-exam statistics report.
type Summary struct {
	ExamID            int64          `json:"exam_id"`
	TotalCount        int            `json:"total_count"`
	ReviewedCount     int            `json:"reviewed_count"`
	AverageScore      float64        `json:"average_score"`
	MaxScore          float64        `json:"max_score"`
	MinScore          float64        `json:"min_score"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// CharLimit returns the question's answer limit in characters.
func (q Question) CharLimit() int {
	if q.MaxChars <= 0 {
		return DefaultMaxChars
	}
	return q.MaxChars
}
