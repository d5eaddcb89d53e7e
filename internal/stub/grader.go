package stub

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/model"
)

const (
	keywordWeight   = 0.6
	lengthWeight    = 0.2
	structureWeight = 0.2
	ruleConfidence  = 0.8
)

var (
	causalMarkers = []string{"because", "therefore", "as a result", "due to", "so that", "which leads to", "consequently"}
	domainTerms   = []string{"project", "system", "design", "requirement", "test", "quality", "risk", "management", "schedule", "review", "stakeholder"}
)

// grader scores answers with fixed keyword, length and structure rules so the same answer
// always receives the same score.
type grader struct{}

type grading struct {
	score    model.AIScore
	feedback model.AIFeedback
}

func (grader) grade(q Question, answer string) grading {
	kwScore, matched, missing := keywordScore(answer, q.Keywords)
	lenScore, lenStatus := lengthScore(answer, q.CharLimit())
	structScore, structNotes := structureScore(answer)

	maxScore := float64(q.PointsOrDefault())
	ratio := kwScore*keywordWeight + lenScore*lengthWeight + structScore*structureWeight
	total := math.Round(math.Min(ratio*maxScore, maxScore)*10) / 10
	pct := math.Round(total/maxScore*1000) / 10

	aspects := []model.AspectScore{
		{
			Criterion: "keyword coverage",
			Score:     round10(kwScore),
			Reasoning: fmt.Sprintf("%d of %d expected keywords present", len(matched), len(q.Keywords)),
			Evidence:  evidence(answer, matched),
		},
		{
			Criterion: "length",
			Score:     round10(lenScore),
			Reasoning: fmt.Sprintf("%d characters against a limit of %d (%s)", utf8.RuneCountInString(answer), q.CharLimit(), lenStatus),
		},
		{
			Criterion: "structure",
			Score:     round10(structScore),
			Reasoning: strings.Join(structNotes, "; "),
		},
	}

	g := grading{
		score: model.AIScore{
			TotalScore:   total,
			MaxScore:     maxScore,
			Percentage:   pct,
			Confidence:   ruleConfidence,
			Grade:        export.GradeFor(total, maxScore),
			AspectScores: aspects,
		},
	}
	g.feedback = model.AIFeedback{
		AspectScores: aspects,
		DetailedAnalysis: model.DetailedAnalysis{
			Strengths:       strengths(matched, lenStatus, structNotes),
			Weaknesses:      weaknesses(lenStatus, structScore),
			MissingElements: missing,
		},
		ImprovementSuggestions: suggestions(missing, lenStatus),
		ConfidenceReasoning:    "rule-based scoring over keywords, length and structure",
		RubricAlignment:        fmt.Sprintf("%.0f%% of the rubric weight satisfied", ratio*100),
	}
	return g
}

func keywordScore(answer string, keywords []string) (float64, []string, []string) {
	if len(keywords) == 0 {
		return 1, nil, nil
	}
	lower := strings.ToLower(answer)
	var matched, missing []string
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		} else {
			missing = append(missing, kw)
		}
	}
	ratio := float64(len(matched)) / float64(len(keywords))
	switch {
	case ratio >= 0.8:
		return 1, matched, missing
	case ratio >= 0.6:
		return 0.8, matched, missing
	case ratio >= 0.4:
		return 0.6, matched, missing
	case ratio >= 0.2:
		return 0.4, matched, missing
	default:
		return 0.2, matched, missing
	}
}

func lengthScore(answer string, limit int) (float64, string) {
	n := utf8.RuneCountInString(answer)
	l := float64(limit)
	switch {
	case n == 0:
		return 0, "empty"
	case n > limit:
		excess := (float64(n) - l) / l
		if excess <= 0.1 {
			return 0.9, "slightly over"
		}
		if excess <= 0.3 {
			return 0.7, "over"
		}
		return 0.5, "far over"
	case float64(n) >= l*0.7:
		return 1, "optimal"
	case float64(n) >= l*0.5:
		return 0.9, "good"
	default:
		return 0.7, "short"
	}
}

func structureScore(answer string) (float64, []string) {
	score := 0.5
	var notes []string
	lower := strings.ToLower(answer)
	if strings.ContainsAny(answer, ".,;") {
		score += 0.2
		notes = append(notes, "uses complete sentences")
	}
	if containsAny(lower, causalMarkers) {
		score += 0.2
		notes = append(notes, "explains cause and effect")
	}
	if containsAny(lower, domainTerms) {
		score += 0.1
		notes = append(notes, "uses domain terminology")
	}
	if len(notes) == 0 {
		notes = append(notes, "no structural markers found")
	}
	return math.Min(score, 1), notes
}

func strengths(matched []string, lenStatus string, structNotes []string) []string {
	var out []string
	if len(matched) > 0 {
		out = append(out, "covers "+strings.Join(matched, ", "))
	}
	if lenStatus == "optimal" || lenStatus == "good" {
		out = append(out, "appropriate length")
	}
	for _, n := range structNotes {
		if n != "no structural markers found" {
			out = append(out, n)
		}
	}
	return out
}

func weaknesses(lenStatus string, structScore float64) []string {
	var out []string
	switch lenStatus {
	case "short":
		out = append(out, "answer is brief for the question")
	case "slightly over", "over", "far over":
		out = append(out, "answer exceeds the character limit")
	}
	if structScore < 0.7 {
		out = append(out, "reasoning is not clearly structured")
	}
	return out
}

func suggestions(missing []string, lenStatus string) []string {
	var out []string
	for _, kw := range missing {
		out = append(out, "address "+kw)
	}
	if lenStatus == "short" {
		out = append(out, "develop the argument further")
	}
	return out
}

func evidence(answer string, matched []string) []string {
	lower := strings.ToLower(answer)
	runes := []rune(answer)
	var out []string
	for _, kw := range matched {
		idx := strings.Index(lower, strings.ToLower(kw))
		if idx < 0 {
			continue
		}
		start := utf8.RuneCountInString(lower[:idx])
		from := max(0, start-20)
		to := min(len(runes), start+utf8.RuneCountInString(kw)+20)
		from = min(from, to)
		out = append(out, strings.TrimSpace(string(runes[from:to])))
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func round10(ratio float64) float64 {
	return math.Round(ratio*100) / 10
}
