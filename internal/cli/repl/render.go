package repl

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/review"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// table renders into a buffer so concurrent progress lines never interleave with it.
func (s *Session) table(header []string, rows [][]string) {
	var buf bytes.Buffer
	t := tablewriter.NewWriter(&buf)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.AppendBulk(rows)
	t.Render()
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = s.out.Write(buf.Bytes())
}

func (s *Session) title(text string) {
	s.printColor(color.FgYellow, "\n%s", text)
}

func (s *Session) renderHealth(h client.Health) {
	attr := color.FgGreen
	if h.Status != "healthy" {
		attr = color.FgRed
	}
	s.printColor(attr, "status: %s", h.Status)
	if h.Version != "" {
		s.printLine("version: %s", h.Version)
	}
	names := make([]string, 0, len(h.Services))
	for name := range h.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.printLine("  %s: %s", name, h.Services[name])
	}
}

func (s *Session) renderResult(r model.ScoringResult) {
	display := review.DisplayScore(r)
	maxScore := r.MaxScore()
	rows := [][]string{
		{"result", strconv.FormatInt(r.ID, 10)},
		{"answer", strconv.FormatInt(r.AnswerID, 10)},
		{"candidate", r.CandidateID},
		{"status", string(r.Status)},
		{"ai score", fmt.Sprintf("%s / %s (%.1f%%)", formatScore(r.AIScore.TotalScore), formatScore(maxScore), r.AIScore.Percentage)},
		{"ai grade", r.AIScore.Grade},
		{"confidence", fmt.Sprintf("%.1f%%", r.AIScore.Confidence*100)},
		{"final score", formatOptional(r.FinalScore)},
		{"score", fmt.Sprintf("%s (%s)", formatScore(display), export.GradeFor(display, maxScore))},
		{"reviewed", strconv.FormatBool(r.IsReviewed)},
	}
	if r.ReviewerNotes != nil && *r.ReviewerNotes != "" {
		rows = append(rows, []string{"notes", *r.ReviewerNotes})
	}
	if r.IsReviewed {
		rows = append(rows, []string{"adjustment", fmt.Sprintf("%+.1f", review.Adjustment(r))})
	}
	s.table([]string{"Field", "Value"}, rows)

	if len(r.AIScore.AspectScores) > 0 {
		aspects := make([][]string, 0, len(r.AIScore.AspectScores))
		for _, a := range r.AIScore.AspectScores {
			aspects = append(aspects, []string{a.Criterion, formatScore(a.Score), a.Reasoning})
		}
		s.table([]string{"Criterion", "Score", "Reasoning"}, aspects)
	}
}

func (s *Session) renderFeedback(fb *model.AIFeedback) {
	if fb == nil {
		return
	}
	sections := []struct {
		name  string
		items []string
	}{
		{"Strengths", fb.DetailedAnalysis.Strengths},
		{"Weaknesses", fb.DetailedAnalysis.Weaknesses},
		{"Missing elements", fb.DetailedAnalysis.MissingElements},
		{"Specific issues", fb.DetailedAnalysis.SpecificIssues},
		{"Suggestions", fb.ImprovementSuggestions},
	}
	for _, sec := range sections {
		if len(sec.items) == 0 {
			continue
		}
		s.title(sec.name)
		for _, item := range sec.items {
			s.printLine("  - %s", item)
		}
	}
	if fb.ConfidenceReasoning != "" {
		s.title("Confidence")
		s.printLine("  %s", fb.ConfidenceReasoning)
	}
}

func (s *Session) renderResults(results []model.ScoringResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		display := review.DisplayScore(r)
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.CandidateID,
			string(r.Status),
			formatScore(r.AIScore.TotalScore),
			formatOptional(r.FinalScore),
			formatScore(display),
			export.GradeFor(display, r.MaxScore()),
			reviewedMark(r.IsReviewed),
		})
	}
	s.table([]string{"ID", "Candidate", "Status", "AI", "Final", "Score", "Grade", "Reviewed"}, rows)
}

func (s *Session) renderPreview(p model.UploadPreview) {
	s.printLine("rows: %d", p.TotalRows)
	keys := make([]string, 0, len(p.ColumnMapping))
	for k := range p.ColumnMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mapping := make([][]string, 0, len(keys))
	for _, k := range keys {
		mapping = append(mapping, []string{k, p.ColumnMapping[k]})
	}
	if len(mapping) > 0 {
		s.table([]string{"Field", "Column"}, mapping)
	}
	if len(p.SampleRows) == 0 {
		return
	}
	cols := sampleColumns(p.SampleRows)
	rows := make([][]string, 0, len(p.SampleRows))
	for _, sample := range p.SampleRows {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = truncate(sample[c], 40)
		}
		rows = append(rows, row)
	}
	s.table(cols, rows)
}

func (s *Session) renderJobs(jobs []model.BatchJob, tracking func(string) bool) {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		row := []string{
			j.ID,
			string(j.Status),
			fmt.Sprintf("%d/%d", j.ProcessedCount, j.TotalCount),
			fmt.Sprintf("%.0f%%", j.ProgressPercentage),
			strconv.Itoa(j.SuccessCount),
			strconv.Itoa(j.ErrorCount),
			formatTime(j.UpdatedAt),
		}
		if tracking != nil {
			row = append(row, reviewedMark(tracking(j.ID)))
		}
		rows = append(rows, row)
	}
	header := []string{"Job", "Status", "Processed", "Progress", "Scored", "Failed", "Updated"}
	if tracking != nil {
		header = append(header, "Following")
	}
	s.table(header, rows)
}

func (s *Session) renderSummary(sum model.Summary) {
	s.title(fmt.Sprintf("Exam %d", sum.ExamID))
	s.table([]string{"Total", "Reviewed", "Average", "Max", "Min"}, [][]string{{
		strconv.Itoa(sum.TotalCount),
		strconv.Itoa(sum.ReviewedCount),
		formatScore(sum.AverageScore),
		formatScore(sum.MaxScore),
		formatScore(sum.MinScore),
	}})
	if len(sum.GradeDistribution) == 0 {
		return
	}
	grades := make([]string, 0, len(sum.GradeDistribution))
	for g := range sum.GradeDistribution {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	rows := make([][]string, 0, len(grades))
	for _, g := range grades {
		rows = append(rows, []string{g, strconv.Itoa(sum.GradeDistribution[g])})
	}
	s.table([]string{"Grade", "Count"}, rows)
}

func progressLine(j model.BatchJob) string {
	line := fmt.Sprintf("[%s] %s %d/%d (%.0f%%) scored=%d failed=%d",
		j.ID, j.Status, j.ProcessedCount, j.TotalCount, j.ProgressPercentage, j.SuccessCount, j.ErrorCount)
	if j.Message != "" {
		line += " " + j.Message
	}
	return line
}

// sampleColumns is the sorted union of sample keys.
func sampleColumns(samples []map[string]string) []string {
	seen := map[string]bool{}
	var cols []string
	for _, sample := range samples {
		for k := range sample {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatScore(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func reviewedMark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(v string, n int) string {
	r := []rune(strings.TrimSpace(v))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
