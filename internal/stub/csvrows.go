package stub

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// Column roles detected from CSV headers.
const (
	colStudentID = "student_id"
	colName      = "name"
	colAnswer    = "answer"
)

var columnPatterns = []struct {
	role     string
	patterns []string
}{
	{colStudentID, []string{"student id", "student_id", "candidate id", "candidate_id", "exam number", "id"}},
	{colName, []string{"name"}},
	{colAnswer, []string{"answer", "response"}},
}

// sheet is a parsed upload.
type sheet struct {
	header  []string
	rows    []map[string]string
	mapping map[string]string
}

func parseSheet(data []byte) (sheet, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !utf8.Valid(data) {
		return sheet{}, appErr.New(appErr.InvalidFormat).WithMessage("file is not valid UTF-8; save it as UTF-8 and try again")
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return sheet{}, appErr.New(appErr.InvalidFormat).WithMessage("CSV file contains no data")
	}
	if err != nil {
		return sheet{}, appErr.Newf(appErr.InvalidFormat, "failed to read CSV file: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sheet{}, appErr.Newf(appErr.InvalidFormat, "failed to read CSV file: %v", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return sheet{}, appErr.New(appErr.InvalidFormat).WithMessage("CSV file contains no data")
	}
	return sheet{header: header, rows: rows, mapping: detectColumns(header)}, nil
}

// detectColumns assigns each header to the first role whose pattern it contains.
func detectColumns(header []string) map[string]string {
	mapping := map[string]string{}
	for _, field := range header {
		lower := strings.ToLower(field)
		for _, cp := range columnPatterns {
			if _, taken := mapping[cp.role]; taken {
				continue
			}
			if matchesAny(lower, cp.patterns) {
				mapping[cp.role] = field
				break
			}
		}
	}
	return mapping
}

func matchesAny(field string, patterns []string) bool {
	for _, p := range patterns {
		if field == p || (len(p) > 2 && strings.Contains(field, p)) {
			return true
		}
	}
	return false
}

// detectIssues reports data-quality problems. They are advisory and never block an upload.
func (s sheet) detectIssues() []string {
	issues := []string{}
	for _, role := range []string{colStudentID, colAnswer} {
		if _, ok := s.mapping[role]; !ok {
			issues = append(issues, fmt.Sprintf("required column %q was not found", role))
		}
	}
	if len(s.mapping) == 0 {
		return issues
	}
	if n := s.countBlank(colStudentID); n > 0 {
		issues = append(issues, fmt.Sprintf("%d rows have a blank student id", n))
	}
	if n := s.countBlank(colAnswer); n > 0 {
		issues = append(issues, fmt.Sprintf("%d rows have a blank answer", n))
	}
	return issues
}

func (s sheet) countBlank(role string) int {
	col := s.mapping[role]
	n := 0
	for _, row := range s.rows {
		if strings.TrimSpace(row[col]) == "" {
			n++
		}
	}
	return n
}

func (s sheet) value(row map[string]string, role string) string {
	col, ok := s.mapping[role]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func (s sheet) preview() model.UploadPreview {
	n := min(len(s.rows), model.MaxPreviewRows)
	return model.UploadPreview{
		TotalRows:      len(s.rows),
		SampleRows:     s.rows[:n],
		ColumnMapping:  s.mapping,
		DetectedIssues: s.detectIssues(),
	}
}
