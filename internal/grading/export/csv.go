package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	appErr "essaygrade/pkg/errors"

	"github.com/klauspost/compress/gzip"
)

const (
	utf8BOM    = "\ufeff"
	timeLayout = "2006-01-02 15:04:05"
)

var header = []string{
	"result_id",
	"answer_id",
	"candidate_id",
	"status",
	"ai_score",
	"final_score",
	"score",
	"max_score",
	"grade",
	"confidence",
	"review_state",
	"reviewer_notes",
	"scored_at",
	"reviewed_at",
	"confidence_reasoning",
	"strengths",
	"weaknesses",
	"missing_elements",
	"suggestions",
}

// Options controls CSV encoding.
type Options struct {
	// BOM prefixes the output with a UTF-8 byte order mark so spreadsheet tools detect the encoding.
	BOM  bool
	Gzip bool
}

// WriteCSV encodes rows in order. The output depends only on rows, never on the clock.
func WriteCSV(w io.Writer, rows []Row, opts Options) error {
	out := w
	var gz *gzip.Writer
	if opts.Gzip {
		gz = gzip.NewWriter(w)
		out = gz
	}
	if opts.BOM {
		if _, err := io.WriteString(out, utf8BOM); err != nil {
			return appErr.Wrapf(err, appErr.ExportFailed, "write bom failed")
		}
	}
	cw := csv.NewWriter(out)
	if err := cw.Write(header); err != nil {
		return appErr.Wrapf(err, appErr.ExportFailed, "write header failed")
	}
	for _, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return appErr.Wrapf(err, appErr.ExportFailed, "write row %d failed", row.ResultID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return appErr.Wrapf(err, appErr.ExportFailed, "flush csv failed")
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return appErr.Wrapf(err, appErr.ExportFailed, "close gzip failed")
		}
	}
	return nil
}

// EncodeCSV is WriteCSV into memory.
func EncodeCSV(rows []Row, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func record(r Row) []string {
	final := ""
	if r.FinalScore != nil {
		final = formatScore(*r.FinalScore)
	}
	state := "unreviewed"
	if r.Reviewed {
		state = "reviewed"
	}
	confidence := ""
	if r.Confidence > 0 {
		confidence = fmt.Sprintf("%.1f%%", r.Confidence*100)
	}
	return []string{
		strconv.FormatInt(r.ResultID, 10),
		strconv.FormatInt(r.AnswerID, 10),
		r.CandidateID,
		string(r.Status),
		formatScore(r.AIScore),
		final,
		formatScore(r.Score),
		formatScore(r.MaxScore),
		r.Grade,
		confidence,
		state,
		r.ReviewerNotes,
		formatTime(r.ScoredAt),
		formatTime(r.ReviewedAt),
		r.ConfidenceReasoning,
		r.Strengths,
		r.Weaknesses,
		r.MissingElements,
		r.Suggestions,
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName builds "scoring_results_<exam>_<YYYYMMDD_HHMMSS>.csv[.gz]". The timestamp is the
// only part that varies between exports of the same data.
func FileName(exam string, at time.Time, gzipped bool) string {
	name := unsafeName.ReplaceAllString(exam, "_")
	if name == "" {
		name = "exam"
	}
	fn := fmt.Sprintf("scoring_results_%s_%s.csv", name, at.Format("20060102_150405"))
	if gzipped {
		fn += ".gz"
	}
	return fn
}
