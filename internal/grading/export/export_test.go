package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/testutil"

	"github.com/klauspost/compress/gzip"
)

func results() []model.ScoringResult {
	scoredAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []model.ScoringResult{
		{
			ID: 1, AnswerID: 11, CandidateID: "C001", Status: model.ResultCompleted,
			AIScore:  model.AIScore{TotalScore: 20, MaxScore: 25, Confidence: 0.8},
			ScoredAt: &scoredAt,
			AIFeedback: &model.AIFeedback{
				DetailedAnalysis:       model.DetailedAnalysis{Strengths: []string{"clear", "concise"}},
				ImprovementSuggestions: []string{"add an example"},
				ConfidenceReasoning:    "rule based",
			},
		},
		{
			ID: 2, AnswerID: 12, CandidateID: "C002", Status: model.ResultReviewed,
			AIScore:       model.AIScore{TotalScore: 10, MaxScore: 25, Confidence: 0.8},
			FinalScore:    testutil.Float(23),
			ReviewerNotes: testutil.String("well argued"),
			IsReviewed:    true,
		},
		{
			ID: 3, AnswerID: 13, CandidateID: "C003", Status: model.ResultPending,
			AIScore: model.AIScore{MaxScore: 25},
		},
		{
			ID: 4, AnswerID: 14, CandidateID: "C004", Status: model.ResultReviewed,
			AIScore:    model.AIScore{TotalScore: 14, MaxScore: 25},
			FinalScore: testutil.Float(12),
			IsReviewed: true,
		},
	}
}

func TestProjectUsesDisplayScore(t *testing.T) {
	rows := export.Project(results(), false)
	testutil.AssertEqual(t, len(rows), 4)

	testutil.AssertEqual(t, rows[0].Score, 20.0)
	testutil.AssertEqual(t, rows[0].Grade, "B")
	testutil.AssertTrue(t, rows[0].FinalScore == nil, "unreviewed row has no final score")
	testutil.AssertEqual(t, rows[0].Strengths, "clear; concise")
	testutil.AssertEqual(t, rows[0].Suggestions, "add an example")

	testutil.AssertEqual(t, rows[1].AIScore, 10.0)
	testutil.AssertEqual(t, rows[1].Score, 23.0)
	testutil.AssertEqual(t, rows[1].Grade, "A")
	testutil.AssertEqual(t, rows[1].ReviewerNotes, "well argued")

	testutil.AssertEqual(t, rows[2].Grade, "N/A")
}

func TestProjectReviewedOnlyKeepsOrder(t *testing.T) {
	all := export.Project(results(), false)
	reviewed := export.Project(results(), true)

	testutil.AssertEqual(t, len(reviewed), 2)
	testutil.AssertEqual(t, reviewed[0].ResultID, int64(2))
	testutil.AssertEqual(t, reviewed[1].ResultID, int64(4))
	testutil.AssertEqual(t, reviewed[0].Score, all[1].Score)
	testutil.AssertEqual(t, reviewed[1].Grade, all[3].Grade)
	testutil.AssertEqual(t, len(export.Project(nil, true)), 0)
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score, max float64
		want       string
	}{
		{22.5, 25, "A"},
		{20, 25, "B"},
		{17.5, 25, "C"},
		{15, 25, "D"},
		{14.9, 25, "F"},
		{0, 25, "N/A"},
		{10, 0, "N/A"},
	}
	for _, tt := range tests {
		if got := export.GradeFor(tt.score, tt.max); got != tt.want {
			t.Errorf("GradeFor(%v, %v) = %s, want %s", tt.score, tt.max, got, tt.want)
		}
	}
}

func TestEncodeCSVIsDeterministic(t *testing.T) {
	rows := export.Project(results(), false)
	a, err := export.EncodeCSV(rows, export.Options{BOM: true})
	testutil.AssertNoError(t, err)
	b, err := export.EncodeCSV(rows, export.Options{BOM: true})
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, bytes.Equal(a, b), "same rows must encode to the same bytes")
	testutil.AssertTrue(t, bytes.HasPrefix(a, []byte("\ufeff")), "output starts with a BOM")

	records, err := csv.NewReader(bytes.NewReader(a[len("\ufeff"):])).ReadAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(records), 5)
	testutil.AssertEqual(t, records[0][0], "result_id")
	testutil.AssertEqual(t, records[1][9], "80.0%")
	testutil.AssertEqual(t, records[1][12], "2024-03-01 09:30:00")
	testutil.AssertEqual(t, records[2][5], "23")
	testutil.AssertEqual(t, records[2][10], "reviewed")
	testutil.AssertEqual(t, records[3][5], "")
	testutil.AssertEqual(t, records[3][10], "unreviewed")
}

func TestEncodeCSVGzip(t *testing.T) {
	rows := export.Project(results(), true)
	plain, err := export.EncodeCSV(rows, export.Options{})
	testutil.AssertNoError(t, err)
	packed, err := export.EncodeCSV(rows, export.Options{Gzip: true})
	testutil.AssertNoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	testutil.AssertNoError(t, err)
	unpacked, err := io.ReadAll(zr)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, bytes.Equal(plain, unpacked), "gzip output should decompress to the plain csv")
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC)
	testutil.AssertEqual(t, export.FileName("12", at, false), "scoring_results_12_20240301_093005.csv")
	testutil.AssertEqual(t, export.FileName("mid term/1", at, true), "scoring_results_mid_term_1_20240301_093005.csv.gz")
	testutil.AssertEqual(t, export.FileName("", at, false), "scoring_results_exam_20240301_093005.csv")
}

func TestSummarize(t *testing.T) {
	s := export.Summarize(5, results())
	testutil.AssertEqual(t, s.ExamID, int64(5))
	testutil.AssertEqual(t, s.TotalCount, 4)
	testutil.AssertEqual(t, s.ReviewedCount, 2)
	testutil.AssertEqual(t, s.MaxScore, 23.0)
	testutil.AssertEqual(t, s.MinScore, 12.0)
	testutil.AssertEqual(t, s.AverageScore, (20.0+23.0+12.0)/3)
	testutil.AssertEqual(t, s.GradeDistribution["A"], 1)
	testutil.AssertEqual(t, s.GradeDistribution["B"], 1)
	testutil.AssertEqual(t, s.GradeDistribution["F"], 1)

	empty := export.Summarize(5, nil)
	testutil.AssertEqual(t, empty.AverageScore, 0.0)
	testutil.AssertEqual(t, len(empty.GradeDistribution), 0)
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := export.DirSink{Dir: dir}

	loc, err := sink.Put(context.Background(), "../escape.csv", "text/csv", []byte("a,b\n"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, loc, filepath.Join(dir, "escape.csv"))

	data, err := os.ReadFile(loc)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(data), "a,b\n")
}

func TestMinIOSinkPut(t *testing.T) {
	var (
		mu      sync.Mutex
		method  string
		path    string
		ctype   string
		payload []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, ctype, payload = r.Method, r.URL.Path, r.Header.Get("Content-Type"), body
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := export.NewMinIOSink(export.MinIOConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "exports",
		Prefix:    "reports/",
		Region:    "us-east-1",
	})
	testutil.AssertNoError(t, err)

	loc, err := sink.Put(context.Background(), "scoring_results_1.csv", "text/csv; charset=utf-8", []byte("x,y\n"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, loc, "s3://exports/reports/scoring_results_1.csv")

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, method, http.MethodPut)
	testutil.AssertEqual(t, path, "/exports/reports/scoring_results_1.csv")
	testutil.AssertEqual(t, ctype, "text/csv; charset=utf-8")
	testutil.AssertTrue(t, bytes.Contains(payload, []byte("x,y\n")), "object body should carry the export")
}

func TestNewMinIOSinkRequiresSettings(t *testing.T) {
	_, err := export.NewMinIOSink(export.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	testutil.AssertTrue(t, err != nil, "bucket is required")
	_, err = export.NewMinIOSink(export.MinIOConfig{})
	testutil.AssertTrue(t, err != nil, "endpoint is required")
}
