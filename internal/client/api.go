package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/validate"
	appErr "essaygrade/pkg/errors"
)

const (
	pathHealth         = "/health"
	pathSubmit         = "/api/scoring/submit"
	pathEvaluate       = "/api/scoring/evaluate"
	pathResults        = "/api/scoring/results/"
	pathResult         = "/api/scoring/result/"
	pathQuestions      = "/api/admin/questions"
	pathPreview        = "/api/batch-upload/upload/preview"
	pathExecute        = "/api/batch-upload/upload/execute"
	pathUploadStatus   = "/api/batch-upload/upload/status/"
	pathExportResults  = "/api/export/scoring-results/"
	pathExportSummary  = "/api/export/summary/"
	uploadFileField    = "file"
	uploadRequestField = "upload_request"
)

// SubmitAnswerRequest is the submit-answer payload.
type SubmitAnswerRequest struct {
	ExamID      int64  `json:"exam_id" validate:"gt=0"`
	QuestionID  int64  `json:"question_id" validate:"gt=0"`
	CandidateID string `json:"candidate_id" validate:"notblank"`
	AnswerText  string `json:"answer_text" validate:"notblank"`
}

// ReviewRequest is the save-review payload.
type ReviewRequest struct {
	FinalScore    float64 `json:"final_score" validate:"gte=0"`
	ReviewerNotes string  `json:"reviewer_notes"`
}

// Health is the service health payload.
type Health struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services,omitempty"`
}

// Upload is a CSV file in memory.
type Upload struct {
	Name string
	Data []byte
}

// Download is a binary export.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.call(ctx, request{method: http.MethodGet, path: pathHealth}, &out)
	return out, err
}

// SubmitAnswer stores a candidate answer and returns the accepted submission.
func (c *Client) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (model.AnswerSubmission, error) {
	var out model.AnswerSubmission
	if err := validate.Struct(req); err != nil {
		return out, err
	}
	err := c.postJSON(ctx, pathSubmit, req, &out)
	return out, err
}

// EvaluateAnswer asks the grading engine to score an answer. This may take a long time.
func (c *Client) EvaluateAnswer(ctx context.Context, answerID int64) (model.ScoringResult, error) {
	var out model.ScoringResult
	if err := c.postJSON(ctx, pathEvaluate, map[string]int64{"answer_id": answerID}, &out); err != nil {
		return out, err
	}
	return out, checkScales(out)
}

// ListResults returns result summaries for an exam, optionally for one candidate.
func (c *Client) ListResults(ctx context.Context, examID int64, candidateID string) ([]model.ScoringResult, error) {
	var out []model.ScoringResult
	q := url.Values{}
	if candidateID != "" {
		q.Set("candidate_id", candidateID)
	}
	if err := c.call(ctx, request{method: http.MethodGet, path: pathResults + strconv.FormatInt(examID, 10), query: q}, &out); err != nil {
		return out, err
	}
	for _, r := range out {
		if err := checkScales(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetResult returns the full result including AI feedback.
func (c *Client) GetResult(ctx context.Context, resultID int64) (model.ScoringResult, error) {
	var out model.ScoringResult
	if err := c.call(ctx, request{method: http.MethodGet, path: pathResult + strconv.FormatInt(resultID, 10)}, &out); err != nil {
		return out, err
	}
	return out, checkScales(out)
}

// SaveReview persists a reviewer's final score and notes.
func (c *Client) SaveReview(ctx context.Context, resultID int64, req ReviewRequest) (model.ScoringResult, error) {
	var out model.ScoringResult
	if err := validate.Struct(req); err != nil {
		return out, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("marshal review failed: %w", err)
	}
	path := pathResult + strconv.FormatInt(resultID, 10) + "/review"
	if err := c.call(ctx, request{method: http.MethodPut, path: path, body: body}, &out); err != nil {
		return out, err
	}
	return out, checkScales(out)
}

func (c *Client) GetQuestion(ctx context.Context, questionID int64) (model.Question, error) {
	var out model.Question
	err := c.call(ctx, request{method: http.MethodGet, path: pathQuestions + "/" + strconv.FormatInt(questionID, 10)}, &out)
	return out, err
}

func (c *Client) ListQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	var out []model.Question
	q := url.Values{}
	if examID > 0 {
		q.Set("exam_id", strconv.FormatInt(examID, 10))
	}
	err := c.call(ctx, request{method: http.MethodGet, path: pathQuestions, query: q}, &out)
	return out, err
}

// PreviewUpload inspects a CSV without creating a job.
func (c *Client) PreviewUpload(ctx context.Context, file Upload) (model.UploadPreview, error) {
	var out model.UploadPreview
	body, contentType, err := multipartBody(file, nil)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, request{method: http.MethodPost, path: pathPreview, body: body, contentType: contentType}, &out)
	if len(out.SampleRows) > model.MaxPreviewRows {
		out.SampleRows = out.SampleRows[:model.MaxPreviewRows]
	}
	return out, err
}

// ExecuteBatchUpload submits a CSV plus job configuration and returns the job id.
func (c *Client) ExecuteBatchUpload(ctx context.Context, file Upload, cfg model.UploadConfig) (model.UploadAccepted, error) {
	var out model.UploadAccepted
	if err := validate.Struct(cfg); err != nil {
		return out, err
	}
	body, contentType, err := multipartBody(file, &cfg)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, request{method: http.MethodPost, path: pathExecute, body: body, contentType: contentType}, &out)
	if err == nil && out.UploadID == "" {
		return out, appErr.New(appErr.DecodeFailed).WithMessage("execute response carried no upload_id")
	}
	return out, err
}

// BatchStatus fetches the full status snapshot of a batch job.
func (c *Client) BatchStatus(ctx context.Context, uploadID string) (model.BatchJob, error) {
	var out model.BatchJob
	err := c.call(ctx, request{method: http.MethodGet, path: pathUploadStatus + url.PathEscape(uploadID)}, &out)
	return out, err
}

// ExportResults downloads the service-rendered CSV export.
func (c *Client) ExportResults(ctx context.Context, examID int64, format string, reviewedOnly bool) (Download, error) {
	if format == "" {
		format = "csv"
	}
	q := url.Values{}
	q.Set("format", format)
	q.Set("reviewed_only", strconv.FormatBool(reviewedOnly))
	resp, err := c.do(ctx, request{method: http.MethodGet, path: pathExportResults + strconv.FormatInt(examID, 10), query: q})
	if err != nil {
		return Download{}, err
	}
	if err := classify(resp); err != nil {
		return Download{}, err
	}
	out := Download{ContentType: resp.Headers.Get("Content-Type"), Data: resp.Body}
	if _, params, err := mime.ParseMediaType(resp.Headers.Get("Content-Disposition")); err == nil {
		out.FileName = params["filename"]
	}
	return out, nil
}

func (c *Client) ExportSummary(ctx context.Context, examID int64) (model.Summary, error) {
	var out model.Summary
	err := c.call(ctx, request{method: http.MethodGet, path: pathExportSummary + strconv.FormatInt(examID, 10)}, &out)
	return out, err
}

func multipartBody(file Upload, cfg *model.UploadConfig) ([]byte, string, error) {
	if len(file.Data) == 0 {
		return nil, "", appErr.ValidationError("file", "must not be empty")
	}
	name := filepath.Base(file.Name)
	if name == "" || name == "." {
		name = "upload.csv"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(uploadFileField, name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(file.Data)); err != nil {
		return nil, "", fmt.Errorf("write form file failed: %w", err)
	}
	if cfg != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, "", fmt.Errorf("marshal upload request failed: %w", err)
		}
		if err := w.WriteField(uploadRequestField, string(raw)); err != nil {
			return nil, "", fmt.Errorf("write upload request failed: %w", err)
		}
		// Services that predate upload_request read the flat form fields instead.
		fields := [][2]string{
			{"exam_name", cfg.ExamName},
			{"question_text", cfg.QuestionText},
			{"question_title", cfg.QuestionTitle},
			{"max_score", strconv.Itoa(cfg.MaxScore)},
			{"char_limit", strconv.Itoa(cfg.CharLimit)},
		}
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, "", fmt.Errorf("write form field %s failed: %w", f[0], err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer failed: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// checkScales rejects results that mix scales: confidence is a 0-1 fraction, percentage is
// 0-100, and scores stay within [0, max_score].
func checkScales(r model.ScoringResult) error {
	ai := r.AIScore
	fail := func(field string, v float64) error {
		return appErr.Newf(appErr.DecodeFailed, "result %d: %s %v is out of scale", r.ID, field, v).
			WithDetail("field", field)
	}
	switch {
	case ai.Confidence < 0 || ai.Confidence > 1:
		return fail("confidence", ai.Confidence)
	case ai.Percentage < 0 || ai.Percentage > 100:
		return fail("percentage", ai.Percentage)
	case ai.MaxScore < 0:
		return fail("max_score", ai.MaxScore)
	case ai.TotalScore < 0 || (ai.MaxScore > 0 && ai.TotalScore > ai.MaxScore):
		return fail("total_score", ai.TotalScore)
	}
	if f := r.FinalScore; f != nil && (*f < 0 || (ai.MaxScore > 0 && *f > ai.MaxScore)) {
		return fail("final_score", *f)
	}
	return nil
}
