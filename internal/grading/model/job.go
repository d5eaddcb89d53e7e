package model

import "time"

// BatchJob is the client-side snapshot of one batch upload.
type BatchJob struct {
	ID                 string    `json:"upload_id"`
	Status             JobStatus `json:"status"`
	TotalCount         int       `json:"total_count"`
	ProcessedCount     int       `json:"processed_count"`
	SuccessCount       int       `json:"success_count"`
	ErrorCount         int       `json:"error_count"`
	ProgressPercentage float64   `json:"progress_percentage"`
	Message            string    `json:"message"`
	Errors             []string  `json:"errors"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// Progress returns 100*processed/total clamped to [0, 100], and 0 for an empty job.
func Progress(processed, total int) float64 {
	if total <= 0 || processed <= 0 {
		return 0
	}
	pct := 100 * float64(processed) / float64(total)
	if pct > 100 {
		return 100
	}
	return pct
}

// Clone returns a deep copy so callers cannot mutate a job's error list.
func (j BatchJob) Clone() BatchJob {
	out := j
	if j.Errors != nil {
		out.Errors = append([]string(nil), j.Errors...)
	}
	return out
}

// UploadConfig is the job configuration sent with a batch upload.
type UploadConfig struct {
	ExamName      string `json:"exam_name" validate:"notblank"`
	QuestionText  string `json:"question_text" validate:"notblank"`
	QuestionTitle string `json:"question_title" validate:"notblank"`
	MaxScore      int    `json:"max_score" validate:"gt=0"`
	CharLimit     int    `json:"char_limit" validate:"gt=0"`
}

// UploadAccepted is the execute-batch response.
type UploadAccepted struct {
	UploadID string `json:"upload_id"`
	Message  string `json:"message"`
}

// UploadPreview is the pre-upload CSV inspection result. DetectedIssues are advisory.
type UploadPreview struct {
	TotalRows      int                 `json:"total_rows"`
	SampleRows     []map[string]string `json:"sample_data"`
	ColumnMapping  map[string]string   `json:"column_mapping"`
	DetectedIssues []string            `json:"detected_issues"`
}

// MaxPreviewRows bounds the sample rows returned by a preview.
const MaxPreviewRows = 5
