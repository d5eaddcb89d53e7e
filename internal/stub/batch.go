package stub

import (
	"context"
	"fmt"
	"time"

	"essaygrade/internal/grading/model"
	"essaygrade/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// startBatch registers an upload and grades its rows in the background.
func (s *Server) startBatch(ctx context.Context, sh sheet, cfg model.UploadConfig) model.UploadAccepted {
	id := "upload_" + uuid.NewString()[:8]
	q := s.store.AddQuestion(Question{
		Question: model.Question{
			ExamID:   s.store.AddExam(cfg.ExamName),
			Title:    cfg.QuestionTitle,
			Number:   "Q1",
			Text:     cfg.QuestionText,
			MaxChars: cfg.CharLimit,
			Points:   cfg.MaxScore,
		},
	})
	s.store.PutUpload(model.BatchJob{
		ID:         id,
		Status:     model.JobProcessing,
		TotalCount: len(sh.rows),
		Message:    "processing uploaded answers",
		Errors:     []string{},
		UpdatedAt:  time.Now(),
	})

	ctx = logger.WithJobID(context.WithoutCancel(ctx), id)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processBatch(ctx, id, q, sh)
	}()
	return model.UploadAccepted{
		UploadID: id,
		Message:  "batch upload started; poll the status endpoint for progress",
	}
}

func (s *Server) processBatch(ctx context.Context, id string, q Question, sh sheet) {
	logger.Info(ctx, "batch processing started", zap.Int("rows", len(sh.rows)), zap.Int64("exam_id", q.ExamID))
	for i, row := range sh.rows {
		if !s.pause(s.cfg.RowDelay) {
			s.store.UpdateUpload(id, func(j *model.BatchJob) {
				j.Status = model.JobError
				j.Message = "processing interrupted by server shutdown"
			})
			logger.Warn(ctx, "batch processing interrupted", zap.Int("row", i+1))
			return
		}
		rowErr := s.processRow(q, sh, row)
		s.store.UpdateUpload(id, func(j *model.BatchJob) {
			j.ProcessedCount++
			if rowErr != "" {
				j.ErrorCount++
				j.Errors = append(j.Errors, fmt.Sprintf("row %d: %s", i+1, rowErr))
				return
			}
			j.SuccessCount++
		})
	}

	s.store.UpdateUpload(id, func(j *model.BatchJob) {
		if j.TotalCount > 0 && j.SuccessCount == 0 {
			j.Status = model.JobError
			j.Message = "no rows could be graded"
			return
		}
		j.Status = model.JobCompleted
		j.Message = fmt.Sprintf("graded %d of %d rows", j.SuccessCount, j.TotalCount)
	})
	job, _ := s.store.Upload(id)
	logger.Info(ctx, "batch processing finished",
		zap.String("status", string(job.Status)),
		zap.Int("success", job.SuccessCount),
		zap.Int("errors", job.ErrorCount))
}

// processRow stores and grades one row, returning a row error message or "".
func (s *Server) processRow(q Question, sh sheet, row map[string]string) string {
	studentID := sh.value(row, colStudentID)
	answer := sh.value(row, colAnswer)
	switch {
	case studentID == "":
		return "student id is blank"
	case answer == "":
		return "answer is blank"
	}
	sub, err := s.store.AddAnswer(model.AnswerSubmission{
		ExamID:      q.ExamID,
		QuestionID:  q.ID,
		CandidateID: studentID,
		AnswerText:  answer,
	})
	if err != nil {
		return err.Error()
	}
	if _, err := s.evaluate(sub.ID); err != nil {
		return "grading failed: " + err.Error()
	}
	return ""
}

// pause waits d unless the server is shutting down.
func (s *Server) pause(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}
