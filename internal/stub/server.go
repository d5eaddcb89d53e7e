package stub

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"essaygrade/internal/common/http/middleware"
	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/validate"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	version        = "1.0.0"
	maxUploadBytes = 10 << 20
)

// Config tunes the stub's simulated latency.
type Config struct {
	// EvaluateDelay is added to every single-answer evaluation.
	EvaluateDelay time.Duration `yaml:"evaluateDelay"`
	// RowDelay is spent per row of a batch upload.
	RowDelay time.Duration         `yaml:"rowDelay"`
	CORS     middleware.CORSConfig `yaml:"cors"`
}

// Server is the in-memory grading service.
type Server struct {
	cfg    Config
	store  *Store
	grader grader

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, store *Store) *Server {
	if store == nil {
		store = NewStore()
	}
	return &Server{cfg: cfg, store: store, done: make(chan struct{})}
}

func (s *Server) Store() *Store {
	return s.store
}

// Close stops background batch processing and waits for it to exit.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(s.cfg.CORS))
	router.Use(middleware.AccessLog())

	router.GET("/health", s.health)

	scoring := router.Group("/api/scoring")
	scoring.POST("/submit", s.submit)
	scoring.POST("/evaluate", s.evaluateHandler)
	scoring.GET("/results/:exam_id", s.listResults)
	scoring.GET("/result/:id", s.getResult)
	scoring.PUT("/result/:id/review", s.saveReview)

	admin := router.Group("/api/admin")
	admin.GET("/questions", s.listQuestions)
	admin.GET("/questions/:id", s.getQuestion)
	admin.POST("/questions", s.createQuestion)

	upload := router.Group("/api/batch-upload/upload")
	upload.POST("/preview", s.preview)
	upload.POST("/execute", s.execute)
	upload.GET("/status/:upload_id", s.uploadStatus)

	exp := router.Group("/api/export")
	exp.GET("/scoring-results/:exam_id", s.exportResults)
	exp.GET("/summary/:exam_id", s.exportSummary)
	return router
}

func (s *Server) health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "healthy",
		"version": version,
		"services": gin.H{
			"database":  "memory",
			"ai_engine": "rule-based",
		},
	})
}

type submitRequest struct {
	ExamID      int64  `json:"exam_id"`
	QuestionID  int64  `json:"question_id" validate:"gt=0"`
	CandidateID string `json:"candidate_id" validate:"notblank"`
	AnswerText  string `json:"answer_text"`
}

func (s *Server) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.Error(c, err)
		return
	}
	sub, err := s.store.AddAnswer(model.AnswerSubmission{
		ExamID:      req.ExamID,
		QuestionID:  req.QuestionID,
		CandidateID: strings.TrimSpace(req.CandidateID),
		AnswerText:  req.AnswerText,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sub)
}

func (s *Server) evaluateHandler(c *gin.Context) {
	var req struct {
		AnswerID int64 `json:"answer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AnswerID <= 0 {
		response.BadRequest(c, "answer_id is required")
		return
	}
	if !s.pause(s.cfg.EvaluateDelay) {
		response.ErrorWithCode(c, appErr.InternalServerError, "server is shutting down")
		return
	}
	result, err := s.evaluate(req.AnswerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// evaluate grades an answer once; repeated calls return the stored result.
func (s *Server) evaluate(answerID int64) (model.ScoringResult, error) {
	if r, ok := s.store.ResultForAnswer(answerID); ok {
		return r, nil
	}
	answer, q, err := s.store.Answer(answerID)
	if err != nil {
		return model.ScoringResult{}, err
	}
	g := s.grader.grade(q, answer.AnswerText)
	now := time.Now().UTC()
	feedback := g.feedback
	return s.store.SaveResult(answer.ExamID, model.ScoringResult{
		AnswerID:    answer.ID,
		CandidateID: answer.CandidateID,
		Status:      model.ResultCompleted,
		AIScore:     g.score,
		AIFeedback:  &feedback,
		ScoredAt:    &now,
	}), nil
}

func (s *Server) listResults(c *gin.Context) {
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}
	results := s.store.Results(examID, c.Query("candidate_id"))
	for i := range results {
		results[i].AIFeedback = nil
	}
	response.Success(c, results)
}

func (s *Server) getResult(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := s.store.Result(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, r)
}

func (s *Server) saveReview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		FinalScore    *float64 `json:"final_score"`
		ReviewerNotes string   `json:"reviewer_notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FinalScore == nil {
		response.BadRequest(c, "final_score is required")
		return
	}
	r, err := s.store.Review(id, *req.FinalScore, req.ReviewerNotes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, r)
}

func (s *Server) listQuestions(c *gin.Context) {
	var examID int64
	if raw := c.Query("exam_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid exam_id")
			return
		}
		examID = v
	}
	response.Success(c, s.store.Questions(examID))
}

func (s *Server) getQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := s.store.Question(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q.Question)
}

func (s *Server) createQuestion(c *gin.Context) {
	var q Question
	if err := c.ShouldBindJSON(&q); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(q.Text) == "" {
		response.ErrorWithCode(c, appErr.RequiredFieldEmpty, "question_text is required")
		return
	}
	q.ID = 0
	response.Success(c, s.store.AddQuestion(q).Question)
}

func (s *Server) preview(c *gin.Context) {
	sh, ok := s.readSheet(c)
	if !ok {
		return
	}
	response.Success(c, sh.preview())
}

func (s *Server) execute(c *gin.Context) {
	cfg, err := uploadConfig(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sh, ok := s.readSheet(c)
	if !ok {
		return
	}
	response.Success(c, s.startBatch(c.Request.Context(), sh, cfg))
}

func (s *Server) uploadStatus(c *gin.Context) {
	job, err := s.store.Upload(c.Param("upload_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

func (s *Server) exportResults(c *gin.Context) {
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}
	if f := c.DefaultQuery("format", "csv"); f != "csv" {
		response.ErrorWithCode(c, appErr.UnsupportedFormat, fmt.Sprintf("unsupported format %q", f))
		return
	}
	reviewedOnly, _ := strconv.ParseBool(c.DefaultQuery("reviewed_only", "false"))
	rows := export.Project(s.store.Results(examID, ""), reviewedOnly)
	data, err := export.EncodeCSV(rows, export.Options{BOM: true})
	if err != nil {
		response.Error(c, appErr.Wrap(err, appErr.ExportFailed))
		return
	}
	name := export.FileName(strconv.FormatInt(examID, 10), time.Now(), false)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (s *Server) exportSummary(c *gin.Context) {
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}
	response.Success(c, export.Summarize(examID, s.store.Results(examID, "")))
}

func (s *Server) readSheet(c *gin.Context) (sheet, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return sheet{}, false
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		response.ErrorWithCode(c, appErr.InvalidFormat, "please select a CSV file; other formats are not supported")
		return sheet{}, false
	}
	data, err := readFormFile(fh)
	if err != nil {
		response.Error(c, err)
		return sheet{}, false
	}
	sh, err := parseSheet(data)
	if err != nil {
		response.Error(c, err)
		return sheet{}, false
	}
	return sh, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadBytes {
		return nil, appErr.Newf(appErr.InvalidValue, "file exceeds %d bytes", maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "open uploaded file failed")
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "read uploaded file failed")
	}
	return data, nil
}

// uploadConfig reads the job configuration from the upload_request JSON field, falling back
// to individual form fields.
func uploadConfig(c *gin.Context) (model.UploadConfig, error) {
	var cfg model.UploadConfig
	if raw := c.PostForm("upload_request"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return cfg, appErr.Newf(appErr.InvalidFormat, "invalid upload_request: %v", err)
		}
	} else {
		cfg.ExamName = c.PostForm("exam_name")
		cfg.QuestionText = c.PostForm("question_text")
		cfg.QuestionTitle = c.PostForm("question_title")
		cfg.MaxScore, _ = strconv.Atoi(c.DefaultPostForm("max_score", "25"))
		cfg.CharLimit, _ = strconv.Atoi(c.DefaultPostForm("char_limit", "400"))
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
