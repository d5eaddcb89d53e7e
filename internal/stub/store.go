// Package stub is an in-memory grading service for local development and client tests. It
// serves the same REST API as the real service and grades answers with fixed rules.
package stub

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/review"
	appErr "essaygrade/pkg/errors"
)

const defaultPoints = 25

// Question is a stored question plus the keywords the grader looks for.
type Question struct {
	model.Question
	Keywords []string `json:"keywords,omitempty"`
}

func (q Question) PointsOrDefault() int {
	if q.Points <= 0 {
		return defaultPoints
	}
	return q.Points
}

type storedResult struct {
	examID int64
	result model.ScoringResult
}

// Store holds exams, questions, answers, results and batch uploads in memory.
type Store struct {
	mu sync.RWMutex

	nextExam, nextQuestion, nextAnswer, nextResult int64

	exams     map[int64]string
	questions map[int64]Question
	answers   map[int64]model.AnswerSubmission
	results   map[int64]*storedResult
	byAnswer  map[int64]int64
	uploads   map[string]model.BatchJob
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		exams:     map[int64]string{},
		questions: map[int64]Question{},
		answers:   map[int64]model.AnswerSubmission{},
		results:   map[int64]*storedResult{},
		byAnswer:  map[int64]int64{},
		uploads:   map[string]model.BatchJob{},
		now:       time.Now,
	}
}

// AddExam creates an exam and returns its id.
func (s *Store) AddExam(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExam++
	s.exams[s.nextExam] = name
	return s.nextExam
}

// AddQuestion stores q. A zero ID is assigned; a zero ExamID creates an exam named after the title.
func (s *Store) AddQuestion(q Question) Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ExamID == 0 {
		s.nextExam++
		q.ExamID = s.nextExam
		s.exams[q.ExamID] = q.Title
	} else if _, ok := s.exams[q.ExamID]; !ok {
		s.exams[q.ExamID] = q.Title
		s.nextExam = max(s.nextExam, q.ExamID)
	}
	if q.ID == 0 {
		s.nextQuestion++
		q.ID = s.nextQuestion
	} else {
		s.nextQuestion = max(s.nextQuestion, q.ID)
	}
	if q.MaxChars <= 0 {
		q.MaxChars = model.DefaultMaxChars
	}
	q.Points = q.PointsOrDefault()
	s.questions[q.ID] = q
	return q
}

func (s *Store) Question(id int64) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return Question{}, appErr.NotFoundError("question")
	}
	return q, nil
}

// Questions lists questions ordered by id, optionally for one exam.
func (s *Store) Questions(examID int64) []model.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if examID > 0 && q.ExamID != examID {
			continue
		}
		out = append(out, q.Question)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// AddAnswer validates and stores a submission.
func (s *Store) AddAnswer(sub model.AnswerSubmission) (model.AnswerSubmission, error) {
	if strings.TrimSpace(sub.CandidateID) == "" {
		return model.AnswerSubmission{}, appErr.New(appErr.RequiredFieldEmpty).WithMessage("candidate_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[sub.QuestionID]
	if !ok {
		return model.AnswerSubmission{}, appErr.NotFoundError("question")
	}
	if sub.ExamID != 0 && sub.ExamID != q.ExamID {
		return model.AnswerSubmission{}, appErr.New(appErr.InvalidValue).WithMessage("question does not belong to exam")
	}
	sub.ExamID = q.ExamID
	sub.CharCount = utf8.RuneCountInString(sub.AnswerText)
	if sub.CharCount > q.CharLimit() {
		return model.AnswerSubmission{}, appErr.Newf(appErr.AnswerTooLong, "answer has %d characters, the limit is %d", sub.CharCount, q.CharLimit())
	}
	sub.IsBlank = strings.TrimSpace(sub.AnswerText) == ""
	sub.SubmittedAt = s.now().UTC().Format(time.RFC3339)
	s.nextAnswer++
	sub.ID = s.nextAnswer
	s.answers[sub.ID] = sub
	return sub, nil
}

func (s *Store) Answer(id int64) (model.AnswerSubmission, Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[id]
	if !ok {
		return model.AnswerSubmission{}, Question{}, appErr.NotFoundError("answer")
	}
	return a, s.questions[a.QuestionID], nil
}

// ResultForAnswer returns the existing result of an answer, if any.
func (s *Store) ResultForAnswer(answerID int64) (model.ScoringResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAnswer[answerID]
	if !ok {
		return model.ScoringResult{}, false
	}
	return s.results[id].result.Clone(), true
}

// SaveResult stores a new result for an answer.
func (s *Store) SaveResult(examID int64, r model.ScoringResult) model.ScoringResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byAnswer[r.AnswerID]; ok {
		return s.results[id].result.Clone()
	}
	s.nextResult++
	r.ID = s.nextResult
	s.results[r.ID] = &storedResult{examID: examID, result: r.Clone()}
	s.byAnswer[r.AnswerID] = r.ID
	return r
}

func (s *Store) Result(id int64) (model.ScoringResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.results[id]
	if !ok {
		return model.ScoringResult{}, appErr.NotFoundError("scoring result")
	}
	return sr.result.Clone(), nil
}

// Results lists an exam's results in id order.
func (s *Store) Results(examID int64, candidateID string) []model.ScoringResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.ScoringResult{}
	for _, sr := range s.results {
		if sr.examID != examID {
			continue
		}
		if candidateID != "" && sr.result.CandidateID != candidateID {
			continue
		}
		out = append(out, sr.result.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Review saves a reviewer's decision through the reconciliation rules.
func (s *Store) Review(id int64, finalScore float64, notes string) (model.ScoringResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.results[id]
	if !ok {
		return model.ScoringResult{}, appErr.NotFoundError("scoring result")
	}
	updated, err := review.ApplyReview(sr.result, finalScore, notes)
	if err != nil {
		return model.ScoringResult{}, err
	}
	sr.result = updated
	return updated.Clone(), nil
}

func (s *Store) PutUpload(job model.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[job.ID] = job.Clone()
}

// UpdateUpload mutates a stored upload under the lock. Terminal uploads are left alone.
func (s *Store) UpdateUpload(id string, fn func(*model.BatchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.uploads[id]
	if !ok || job.Status.Terminal() {
		return
	}
	fn(&job)
	job.ProgressPercentage = model.Progress(job.ProcessedCount, job.TotalCount)
	job.UpdatedAt = s.now()
	s.uploads[id] = job
}

func (s *Store) Upload(id string) (model.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.uploads[id]
	if !ok {
		return model.BatchJob{}, appErr.NotFoundError("upload " + id)
	}
	out := job.Clone()
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return out, nil
}
