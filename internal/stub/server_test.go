package stub_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/poller"
	"essaygrade/internal/grading/service"
	"essaygrade/internal/stub"
	"essaygrade/internal/testutil"
	appErr "essaygrade/pkg/errors"

	"github.com/gin-gonic/gin"
)

type env struct {
	client   *client.Client
	store    *stub.Store
	question stub.Question
}

func newEnv(t *testing.T) env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := stub.NewStore()
	q := store.AddQuestion(stub.Question{
		Question: model.Question{Title: "Schedule risk", Text: "Explain schedule risk.", MaxChars: 200, Points: 25},
		Keywords: []string{"risk", "schedule"},
	})
	srv := stub.New(stub.Config{}, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return env{client: client.New(ts.URL, 5*time.Second), store: store, question: q}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	h, err := e.client.Health(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, h.Status, "healthy")
	testutil.AssertEqual(t, h.Services["database"], "memory")
}

func TestScoreReviewExport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	flow := service.NewScoringFlow(e.client, e.client)
	reviews := service.NewReviewService(e.client)

	scored, err := flow.SubmitAndScore(ctx, client.SubmitAnswerRequest{
		ExamID:      e.question.ExamID,
		QuestionID:  e.question.ID,
		CandidateID: "C001",
		AnswerText:  "Schedule risk grows because late tasks delay others, so plan buffers.",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, scored.Status, model.ResultCompleted)
	testutil.AssertEqual(t, scored.CandidateID, "C001")
	testutil.AssertEqual(t, scored.AIScore.MaxScore, 25.0)
	testutil.AssertTrue(t, scored.AIScore.TotalScore > 0 && scored.AIScore.TotalScore <= 25, "ai score within range")

	detail, err := reviews.Get(ctx, scored.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, detail.AIFeedback != nil, "detail carries feedback")
	testutil.AssertEqual(t, len(detail.AIScore.AspectScores), 3)

	_, err = reviews.Apply(ctx, scored.ID, 30, "")
	testutil.AssertCode(t, err, appErr.ScoreOutOfRange)

	out, err := reviews.Apply(ctx, scored.ID, 20, "solid reasoning")
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, out.Conflict, "single reviewer")
	testutil.AssertTrue(t, out.Result.IsReviewed, "result is reviewed")
	testutil.AssertEqual(t, out.Result.Status, model.ResultReviewed)
	testutil.AssertEqual(t, *out.Result.FinalScore, 20.0)
	testutil.AssertEqual(t, out.Result.AIScore.TotalScore, scored.AIScore.TotalScore)

	list, err := reviews.List(ctx, e.question.ExamID, "")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(list), 1)
	testutil.AssertTrue(t, list[0].AIFeedback == nil, "list omits feedback")
	testutil.AssertEqual(t, *list[0].ReviewerNotes, "solid reasoning")

	sum, err := e.client.ExportSummary(ctx, e.question.ExamID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sum.TotalCount, 1)
	testutil.AssertEqual(t, sum.ReviewedCount, 1)
	testutil.AssertEqual(t, sum.MaxScore, 20.0)

	dl, err := e.client.ExportResults(ctx, e.question.ExamID, "csv", true)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, strings.HasPrefix(dl.FileName, "scoring_results_"), "download is named by the service")
	testutil.AssertTrue(t, bytes.HasPrefix(dl.Data, []byte("\ufeff")), "download starts with a BOM")
	testutil.AssertTrue(t, bytes.Contains(dl.Data, []byte("solid reasoning")), "download carries reviewer notes")

	_, err = e.client.ExportResults(ctx, e.question.ExamID, "xlsx", false)
	testutil.AssertCode(t, err, appErr.ServiceRejection)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sub, err := e.client.SubmitAnswer(ctx, client.SubmitAnswerRequest{ExamID: e.question.ExamID, QuestionID: e.question.ID, CandidateID: "C002", AnswerText: "risk"})
	testutil.AssertNoError(t, err)

	first, err := e.client.EvaluateAnswer(ctx, sub.ID)
	testutil.AssertNoError(t, err)
	second, err := e.client.EvaluateAnswer(ctx, sub.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, second.ID, first.ID)
	testutil.AssertEqual(t, second.AIScore.TotalScore, first.AIScore.TotalScore)
}

func TestServiceRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.SubmitAnswer(ctx, client.SubmitAnswerRequest{ExamID: e.question.ExamID, QuestionID: 999, CandidateID: "C", AnswerText: "x"})
	testutil.AssertCode(t, err, appErr.ServiceRejection)
	testutil.AssertEqual(t, appErr.GetError(err).Details["not_found"], true)

	_, err = e.client.SubmitAnswer(ctx, client.SubmitAnswerRequest{ExamID: e.question.ExamID, QuestionID: e.question.ID, CandidateID: "C", AnswerText: strings.Repeat("a", 201)})
	testutil.AssertCode(t, err, appErr.ServiceRejection)
	testutil.AssertTrue(t, strings.Contains(err.Error(), "limit is 200"), "service explains the limit")

	_, err = e.client.GetResult(ctx, 42)
	testutil.AssertCode(t, err, appErr.ServiceRejection)

	_, err = e.client.BatchStatus(ctx, "upload_missing")
	testutil.AssertCode(t, err, appErr.ServiceRejection)

	_, err = e.client.PreviewUpload(ctx, client.Upload{Name: "answers.xlsx", Data: []byte("x")})
	testutil.AssertCode(t, err, appErr.ServiceRejection)
	testutil.AssertTrue(t, strings.Contains(err.Error(), "CSV"), "service asks for a CSV file")
}

func TestQuestions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	q, err := e.client.GetQuestion(ctx, e.question.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, q.CharLimit(), 200)

	qs, err := e.client.ListQuestions(ctx, e.question.ExamID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(qs), 1)
	qs, err = e.client.ListQuestions(ctx, e.question.ExamID+1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(qs), 0)
}

func batchService(e env) *service.BatchService {
	return service.NewBatchService(e.client, nil, poller.New(e.client, poller.Config{Interval: 5 * time.Millisecond}))
}

func batchConfig() model.UploadConfig {
	return model.UploadConfig{ExamName: "Midterm", QuestionTitle: "Q1", QuestionText: "Explain schedule risk.", MaxScore: 25, CharLimit: 400}
}

func TestBatchUploadEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := batchService(e)
	file := client.Upload{Name: "answers.csv", Data: []byte("student_id,name,answer\nS1,Ann,Schedule risk grows because tasks slip.\nS2,Bob,\n")}

	p, err := svc.Preview(ctx, file)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p.TotalRows, 2)
	testutil.AssertEqual(t, p.ColumnMapping["answer"], "answer")
	testutil.AssertEqual(t, len(p.DetectedIssues), 1)

	tr, err := svc.Start(ctx, file, batchConfig(), nil)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, strings.HasPrefix(tr.ID(), "upload_"), "job id comes from the service")

	snap, err := tr.Wait()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, snap.Status, model.JobCompleted)
	testutil.AssertEqual(t, snap.TotalCount, 2)
	testutil.AssertEqual(t, snap.SuccessCount, 1)
	testutil.AssertEqual(t, snap.ErrorCount, 1)
	testutil.AssertEqual(t, snap.ProgressPercentage, 100.0)
	testutil.AssertEqual(t, snap.Errors[0], "row 2: answer is blank")

	exams := e.store.Questions(0)
	testutil.AssertEqual(t, len(exams), 2)
	results, err := e.client.ListResults(ctx, exams[1].ExamID, "")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(results), 1)
	testutil.AssertEqual(t, results[0].CandidateID, "S1")
}

func TestBatchUploadWithNoGradableRows(t *testing.T) {
	e := newEnv(t)
	svc := batchService(e)
	file := client.Upload{Name: "answers.csv", Data: []byte("student_id,answer\nS1,\nS2,\n")}

	tr, err := svc.Start(context.Background(), file, batchConfig(), nil)
	testutil.AssertNoError(t, err)
	snap, err := tr.Wait()
	testutil.AssertCode(t, err, appErr.TerminalJobError)
	testutil.AssertEqual(t, snap.Status, model.JobError)
	testutil.AssertEqual(t, err.Error(), "no rows could be graded")
	testutil.AssertEqual(t, len(snap.Errors), 2)
}
