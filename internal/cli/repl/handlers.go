package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"essaygrade/internal/cli/command"
	"essaygrade/internal/client"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/grading/poller"
	"essaygrade/internal/grading/service"
	appErr "essaygrade/pkg/errors"

	"github.com/fatih/color"
)

const defaultMaxScore = 25

func (s *Session) health(ctx context.Context, _ command.Params) error {
	h, err := s.svc.Client.Health(ctx)
	if err != nil {
		return err
	}
	s.renderHealth(h)
	return nil
}

func (s *Session) scoreSubmit(ctx context.Context, params command.Params) error {
	answer := params.Get("answer")
	if path := params.Get("answer_file"); path != "" {
		data, err := command.ReadFile(path)
		if err != nil {
			return err
		}
		answer = string(data)
	}
	examID, _ := command.ParseInt64(params.Get("exam_id"))
	questionID, _ := command.ParseInt64(params.Get("question_id"))
	req := client.SubmitAnswerRequest{
		ExamID:      examID,
		QuestionID:  questionID,
		CandidateID: params.Get("candidate_id"),
		AnswerText:  answer,
	}

	s.svc.Scoring.OnPhase(func(p service.Phase) {
		if p != service.PhaseIdle {
			s.printColor(color.FgCyan, "%s...", p)
		}
	})
	defer s.svc.Scoring.OnPhase(nil)

	result, err := s.svc.Scoring.SubmitAndScore(ctx, req)
	if err != nil {
		return err
	}
	s.renderResult(result)
	s.notices.Success(fmt.Sprintf("answer scored: %s / %s (%s)",
		formatScore(result.AIScore.TotalScore), formatScore(result.AIScore.MaxScore), result.AIScore.Grade))
	return nil
}

func (s *Session) resultsList(ctx context.Context, params command.Params) error {
	examID, _ := command.ParseInt64(params.Get("exam_id"))
	results, err := s.svc.Reviews.List(ctx, examID, params.Get("candidate_id"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		s.notices.Info(fmt.Sprintf("no results for exam %d", examID))
		return nil
	}
	s.renderResults(results)
	return nil
}

func (s *Session) resultsGet(ctx context.Context, params command.Params) error {
	id, _ := command.ParseInt64(params.Get("id"))
	r, err := s.svc.Reviews.Get(ctx, id)
	if err != nil {
		return err
	}
	if command.ParseBool(params.Get("json")) {
		return s.renderJSON(r)
	}
	s.renderResult(r)
	s.renderFeedback(r.AIFeedback)
	return nil
}

func (s *Session) reviewApply(ctx context.Context, params command.Params) error {
	id, _ := command.ParseInt64(params.Get("id"))
	score, _ := command.ParseFloat(params.Get("score"))
	out, err := s.svc.Reviews.Apply(ctx, id, score, params.Get("notes"))
	if err != nil {
		return err
	}
	if out.Conflict {
		s.notices.Warn(fmt.Sprintf("result %d was changed by someone else while you edited it; your review replaced it", id))
	}
	s.renderResult(out.Result)
	s.notices.Success(fmt.Sprintf("review saved for result %d", out.Result.ID))
	return nil
}

func (s *Session) batchPreview(ctx context.Context, params command.Params) error {
	upload, err := readUpload(params.Get("file"))
	if err != nil {
		return err
	}
	p, err := s.svc.Batches.Preview(ctx, upload)
	if err != nil {
		return err
	}
	s.renderPreview(p)
	for _, issue := range p.DetectedIssues {
		s.notices.Warn(issue)
	}
	return nil
}

func (s *Session) batchRun(ctx context.Context, params command.Params) error {
	upload, err := readUpload(params.Get("file"))
	if err != nil {
		return err
	}
	cfg := model.UploadConfig{
		ExamName:      params.Get("exam_name"),
		QuestionTitle: params.Get("question_title"),
		QuestionText:  params.Get("question_text"),
		MaxScore:      defaultMaxScore,
		CharLimit:     model.DefaultMaxChars,
	}
	if v := params.Get("max_score"); v != "" {
		cfg.MaxScore, _ = command.ParseInt(v)
	}
	if v := params.Get("char_limit"); v != "" {
		cfg.CharLimit, _ = command.ParseInt(v)
	}
	detach := command.ParseBool(params.Get("detach"))
	ctx, stop := s.followContext(ctx, detach)
	defer stop()

	t, err := s.svc.Batches.Start(ctx, upload, cfg, s.progress(detach))
	if err != nil {
		return err
	}
	s.notices.Info(fmt.Sprintf("batch job %s accepted", t.ID()))
	return s.follow(t, detach)
}

func (s *Session) batchWatch(ctx context.Context, params command.Params) error {
	id := params.Get("id")
	if prev, ok := s.tracker(id); ok {
		prev.Cancel()
		<-prev.Done()
		s.untrack(prev)
	}
	detach := command.ParseBool(params.Get("detach"))
	ctx, stop := s.followContext(ctx, detach)
	defer stop()

	t, err := s.svc.Batches.Watch(ctx, id, s.progress(detach))
	if err != nil {
		return err
	}
	return s.follow(t, detach)
}

func (s *Session) batchJobs(ctx context.Context, _ command.Params) error {
	jobs, err := s.svc.Batches.Jobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		s.notices.Info("no tracked batch jobs")
		return nil
	}
	s.renderJobs(jobs, func(id string) bool {
		_, ok := s.tracker(id)
		return ok
	})
	return nil
}

func (s *Session) batchForget(ctx context.Context, params command.Params) error {
	id := params.Get("id")
	if t, ok := s.tracker(id); ok {
		t.Cancel()
		<-t.Done()
		s.untrack(t)
	}
	if err := s.svc.Batches.Forget(ctx, id); err != nil {
		return err
	}
	s.notices.Info(fmt.Sprintf("batch job %s forgotten", id))
	return nil
}

func (s *Session) exportCSV(ctx context.Context, params command.Params) error {
	examID, _ := command.ParseInt64(params.Get("exam_id"))
	gz := s.cfg.Export.Gzip
	if params.Has("gzip") {
		gz = command.ParseBool(params.Get("gzip"))
	}
	out, err := s.svc.Exports.CSV(ctx, service.ExportRequest{
		ExamID:       examID,
		ReviewedOnly: command.ParseBool(params.Get("reviewed_only")),
		Gzip:         gz,
	})
	if err != nil {
		return err
	}
	s.notices.Success(fmt.Sprintf("exported %d rows to %s (%d bytes)", out.Rows, out.Location, out.Bytes))
	return nil
}

func (s *Session) exportDownload(ctx context.Context, params command.Params) error {
	examID, _ := command.ParseInt64(params.Get("exam_id"))
	out, err := s.svc.Exports.Download(ctx, service.ExportRequest{
		ExamID:       examID,
		ReviewedOnly: command.ParseBool(params.Get("reviewed_only")),
	})
	if err != nil {
		return err
	}
	s.notices.Success(fmt.Sprintf("downloaded %s to %s (%d bytes)", out.Name, out.Location, out.Bytes))
	return nil
}

func (s *Session) exportSummary(ctx context.Context, params command.Params) error {
	examID, _ := command.ParseInt64(params.Get("exam_id"))
	sum, err := s.svc.Exports.Summary(ctx, examID, command.ParseBool(params.Get("server")))
	if err != nil {
		return err
	}
	s.renderSummary(sum)
	return nil
}

// followContext lets Ctrl-C stop a foreground follow without leaving the REPL. Detached
// jobs keep the session context.
func (s *Session) followContext(ctx context.Context, detach bool) (context.Context, context.CancelFunc) {
	if detach {
		return ctx, func() {}
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

func (s *Session) progress(detach bool) poller.UpdateFunc {
	if detach {
		return nil
	}
	return func(snap model.BatchJob) {
		s.printLine("%s", progressLine(snap))
	}
}

// follow waits for t in the foreground, or hands it to a background goroutine that reports
// the outcome through the notice queue.
func (s *Session) follow(t *service.Tracker, detach bool) error {
	if detach {
		s.track(t)
		s.notices.Info(fmt.Sprintf("following %s in the background; check with batch jobs", t.ID()))
		go func() {
			snap, err := t.Wait()
			s.untrack(t)
			s.report(snap, err)
		}()
		return nil
	}
	snap, err := t.Wait()
	s.renderJobs([]model.BatchJob{snap}, nil)
	s.report(snap, err)
	return nil
}

func (s *Session) report(snap model.BatchJob, err error) {
	switch {
	case err == nil:
		s.notices.Success(fmt.Sprintf("batch job %s completed: %d scored, %d failed", snap.ID, snap.SuccessCount, snap.ErrorCount))
	case appErr.Is(err, appErr.PollCanceled):
		s.notices.Info(fmt.Sprintf("stopped following %s; resume with: batch watch id=%s", snap.ID, snap.ID))
	case appErr.Is(err, appErr.TerminalJobError):
		s.notices.Error(err)
		for _, e := range snap.Errors {
			s.notices.Warn(e)
		}
	default:
		s.notices.Error(err)
	}
}

func (s *Session) renderJSON(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if s.cfg.PrettyJSON != nil && *s.cfg.PrettyJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode json failed: %w", err)
	}
	s.printLine("%s", string(data))
	return nil
}

func readUpload(path string) (client.Upload, error) {
	data, err := command.ReadFile(path)
	if err != nil {
		return client.Upload{}, err
	}
	return client.Upload{Name: filepath.Base(path), Data: data}, nil
}
