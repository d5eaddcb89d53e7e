package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"essaygrade/internal/cli/command"
	"essaygrade/internal/cli/config"
	"essaygrade/internal/client"
	"essaygrade/internal/grading/notify"
	"essaygrade/internal/grading/service"
	appErr "essaygrade/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/shlex"
)

const (
	prompt      = "essaygrade> "
	noticeLimit = 50
)

// LineReader is the interactive input source. *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(p string)
}

// Services are the collaborators a session drives.
type Services struct {
	Client  *client.Client
	Scoring *service.ScoringFlow
	Reviews *service.ReviewService
	Batches *service.BatchService
	Exports *service.ExportService
}

type handlerFunc func(ctx context.Context, params command.Params) error

// Session holds REPL state.
type Session struct {
	svc      Services
	cfg      config.Config
	commands map[string]command.Command
	handlers map[string]handlerFunc
	notices  *notify.Queue
	input    LineReader

	outMu sync.Mutex
	out   io.Writer

	trackMu  sync.Mutex
	trackers map[string]*service.Tracker
}

func New(cfg config.Config, svc Services, out io.Writer) *Session {
	s := &Session{
		svc:      svc,
		cfg:      cfg,
		commands: command.Registry(),
		notices:  notify.NewQueue(noticeLimit),
		out:      out,
		trackers: make(map[string]*service.Tracker),
	}
	s.handlers = map[string]handlerFunc{
		"health check":    s.health,
		"score submit":    s.scoreSubmit,
		"results list":    s.resultsList,
		"results get":     s.resultsGet,
		"review apply":    s.reviewApply,
		"batch preview":   s.batchPreview,
		"batch run":       s.batchRun,
		"batch watch":     s.batchWatch,
		"batch jobs":      s.batchJobs,
		"batch forget":    s.batchForget,
		"export csv":      s.exportCSV,
		"export download": s.exportDownload,
		"export summary":  s.exportSummary,
	}
	return s
}

// Notices exposes the session's notification queue.
func (s *Session) Notices() *notify.Queue {
	return s.notices
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     s.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.input = rl
	defer s.stopTrackers()

	for {
		s.flushNotices()
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				s.printLine("bye")
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return nil
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			s.notices.Error(err)
		}
	}
}

// Exec runs one non-system command line. Notices it produces stay queued until flushed.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	cmd, rest, ok := command.Resolve(s.commands, tokens)
	if !ok {
		if len(tokens) >= 2 {
			return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
		}
		return fmt.Errorf("invalid command, use: <group> <action> key=value ...")
	}
	params, err := command.ParseArgs(rest)
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if err := cmd.Check(params); err != nil {
		return err
	}
	h, ok := s.handlers[cmd.Key()]
	if !ok {
		return fmt.Errorf("command %s has no handler", cmd.Key())
	}
	return h(ctx, params)
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "help":
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8000")
			return
		}
		s.svc.Client.SetBaseURL(parts[1])
		s.cfg.BaseURL = parts[1]
		s.notices.Info("base set to " + parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 30s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.notices.Error(fmt.Errorf("invalid duration: %w", err))
			return
		}
		s.svc.Client.SetTimeout(dur)
		s.cfg.Timeout = dur
		s.notices.Info("timeout set to " + dur.String())
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("baseURL: %s", s.cfg.BaseURL)
		s.printLine("timeout: %s", s.cfg.Timeout)
		s.printLine("poll: interval=%s maxBackoff=%s maxFailures=%d", s.cfg.Poll.Interval, s.cfg.Poll.MaxBackoff, s.cfg.Poll.MaxFailures)
		s.printLine("jobStore: %s", s.jobStoreLabel())
		s.printLine("export: sink=%s dir=%s gzip=%t", s.cfg.Export.Sink, s.cfg.Export.Dir, s.cfg.Export.Gzip)
	default:
		s.printLine("usage: show config")
	}
}

func (s *Session) jobStoreLabel() string {
	switch s.cfg.JobStore.Driver {
	case "redis":
		return "redis " + s.cfg.JobStore.Redis.Addr
	case "file":
		return "file " + s.cfg.JobStore.Path
	default:
		return s.cfg.JobStore.Driver
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	missing := cmd.Missing(params)
	if len(missing) == 0 {
		return nil
	}
	if s.input == nil {
		names := make([]string, 0, len(missing))
		for _, f := range missing {
			names = append(names, f.Name)
		}
		return appErr.Newf(appErr.RequiredFieldEmpty, "missing required fields: %s", strings.Join(names, ", "))
	}
	defer s.input.SetPrompt(prompt)
	for _, field := range missing {
		s.input.SetPrompt(field.Prompt + ": ")
		line, err := s.input.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(line))
	}
	return nil
}

// flushNotices prints and clears pending notices.
func (s *Session) flushNotices() {
	for _, n := range s.notices.Drain() {
		switch n.Level {
		case notify.LevelSuccess:
			s.printColor(color.FgGreen, "%s", n.Text)
		case notify.LevelWarn:
			s.printColor(color.FgYellow, "warning: %s", n.Text)
		case notify.LevelError:
			s.printColor(color.FgRed, "error: %s", n.Text)
		default:
			s.printColor(color.FgCyan, "%s", n.Text)
		}
	}
}

// Flush prints pending notices; used by one-shot callers that bypass Run.
func (s *Session) Flush() {
	s.flushNotices()
}

func (s *Session) printHelp() {
	s.printLine("usage: <group> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout | show config")
	s.printLine("commands:")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %-70s %s", cmd.Usage(), cmd.Summary)
	}
	s.printLine("examples:")
	s.printLine("  score submit exam_id=1 question_id=1 candidate_id=C001 answer_file=./answer.txt")
	s.printLine("  review apply id=3 score=21.5 notes=\"clear structure\"")
	s.printLine("  batch run file=./answers.csv exam_name=\"Midterm\" question_title=Q1 question_text=\"...\"")
}

func (s *Session) printLine(format string, args ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *Session) printColor(attr color.Attribute, format string, args ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = color.New(attr).Fprintf(s.out, format+"\n", args...)
}

func (s *Session) track(t *service.Tracker) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	if prev, ok := s.trackers[t.ID()]; ok && prev != t {
		prev.Cancel()
	}
	s.trackers[t.ID()] = t
}

func (s *Session) untrack(t *service.Tracker) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	if s.trackers[t.ID()] == t {
		delete(s.trackers, t.ID())
	}
}

func (s *Session) tracker(id string) (*service.Tracker, bool) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	t, ok := s.trackers[id]
	return t, ok
}

// stopTrackers cancels every background poll loop owned by the session.
func (s *Session) stopTrackers() {
	s.trackMu.Lock()
	all := make([]*service.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		all = append(all, t)
	}
	s.trackers = make(map[string]*service.Tracker)
	s.trackMu.Unlock()
	for _, t := range all {
		t.Cancel()
		<-t.Done()
	}
}

// Close stops background work owned by the session.
func (s *Session) Close() {
	s.stopTrackers()
}
