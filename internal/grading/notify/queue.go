// Package notify holds per-session user notices. Each session owns its own Queue; there is
// no shared "latest alert".
package notify

import (
	"sync"
	"time"

	appErr "essaygrade/pkg/errors"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notice is one message for the user.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

// Queue collects notices until the owner drains them. Safe for concurrent producers.
type Queue struct {
	mu    sync.Mutex
	items []Notice
	limit int
	now   func() time.Time
}

// NewQueue keeps at most limit pending notices, dropping the oldest. limit <= 0 is unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit, now: time.Now}
}

func (q *Queue) Push(level Level, text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, Notice{Level: level, Text: text, At: q.now()})
	if q.limit > 0 && len(q.items) > q.limit {
		q.items = append([]Notice(nil), q.items[len(q.items)-q.limit:]...)
	}
}

func (q *Queue) Info(text string)    { q.Push(LevelInfo, text) }
func (q *Queue) Success(text string) { q.Push(LevelSuccess, text) }
func (q *Queue) Warn(text string)    { q.Push(LevelWarn, text) }

// Error pushes err's message. Transient failures are downgraded to warnings.
func (q *Queue) Error(err error) {
	if err == nil {
		return
	}
	if appErr.IsTransient(err) {
		q.Push(LevelWarn, err.Error())
		return
	}
	q.Push(LevelError, err.Error())
}

// Drain returns pending notices in arrival order and empties the queue.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
