package review

import (
	"sync"
	"time"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// Draft is a reviewer's unsaved edit.
type Draft struct {
	FinalScore float64
	Notes      string
}

// Editor guards a reviewer's draft against background refreshes. While an edit is open a
// refresh updates the known server copy but never the draft; if the server copy's review
// fields moved since the edit was opened, the edit is flagged as conflicting. Saving a
// conflicting edit still wins (last write wins) and reports the conflict to the caller.
type Editor struct {
	mu       sync.Mutex
	current  model.ScoringResult
	base     model.ScoringResult
	draft    *Draft
	conflict bool
	now      func() time.Time
}

// NewEditor starts with r as the known server copy and no edit open.
func NewEditor(r model.ScoringResult) *Editor {
	return &Editor{current: r.Clone(), now: time.Now}
}

// Open begins an edit seeded from the current authoritative score and notes.
// Opening while already editing returns the existing draft.
func (e *Editor) Open() Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft != nil {
		return *e.draft
	}
	d := Draft{FinalScore: DisplayScore(e.current)}
	if e.current.ReviewerNotes != nil {
		d.Notes = *e.current.ReviewerNotes
	}
	e.draft = &d
	e.base = e.current.Clone()
	e.conflict = false
	return d
}

// Editing reports whether a draft is open.
func (e *Editor) Editing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft != nil
}

// SetDraft replaces the draft. Out-of-range scores are rejected and the draft is kept.
func (e *Editor) SetDraft(finalScore float64, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return appErr.New(appErr.NoEditOpen)
	}
	if err := ValidateScore(finalScore, e.current.MaxScore()); err != nil {
		return err
	}
	e.draft.FinalScore = finalScore
	e.draft.Notes = notes
	return nil
}

// Refresh adopts a re-fetched server copy. It returns true when the refresh conflicts with
// an open edit.
func (e *Editor) Refresh(remote model.ScoringResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = remote.Clone()
	if e.draft == nil {
		return false
	}
	if !sameReview(e.base, remote) {
		e.conflict = true
	}
	return e.conflict
}

// Conflict reports whether the open edit was overtaken by another writer.
func (e *Editor) Conflict() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflict
}

// Prepare builds the reviewed result that a save would write, without closing the edit.
func (e *Editor) Prepare() (model.ScoringResult, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return e.current.Clone(), false, appErr.New(appErr.NoEditOpen)
	}
	out, err := applyAt(e.current, e.draft.FinalScore, e.draft.Notes, e.now())
	if err != nil {
		return e.current.Clone(), e.conflict, err
	}
	return out, e.conflict, nil
}

// Commit closes the edit and adopts the saved result.
func (e *Editor) Commit(saved model.ScoringResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = saved.Clone()
	e.draft = nil
	e.conflict = false
}

// Cancel discards the draft.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = nil
	e.conflict = false
}

// Result returns the known server copy.
func (e *Editor) Result() model.ScoringResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

func sameReview(a, b model.ScoringResult) bool {
	if a.IsReviewed != b.IsReviewed {
		return false
	}
	if (a.FinalScore == nil) != (b.FinalScore == nil) {
		return false
	}
	if a.FinalScore != nil && *a.FinalScore != *b.FinalScore {
		return false
	}
	notesA, notesB := "", ""
	if a.ReviewerNotes != nil {
		notesA = *a.ReviewerNotes
	}
	if b.ReviewerNotes != nil {
		notesB = *b.ReviewerNotes
	}
	return notesA == notesB
}
