package tasklist

import "sync"

// StagedEdits holds pending description edits keyed by task id. The keying
// matters: staging an edit for one item can never clobber a pending edit for
// another, even when two rows are being edited at once.
type StagedEdits struct {
	mu   sync.Mutex
	byID map[int64]string
}

func NewStagedEdits() *StagedEdits {
	return &StagedEdits{byID: map[int64]string{}}
}

// Stage records a pending description for a task.
func (e *StagedEdits) Stage(id int64, description string) {
	e.mu.Lock()
	e.byID[id] = description
	e.mu.Unlock()
}

// Value returns the pending description for a task, if one is staged.
func (e *StagedEdits) Value(id int64) (string, bool) {
	e.mu.Lock()
	v, ok := e.byID[id]
	e.mu.Unlock()
	return v, ok
}

// Clear removes the pending edit for a task.
func (e *StagedEdits) Clear(id int64) {
	e.mu.Lock()
	delete(e.byID, id)
	e.mu.Unlock()
}

// Len returns the number of staged edits.
func (e *StagedEdits) Len() int {
	e.mu.Lock()
	n := len(e.byID)
	e.mu.Unlock()
	return n
}
