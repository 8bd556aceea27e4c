package tasklist

import (
	"sort"
	"sync"

	"taskboard/internal/model"
)

// Snapshot is the single source of truth for the locally cached task list.
// Both full refetches and change-feed events land here keyed by identifier,
// so a create response racing its own feed insert is an idempotent upsert
// rather than a duplicate row, and reads always come out in the backend's
// stated order (created_at ascending) no matter what order events arrived in.
type Snapshot struct {
	mu   sync.RWMutex
	byID map[int64]model.Task
}

func NewSnapshot() *Snapshot {
	return &Snapshot{byID: map[int64]model.Task{}}
}

// Replace swaps the whole snapshot for a freshly fetched list.
func (s *Snapshot) Replace(tasks []model.Task) {
	next := make(map[int64]model.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t
	}
	s.mu.Lock()
	s.byID = next
	s.mu.Unlock()
}

// Upsert inserts or overwrites one row by id.
func (s *Snapshot) Upsert(t model.Task) {
	s.mu.Lock()
	s.byID[t.ID] = t
	s.mu.Unlock()
}

// Delete removes a row by id. Removing an absent id is a no-op.
func (s *Snapshot) Delete(id int64) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

// Apply folds one change-feed event into the snapshot.
func (s *Snapshot) Apply(c model.Change) {
	switch c.Type {
	case model.ChangeInsert, model.ChangeUpdate:
		s.Upsert(c.Task)
	case model.ChangeDelete:
		s.Delete(c.Task.ID)
	}
}

// Get returns the row with the given id, if present.
func (s *Snapshot) Get(id int64) (model.Task, bool) {
	s.mu.RLock()
	t, ok := s.byID[id]
	s.mu.RUnlock()
	return t, ok
}

// Len returns the number of cached rows.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	n := len(s.byID)
	s.mu.RUnlock()
	return n
}

// Tasks returns the cached rows sorted by (created_at, id) ascending.
func (s *Snapshot) Tasks() []model.Task {
	s.mu.RLock()
	out := make([]model.Task, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
