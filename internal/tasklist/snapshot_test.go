package tasklist

import (
	"testing"
	"time"

	"taskboard/internal/model"
)

func snapTask(id int64, title string, at time.Time) model.Task {
	return model.Task{ID: id, Title: title, Description: "description", CreatedBy: "user-a", CreatedAt: at}
}

func TestSnapshotOrdersByCreationTimeRegardlessOfArrival(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewSnapshot()

	// Feed events for ids 1 and 2 arrive out of creation-time order.
	s.Apply(model.Change{Type: model.ChangeInsert, Task: snapTask(2, "second", now.Add(2*time.Second))})
	s.Apply(model.Change{Type: model.ChangeInsert, Task: snapTask(1, "first", now.Add(1*time.Second))})

	got := s.Tasks()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("order = [%d %d], want [1 2]", got[0].ID, got[1].ID)
	}
}

func TestSnapshotUpsertIsIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewSnapshot()

	// A create response and the feed event for the same insertion may both
	// land, in either order.
	row := snapTask(7, "once", now)
	s.Upsert(row)
	s.Apply(model.Change{Type: model.ChangeInsert, Task: row})

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1 (no duplicates)", s.Len())
	}
}

func TestSnapshotUpdateAndDelete(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewSnapshot()
	s.Upsert(snapTask(1, "a", now))
	s.Upsert(snapTask(2, "b", now.Add(time.Second)))

	updated := snapTask(1, "a", now)
	updated.Description = "rewritten"
	s.Apply(model.Change{Type: model.ChangeUpdate, Task: updated})

	got, ok := s.Get(1)
	if !ok || got.Description != "rewritten" {
		t.Fatalf("after update: got %+v ok=%v", got, ok)
	}

	s.Apply(model.Change{Type: model.ChangeDelete, Task: model.Task{ID: 2}})
	if _, ok := s.Get(2); ok {
		t.Fatal("task 2 still present after delete event")
	}

	// Deleting an absent id is a no-op.
	s.Delete(99)
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestSnapshotReplace(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewSnapshot()
	s.Upsert(snapTask(1, "stale", now))

	s.Replace([]model.Task{
		snapTask(3, "c", now.Add(3*time.Second)),
		snapTask(2, "b", now.Add(2*time.Second)),
	})

	got := s.Tasks()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("after replace: %+v", got)
	}
}

func TestSnapshotTieBreaksOnID(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewSnapshot()
	s.Upsert(snapTask(5, "later id", now))
	s.Upsert(snapTask(4, "earlier id", now))

	got := s.Tasks()
	if got[0].ID != 4 || got[1].ID != 5 {
		t.Fatalf("order = [%d %d], want [4 5]", got[0].ID, got[1].ID)
	}
}
