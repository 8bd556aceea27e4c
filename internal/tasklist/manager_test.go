package tasklist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/testutil"
)

func TestManagerCreateRejectsInvalidDraft(t *testing.T) {
	fc := testutil.NewFakeClient()
	m := NewManager(fc, nil)

	_, errs, err := m.Create(context.Background(), Draft{Title: "Hi", Description: "Buy milk"}, nil, "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs.Title != MsgTitleTooShort {
		t.Fatalf("title error = %q, want %q", errs.Title, MsgTitleTooShort)
	}
	if errs.Description != "" {
		t.Fatalf("description error = %q, want empty", errs.Description)
	}
	if got, _ := fc.ListTasks(context.Background()); len(got) != 0 {
		t.Fatalf("rejected draft reached the backend: %+v", got)
	}
}

func TestManagerCreateInsertsAndCaches(t *testing.T) {
	fc := testutil.NewFakeClient()
	m := NewManager(fc, nil)

	task, errs, err := m.Create(context.Background(), Draft{Title: "Groceries", Description: "Buy milk"}, nil, "user-a")
	if err != nil || !errs.OK() {
		t.Fatalf("create: errs=%+v err=%v", errs, err)
	}
	if task.ID == 0 {
		t.Fatal("expected server-assigned id")
	}
	if task.CreatedBy != "user-a" {
		t.Fatalf("created_by = %q", task.CreatedBy)
	}
	if got := m.Tasks(); len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("snapshot after create: %+v", got)
	}
}

func TestManagerCreateUploadsImageBeforeInsert(t *testing.T) {
	fc := testutil.NewFakeClient()
	m := NewManager(fc, nil)

	img := &Image{Filename: "receipt.png", Content: strings.NewReader("png-bytes")}
	task, errs, err := m.Create(context.Background(), Draft{Title: "Groceries", Description: "Buy milk"}, img, "user-a")
	if err != nil || !errs.OK() {
		t.Fatalf("create: errs=%+v err=%v", errs, err)
	}
	if task.ImageURL == "" {
		t.Fatal("expected public image URL on the task record")
	}
	if ups := fc.Uploads(); len(ups) != 1 || ups[0] != "receipt.png" {
		t.Fatalf("uploads = %v", ups)
	}
}

func TestManagerCreateSurfacesUploadFailure(t *testing.T) {
	fc := testutil.NewFakeClient()
	fc.UploadImageErr = errors.New("bucket unavailable")
	m := NewManager(fc, nil)

	img := &Image{Filename: "receipt.png", Content: strings.NewReader("png-bytes")}
	_, errs, err := m.Create(context.Background(), Draft{Title: "Groceries", Description: "Buy milk"}, img, "user-a")
	if err == nil {
		t.Fatal("expected upload error to propagate")
	}
	if !errs.OK() {
		t.Fatalf("field errors set on remote failure: %+v", errs)
	}
	if got, _ := fc.ListTasks(context.Background()); len(got) != 0 {
		t.Fatal("insert must not run when the upload failed")
	}
}

func TestManagerStageEditPrePopulatesCurrentDescription(t *testing.T) {
	fc := testutil.NewFakeClient()
	seeded := fc.SeedTask(model.Task{Title: "Groceries", Description: "Buy milk", CreatedBy: "user-a"})
	m := NewManager(fc, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	v, ok := m.StageEdit(seeded.ID)
	if !ok || v != "Buy milk" {
		t.Fatalf("staged = %q ok=%v, want current description", v, ok)
	}
	if v, ok := m.StagedEdit(seeded.ID); !ok || v != "Buy milk" {
		t.Fatalf("StagedEdit = %q ok=%v", v, ok)
	}
}

func TestManagerSubmitEditUpdatesAndClearsStage(t *testing.T) {
	fc := testutil.NewFakeClient()
	seeded := fc.SeedTask(model.Task{Title: "Groceries", Description: "Buy milk", CreatedBy: "user-a"})
	m := NewManager(fc, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	m.StageEdit(seeded.ID)

	updated, err := m.SubmitEdit(context.Background(), seeded.ID, "Buy milk and eggs")
	if err != nil {
		t.Fatalf("submit edit: %v", err)
	}
	if updated.Description != "Buy milk and eggs" {
		t.Fatalf("description = %q", updated.Description)
	}
	if _, ok := m.StagedEdit(seeded.ID); ok {
		t.Fatal("stage not cleared after submit")
	}
	if got, _ := m.Task(seeded.ID); got.Description != "Buy milk and eggs" {
		t.Fatalf("snapshot description = %q", got.Description)
	}
}

func TestManagerDeleteRefreshesThroughRefetch(t *testing.T) {
	fc := testutil.NewFakeClient()
	a := fc.SeedTask(model.Task{Title: "Task one", Description: "first task", CreatedBy: "user-a"})
	b := fc.SeedTask(model.Task{Title: "Task two", Description: "second task", CreatedBy: "user-a"})
	m := NewManager(fc, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := m.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := m.Tasks()
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("after delete: %+v", got)
	}

	// Deleting an id the backend no longer has is a no-op, no error.
	if err := m.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("delete absent id: %v", err)
	}
}

func TestManagerRunRefreshesWhileFeedIsDown(t *testing.T) {
	fc := testutil.NewFakeClient()
	seeded := fc.SeedTask(model.Task{Title: "Groceries", Description: "Buy milk", CreatedBy: "user-a"})
	fc.SubscribeErr = errors.New("realtime endpoint unreachable")
	m := NewManager(fc, nil)

	notified := make(chan struct{}, 16)
	m.SetNotify(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	// A healthy table API must fill the snapshot even when subscribing
	// never succeeds.
	deadline := time.After(2 * time.Second)
	for {
		if got, ok := m.Task(seeded.ID); ok {
			if got.Title != "Groceries" {
				t.Fatalf("snapshot task = %+v", got)
			}
			return
		}
		select {
		case <-notified:
		case <-deadline:
			t.Fatal("snapshot stayed empty while the feed was down")
		}
	}
}

func TestManagerRunAppliesFeedEvents(t *testing.T) {
	fc := testutil.NewFakeClient()
	m := NewManager(fc, nil)

	notified := make(chan struct{}, 16)
	m.SetNotify(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Wait for the initial subscribe+refresh notify.
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("manager never refreshed after subscribing")
	}

	task := fc.SeedTask(model.Task{Title: "Pushed", Description: "over the feed", CreatedBy: "user-b"})
	fc.EmitChange(model.Change{Type: model.ChangeInsert, Task: task})

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := m.Task(task.ID); ok {
			break
		}
		select {
		case <-notified:
		case <-deadline:
			t.Fatal("feed insert never reached the snapshot")
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
