// Package tasklist implements the client-side state of the task list: draft
// validation, the identifier-keyed snapshot cache, per-item staged edits,
// and the change-feed subscriber that keeps the cache in sync.
package tasklist

import (
	"context"
	"io"
	"log/slog"
	"time"

	"taskboard/internal/backend"
	"taskboard/internal/model"
)

// Image is a file selected for attachment to a new task.
type Image struct {
	Filename string
	Content  io.Reader
}

// Manager ties the injected backend client to the local snapshot. All views
// (web, TUI, CLI watch) read tasks through it and mutate through it.
type Manager struct {
	client backend.Client
	snap   *Snapshot
	edits  *StagedEdits
	logger *slog.Logger
	notify func()
}

func NewManager(client backend.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client: client,
		snap:   NewSnapshot(),
		edits:  NewStagedEdits(),
		logger: logger,
		notify: func() {},
	}
}

// SetNotify registers a callback invoked after every snapshot change. Used
// by the web layer to tick its broadcast hub. Must be set before Run.
func (m *Manager) SetNotify(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	m.notify = fn
}

// Tasks returns the cached task list in backend order.
func (m *Manager) Tasks() []model.Task {
	return m.snap.Tasks()
}

// Task returns one cached row by id.
func (m *Manager) Task(id int64) (model.Task, bool) {
	return m.snap.Get(id)
}

// Refresh refetches the full list and replaces the snapshot. This is the
// path delete goes through, and the recovery path when the feed was down.
func (m *Manager) Refresh(ctx context.Context) error {
	tasks, err := m.client.ListTasks(ctx)
	if err != nil {
		return err
	}
	m.snap.Replace(tasks)
	m.notify()
	return nil
}

// Create validates the draft, uploads the image when one is attached, and
// inserts the task attributed to createdBy. A non-OK FieldErrors means the
// submission was rejected before any remote call. A non-nil error means a
// remote call failed; the caller surfaces it to the user.
func (m *Manager) Create(ctx context.Context, draft Draft, image *Image, createdBy string) (model.Task, FieldErrors, error) {
	if errs := Validate(draft); !errs.OK() {
		return model.Task{}, errs, nil
	}

	rec := backend.TaskDraft{
		Title:       draft.Title,
		Description: draft.Description,
		CreatedBy:   createdBy,
	}
	if image != nil {
		url, err := m.client.UploadImage(ctx, image.Filename, image.Content)
		if err != nil {
			return model.Task{}, FieldErrors{}, err
		}
		rec.ImageURL = url
	}

	t, err := m.client.InsertTask(ctx, rec)
	if err != nil {
		return model.Task{}, FieldErrors{}, err
	}
	// The feed delivers the same insert; upserting by id keeps this race
	// duplicate-free regardless of which side lands first.
	m.snap.Upsert(t)
	m.notify()
	return t, FieldErrors{}, nil
}

// StageEdit stages a description edit for one task, pre-populated with the
// task's current description.
func (m *Manager) StageEdit(id int64) (string, bool) {
	t, ok := m.snap.Get(id)
	if !ok {
		return "", false
	}
	m.edits.Stage(id, t.Description)
	m.notify()
	return t.Description, true
}

// StagedEdit returns the pending description for a task, if any.
func (m *Manager) StagedEdit(id int64) (string, bool) {
	return m.edits.Value(id)
}

// CancelEdit drops the staged edit for a task without touching the backend.
func (m *Manager) CancelEdit(id int64) {
	m.edits.Clear(id)
	m.notify()
}

// SubmitEdit sends a new description for the task with the given id and
// clears its staged edit on success.
func (m *Manager) SubmitEdit(ctx context.Context, id int64, description string) (model.Task, error) {
	t, err := m.client.UpdateTaskDescription(ctx, id, description)
	if err != nil {
		return model.Task{}, err
	}
	m.edits.Clear(id)
	m.snap.Upsert(t)
	m.notify()
	return t, nil
}

// Delete removes the task by id and refreshes the snapshot through the
// refetch path. Deleting an id the backend no longer has is a no-op from the
// list's perspective.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.client.DeleteTask(ctx, id); err != nil {
		return err
	}
	return m.Refresh(ctx)
}

// Run holds one change-feed subscription for the lifetime of ctx, folding
// every event into the snapshot. When the feed drops it refetches and
// resubscribes with capped backoff.
func (m *Manager) Run(ctx context.Context) error {
	const (
		minBackoff = time.Second
		maxBackoff = 30 * time.Second
	)
	backoff := minBackoff

	for {
		// Refresh before subscribing, so a down realtime endpoint cannot
		// leave readers staring at an empty list while the table is fine.
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("task list refresh failed", "error", err)
		}

		sub, err := m.client.SubscribeTaskChanges(ctx)
		if err != nil {
			m.logger.Warn("task feed subscribe failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		m.logger.Info("task feed subscribed")
		backoff = minBackoff

		// Catch up on anything that raced between refresh and subscribe.
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("task list refresh failed", "error", err)
		}

		if err := m.consume(ctx, sub); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("task feed dropped; resubscribing")
	}
}

func (m *Manager) consume(ctx context.Context, sub backend.Subscription) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-sub.Changes():
			if !ok {
				return nil
			}
			m.snap.Apply(c)
			m.notify()
		}
	}
}
