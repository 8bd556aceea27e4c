// Package backend defines the interface to the task backend service.
// All remote calls go through this interface; the web UI, the CLI and the
// TUI never import a concrete client directly, so tests can substitute an
// in-memory fake.
package backend

import (
	"context"
	"errors"
	"io"

	"taskboard/internal/model"
)

// ErrNotFound is returned when an operation targets a row the backend does
// not have. Deletes are exempt: deleting an absent id is a no-op.
var ErrNotFound = errors.New("backend: not found")

// ErrNoSession is returned by operations that require an authenticated
// identity when none is present.
var ErrNoSession = errors.New("backend: no active session")

// TaskDraft is the client-supplied part of a new task. The backend assigns
// the identifier and creation timestamp.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	CreatedBy   string `json:"created_by"`
}

// Subscription is a live feed of task-table changes. Changes is closed when
// the feed drops or Unsubscribe is called; Unsubscribe is idempotent.
type Subscription interface {
	Changes() <-chan model.Change
	Unsubscribe()
}

// Client is the backend service: a task table ordered by creation time,
// object storage for image uploads, an auth session interface, and a
// subscribable change feed.
type Client interface {
	// ListTasks returns all tasks ordered ascending by creation time.
	ListTasks(ctx context.Context) ([]model.Task, error)

	// InsertTask stores a new task and returns the inserted row.
	InsertTask(ctx context.Context, draft TaskDraft) (model.Task, error)

	// UpdateTaskDescription replaces the description of the task with the
	// given id and returns the affected row. Returns ErrNotFound if no row
	// matches.
	UpdateTaskDescription(ctx context.Context, id int64, description string) (model.Task, error)

	// DeleteTask removes the task with the given id. Deleting an absent id
	// is a no-op, not an error.
	DeleteTask(ctx context.Context, id int64) error

	// UploadImage stores a named binary object and returns a publicly
	// resolvable URL for it.
	UploadImage(ctx context.Context, filename string, content io.Reader) (string, error)

	// Session returns the current authenticated identity, or nil when not
	// signed in.
	Session(ctx context.Context) (*model.Session, error)

	// SignIn authenticates with email and password and makes the resulting
	// session current.
	SignIn(ctx context.Context, email, password string) (*model.Session, error)

	// SignOut ends the current session. Safe to call when signed out.
	SignOut(ctx context.Context) error

	// AuthChanges returns a channel that receives the new session (or nil)
	// on every auth state change, and a release function.
	AuthChanges() (<-chan *model.Session, func())

	// SubscribeTaskChanges opens a subscription to insert/update/delete
	// events on the task table.
	SubscribeTaskChanges(ctx context.Context) (Subscription, error)
}
