package model

import "time"

// Task is a row in the backend task table. The backend assigns ID and
// CreatedAt; CreatedAt is the sole sort key (ascending).
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the authenticated identity produced by the backend auth
// interface. A nil *Session means "not signed in".
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one event from the task table change feed.
// For deletes only Task.ID is meaningful.
type Change struct {
	Type ChangeType `json:"type"`
	Task Task       `json:"task"`
}
