// Package local implements backend.Client on a local SQLite database with
// filesystem object storage and an in-process change feed. It backs offline
// and development mode; the hosted mode talks to the remote service through
// the rest package instead.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"taskboard/internal/backend"
	"taskboard/internal/model"
)

const defaultUploadMaxBytes int64 = 50 * 1024 * 1024 // 50MB

// Client is a sqlite-backed backend. Safe for concurrent use.
type Client struct {
	dir string
	db  *sql.DB

	feed *feedHub

	authMu   sync.Mutex
	session  *model.Session
	authSubs map[chan *model.Session]struct{}
}

// Open creates or opens the backend stored under dir.
func Open(ctx context.Context, dir string) (*Client, error) {
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "" || dir == "." {
		return nil, errors.New("local: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "taskboard.sqlite"))
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout helps avoid
	// "database is locked" flakiness with concurrent handlers.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{
		dir:      dir,
		db:       db,
		feed:     newFeedHub(),
		authSubs: map[chan *model.Session]struct{}{},
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			created_at_unixus INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS tasks_created_at ON tasks(created_at_unixus, id);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Close() error {
	c.feed.closeAll()
	return c.db.Close()
}

// ObjectsDir is where uploaded images land. The web server mounts this under
// /media/ so the returned URLs resolve in a browser.
func (c *Client) ObjectsDir() string {
	return filepath.Join(c.dir, "objects")
}

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var t model.Task
	var us int64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ImageURL, &t.CreatedBy, &us); err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = time.UnixMicro(us).UTC()
	return t, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, description, image_url, created_by, created_at_unixus
		FROM tasks ORDER BY created_at_unixus ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Client) getTask(ctx context.Context, id int64) (model.Task, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, description, image_url, created_by, created_at_unixus
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, backend.ErrNotFound
	}
	return t, err
}

func (c *Client) InsertTask(ctx context.Context, draft backend.TaskDraft) (model.Task, error) {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, image_url, created_by, created_at_unixus)
		VALUES (?, ?, ?, ?, ?)`,
		draft.Title, draft.Description, draft.ImageURL, draft.CreatedBy, now.UnixMicro())
	if err != nil {
		return model.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}
	t := model.Task{
		ID:          id,
		Title:       draft.Title,
		Description: draft.Description,
		ImageURL:    draft.ImageURL,
		CreatedBy:   draft.CreatedBy,
		CreatedAt:   time.UnixMicro(now.UnixMicro()).UTC(),
	}
	c.feed.broadcast(model.Change{Type: model.ChangeInsert, Task: t})
	return t, nil
}

func (c *Client) UpdateTaskDescription(ctx context.Context, id int64, description string) (model.Task, error) {
	res, err := c.db.ExecContext(ctx, `UPDATE tasks SET description = ? WHERE id = ?`, description, id)
	if err != nil {
		return model.Task{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Task{}, err
	}
	if n == 0 {
		return model.Task{}, backend.ErrNotFound
	}
	t, err := c.getTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	c.feed.broadcast(model.Change{Type: model.ChangeUpdate, Task: t})
	return t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		c.feed.broadcast(model.Change{Type: model.ChangeDelete, Task: model.Task{ID: id}})
	}
	// No matching row: the list is unchanged after refresh, nothing to report.
	return nil
}

func (c *Client) UploadImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	key := backend.ObjectKey(filename)
	dir := c.ObjectsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, key)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, io.LimitReader(content, defaultUploadMaxBytes+1))
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if n > defaultUploadMaxBytes {
		_ = os.Remove(dst)
		return "", fmt.Errorf("local: upload too large (> %d bytes)", defaultUploadMaxBytes)
	}
	return "/media/" + key, nil
}

func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.session, nil
}

// SignIn accepts any non-empty email and password. Local mode has no user
// registry; the identity exists only to attribute created tasks.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, errors.New("local: email and password are required")
	}
	s := &model.Session{UserID: email, Email: email}
	c.setSession(s)
	return s, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.setSession(nil)
	return nil
}

func (c *Client) setSession(s *model.Session) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.session = s
	for ch := range c.authSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Client) AuthChanges() (<-chan *model.Session, func()) {
	ch := make(chan *model.Session, 8)
	c.authMu.Lock()
	c.authSubs[ch] = struct{}{}
	c.authMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.authMu.Lock()
			delete(c.authSubs, ch)
			close(ch)
			c.authMu.Unlock()
		})
	}
}

func (c *Client) SubscribeTaskChanges(ctx context.Context) (backend.Subscription, error) {
	return c.feed.subscribe(), nil
}

var _ backend.Client = (*Client)(nil)
