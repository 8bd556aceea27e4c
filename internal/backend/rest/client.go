// Package rest implements backend.Client against the hosted backend
// service: a PostgREST-style table API, an object storage API with public
// URLs, a password-grant auth endpoint, and a realtime change feed over
// websocket. The service owns consistency, persistence and auth; this client
// treats those surfaces as opaque.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskboard/internal/backend"
	"taskboard/internal/model"
)

const (
	// DefaultTimeout bounds every REST call.
	DefaultTimeout = 10 * time.Second

	defaultTable  = "tasks"
	defaultBucket = "task-images"
)

type Config struct {
	// BaseURL is the root of the backend service, e.g.
	// https://abc123.backend.example.com
	BaseURL string
	// AnonKey is the project API key sent with every request.
	AnonKey string
	// AccessToken optionally resumes a previously issued user session.
	AccessToken string

	// Table and Bucket override the task table and image bucket names.
	Table  string
	Bucket string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base   *url.URL
	anon   string
	table  string
	bucket string
	httpc  *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	token    string
	session  *model.Session
	authSubs map[chan *model.Session]struct{}
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("rest: base URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("rest: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rest: unsupported scheme %q", u.Scheme)
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, errors.New("rest: anon key is empty")
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucket
	}

	return &Client{
		base:     u,
		anon:     strings.TrimSpace(cfg.AnonKey),
		table:    table,
		bucket:   bucket,
		httpc:    httpc,
		logger:   logger,
		token:    strings.TrimSpace(cfg.AccessToken),
		authSubs: map[chan *model.Session]struct{}{},
	}, nil
}

// AccessToken returns the current user token, if any. The CLI persists it
// between invocations.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token
	}
	return c.anon
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anon)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	return req, nil
}

// apiError carries the backend's status and response body for diagnostics.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("rest: backend returned %d", e.Status)
	}
	return fmt.Sprintf("rest: backend returned %d: %s", e.Status, msg)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

func (c *Client) tableURL(query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/v1/" + c.table
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.asc")
	req, err := c.newRequest(ctx, http.MethodGet, c.tableURL(q), nil)
	if err != nil {
		return nil, err
	}
	b, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var rows []wireTask
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("rest: decode task list: %w", err)
	}
	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.task())
	}
	return out, nil
}

func (c *Client) InsertTask(ctx context.Context, draft backend.TaskDraft) (model.Task, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return model.Task{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.tableURL(url.Values{}), bytes.NewReader(body))
	if err != nil {
		return model.Task{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	b, err := c.do(req)
	if err != nil {
		return model.Task{}, err
	}
	rows, err := decodeRows(b)
	if err != nil {
		return model.Task{}, err
	}
	if len(rows) == 0 {
		return model.Task{}, errors.New("rest: insert returned no row")
	}
	return rows[0].task(), nil
}

func (c *Client) UpdateTaskDescription(ctx context.Context, id int64, description string) (model.Task, error) {
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(id, 10))
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return model.Task{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPatch, c.tableURL(q), bytes.NewReader(body))
	if err != nil {
		return model.Task{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	b, err := c.do(req)
	if err != nil {
		return model.Task{}, err
	}
	rows, err := decodeRows(b)
	if err != nil {
		return model.Task{}, err
	}
	if len(rows) == 0 {
		return model.Task{}, backend.ErrNotFound
	}
	return rows[0].task(), nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(id, 10))
	req, err := c.newRequest(ctx, http.MethodDelete, c.tableURL(q), nil)
	if err != nil {
		return err
	}
	// The table API deletes zero rows silently when nothing matches; that
	// is exactly the no-op contract for absent ids.
	_, err = c.do(req)
	return err
}

func (c *Client) UploadImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	key := backend.ObjectKey(filename)
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("storage", "v1", "object", c.bucket, key), content)
	if err != nil {
		return "", err
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		req.Header.Set("Content-Type", ct)
	} else {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if _, err := c.do(req); err != nil {
		return "", err
	}
	return c.endpoint("storage", "v1", "object", "public", c.bucket, key), nil
}

type wireUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session resolves the identity behind the held token. The answer is cached
// until the token changes, so a resumed CLI session costs one user lookup.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	tok := c.token
	cached := c.session
	c.mu.Unlock()
	if tok == "" {
		return nil, nil
	}
	if cached != nil {
		return cached, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("auth", "v1", "user"), nil)
	if err != nil {
		return nil, err
	}
	b, err := c.do(req)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden) {
			// Token expired or revoked: treat as signed out.
			c.setSession("", nil)
			return nil, nil
		}
		return nil, err
	}
	var u wireUser
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("rest: decode user: %w", err)
	}
	s := &model.Session{UserID: u.ID, Email: u.Email}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	u := c.endpoint("auth", "v1", "token") + "?grant_type=password"
	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	b, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var resp struct {
		AccessToken string   `json:"access_token"`
		User        wireUser `json:"user"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("rest: decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("rest: token response missing access_token")
	}
	s := &model.Session{UserID: resp.User.ID, Email: resp.User.Email}
	c.setSession(resp.AccessToken, s)
	return s, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == "" {
		return nil
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("auth", "v1", "logout"), nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		// The local session ends regardless; the server-side token will
		// expire on its own.
		c.logger.Warn("remote logout failed", "error", err)
	}
	c.setSession("", nil)
	return nil
}

func (c *Client) setSession(token string, s *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
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
	c.mu.Lock()
	c.authSubs[ch] = struct{}{}
	c.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.authSubs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

var _ backend.Client = (*Client)(nil)
