package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskboard/internal/backend"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, AnonKey: "anon-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestListTasksQueriesAscendingOrder(t *testing.T) {
	var gotPath, gotOrder, gotKey string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOrder = r.URL.Query().Get("order")
		gotKey = r.Header.Get("apikey")
		_, _ = io.WriteString(w, `[
			{"id":1,"title":"Task one","description":"first task","image_url":"","created_by":"u1","created_at":"2024-06-01T10:00:00+00:00"},
			{"id":2,"title":"Task two","description":"second task","image_url":"","created_by":"u1","created_at":"2024-06-01T10:00:01.123456"}
		]`)
	}))

	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotPath != "/rest/v1/tasks" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotOrder != "created_at.asc" {
		t.Fatalf("order = %q", gotOrder)
	}
	if gotKey != "anon-key" {
		t.Fatalf("apikey header = %q", gotKey)
	}
	if len(tasks) != 2 || tasks[0].ID != 1 || tasks[1].ID != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[1].CreatedAt.Before(tasks[0].CreatedAt) {
		t.Fatal("zone-less timestamp parsed out of order")
	}
}

func TestInsertTaskReturnsRepresentation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Errorf("Prefer = %q", got)
		}
		var draft map[string]string
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if draft["title"] != "Groceries" || draft["created_by"] != "user-a" {
			t.Errorf("draft = %v", draft)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":7,"title":"Groceries","description":"Buy milk","image_url":"","created_by":"user-a","created_at":"2024-06-01T10:00:00Z"}]`)
	}))

	task, err := c.InsertTask(context.Background(), backend.TaskDraft{Title: "Groceries", Description: "Buy milk", CreatedBy: "user-a"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if task.ID != 7 || task.Title != "Groceries" {
		t.Fatalf("task = %+v", task)
	}
}

func TestUpdateTaskDescriptionNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "eq.42" {
			t.Errorf("id filter = %q", got)
		}
		// Zero rows matched.
		_, _ = io.WriteString(w, `[]`)
	}))

	_, err := c.UpdateTaskDescription(context.Background(), 42, "new words")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTaskAbsentIsNoOp(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.DeleteTask(context.Background(), 42); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestUploadImageReturnsPublicURL(t *testing.T) {
	var gotPath string
	var gotBody string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"Key":"ok"}`)
	}))

	url, err := c.UploadImage(context.Background(), "Receipt Photo.PNG", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotBody != "png-bytes" {
		t.Fatalf("uploaded body = %q", gotBody)
	}
	if !strings.HasPrefix(gotPath, "/storage/v1/object/task-images/") {
		t.Fatalf("upload path = %q", gotPath)
	}
	wantPrefix := srv.URL + "/storage/v1/object/public/task-images/"
	if !strings.HasPrefix(url, wantPrefix) {
		t.Fatalf("public url = %q, want prefix %q", url, wantPrefix)
	}
	if !strings.HasSuffix(url, "receipt_photo.png") {
		t.Fatalf("public url = %q, want sanitized filename suffix", url)
	}
}

func TestUploadKeysDifferForSameName(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	u1, err := c.UploadImage(context.Background(), "photo.png", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	u2, err := c.UploadImage(context.Background(), "photo.png", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if u1 == u2 {
		t.Fatalf("same-name uploads collided: %s", u1)
	}
}

func TestSignInStoresTokenAndNotifies(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "password" {
			t.Errorf("grant_type = %q", got)
		}
		_, _ = io.WriteString(w, `{"access_token":"tok-123","user":{"id":"user-1","email":"person@example.com"}}`)
	}))

	ch, release := c.AuthChanges()
	defer release()

	s, err := c.SignIn(context.Background(), "person@example.com", "hunter2")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.UserID != "user-1" || s.Email != "person@example.com" {
		t.Fatalf("session = %+v", s)
	}
	if c.AccessToken() != "tok-123" {
		t.Fatalf("token = %q", c.AccessToken())
	}

	select {
	case got := <-ch:
		if got == nil || got.UserID != "user-1" {
			t.Fatalf("auth change = %+v", got)
		}
	default:
		t.Fatal("no auth change delivered on sign in")
	}
}

func TestSessionWithoutTokenIsNil(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when signed out")
	}))

	s, err := c.Session(context.Background())
	if err != nil || s != nil {
		t.Fatalf("session = %+v err=%v, want nil nil", s, err)
	}
}

func TestSessionExpiredTokenTreatedAsSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	// Resume with a stale token.
	c, err := New(Config{BaseURL: srv.URL, AnonKey: "anon-key", AccessToken: "stale"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	s, err := c.Session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if s != nil {
		t.Fatalf("session = %+v, want nil for expired token", s)
	}
	if c.AccessToken() != "" {
		t.Fatal("stale token not cleared")
	}
}

func TestSessionCachesUserLookup(t *testing.T) {
	var userCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			userCalls++
			_, _ = io.WriteString(w, `{"id":"user-1","email":"ann@example.com"}`)
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, AnonKey: "anon-key", AccessToken: "resumed"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 3; i++ {
		s, err := c.Session(context.Background())
		if err != nil {
			t.Fatalf("session #%d: %v", i, err)
		}
		if s == nil || s.Email != "ann@example.com" {
			t.Fatalf("session #%d = %+v", i, s)
		}
	}
	if userCalls != 1 {
		t.Fatalf("user lookups = %d, want 1", userCalls)
	}

	// Signing out drops the cached identity with the token.
	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if s, err := c.Session(context.Background()); err != nil || s != nil {
		t.Fatalf("session after sign-out = %+v err=%v, want nil nil", s, err)
	}
}

func TestBackendErrorIncludesStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"on fire"}`)
	}))

	_, err := c.ListTasks(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "on fire") {
		t.Fatalf("error message lost body: %v", err)
	}
}
