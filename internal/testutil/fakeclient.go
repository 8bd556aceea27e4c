// Package testutil provides testing utilities, most importantly an
// in-memory backend.Client substitute.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"taskboard/internal/backend"
	"taskboard/internal/model"
)

// FakeClient is an in-memory implementation of backend.Client for tests.
// Zero value is not usable; call NewFakeClient.
type FakeClient struct {
	mu      sync.Mutex
	nextID  int64
	tasks   map[int64]model.Task
	session *model.Session
	subs    map[chan model.Change]struct{}
	authWs  map[chan *model.Session]struct{}
	uploads []string
	clock   time.Time

	// Error injection.
	ListTasksErr    error
	InsertTaskErr   error
	UpdateTaskErr   error
	DeleteTaskErr   error
	UploadImageErr  error
	SubscribeErr    error
	SignInErr       error
	PublicURLPrefix string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		nextID:          1,
		tasks:           map[int64]model.Task{},
		subs:            map[chan model.Change]struct{}{},
		authWs:          map[chan *model.Session]struct{}{},
		clock:           time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		PublicURLPrefix: "https://storage.example.test/task-images/",
	}
}

// SeedTask inserts a row directly, bypassing the feed. Returns the row.
func (f *FakeClient) SeedTask(t model.Task) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		t.ID = f.nextID
		f.nextID++
	} else if t.ID >= f.nextID {
		f.nextID = t.ID + 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = f.tick()
	}
	f.tasks[t.ID] = t
	return t
}

// SetSession makes a session current without going through SignIn.
func (f *FakeClient) SetSession(s *model.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	f.notifyAuth(s)
}

// Uploads returns the filenames passed to UploadImage, in order.
func (f *FakeClient) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// EmitChange pushes a change event to every open subscription, as if the
// backend delivered it over the feed.
func (f *FakeClient) EmitChange(c model.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (f *FakeClient) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *FakeClient) ListTasks(ctx context.Context) ([]model.Task, error) {
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	// Backend contract: ascending creation time.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *FakeClient) InsertTask(ctx context.Context, draft backend.TaskDraft) (model.Task, error) {
	if f.InsertTaskErr != nil {
		return model.Task{}, f.InsertTaskErr
	}
	f.mu.Lock()
	t := model.Task{
		ID:          f.nextID,
		Title:       draft.Title,
		Description: draft.Description,
		ImageURL:    draft.ImageURL,
		CreatedBy:   draft.CreatedBy,
		CreatedAt:   f.tick(),
	}
	f.nextID++
	f.tasks[t.ID] = t
	f.mu.Unlock()
	f.EmitChange(model.Change{Type: model.ChangeInsert, Task: t})
	return t, nil
}

func (f *FakeClient) UpdateTaskDescription(ctx context.Context, id int64, description string) (model.Task, error) {
	if f.UpdateTaskErr != nil {
		return model.Task{}, f.UpdateTaskErr
	}
	f.mu.Lock()
	t, ok := f.tasks[id]
	if !ok {
		f.mu.Unlock()
		return model.Task{}, backend.ErrNotFound
	}
	t.Description = description
	f.tasks[id] = t
	f.mu.Unlock()
	f.EmitChange(model.Change{Type: model.ChangeUpdate, Task: t})
	return t, nil
}

func (f *FakeClient) DeleteTask(ctx context.Context, id int64) error {
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	_, ok := f.tasks[id]
	delete(f.tasks, id)
	f.mu.Unlock()
	if ok {
		f.EmitChange(model.Change{Type: model.ChangeDelete, Task: model.Task{ID: id}})
	}
	return nil
}

func (f *FakeClient) UploadImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	if f.UploadImageErr != nil {
		return "", f.UploadImageErr
	}
	if _, err := io.Copy(io.Discard, content); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, filename)
	url := fmt.Sprintf("%s%s", f.PublicURLPrefix, filename)
	f.mu.Unlock()
	return url, nil
}

func (f *FakeClient) Session(ctx context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *FakeClient) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	s := &model.Session{UserID: "user-" + email, Email: email}
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	f.notifyAuth(s)
	return s, nil
}

func (f *FakeClient) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	f.notifyAuth(nil)
	return nil
}

func (f *FakeClient) AuthChanges() (<-chan *model.Session, func()) {
	ch := make(chan *model.Session, 8)
	f.mu.Lock()
	f.authWs[ch] = struct{}{}
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.authWs, ch)
			close(ch)
			f.mu.Unlock()
		})
	}
}

func (f *FakeClient) notifyAuth(s *model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.authWs {
		select {
		case ch <- s:
		default:
		}
	}
}

type fakeSubscription struct {
	ch     chan model.Change
	cancel func()
}

func (s *fakeSubscription) Changes() <-chan model.Change { return s.ch }
func (s *fakeSubscription) Unsubscribe()                 { s.cancel() }

func (f *FakeClient) SubscribeTaskChanges(ctx context.Context) (backend.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	ch := make(chan model.Change, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			close(ch)
			f.mu.Unlock()
		})
	}
	return &fakeSubscription{ch: ch, cancel: cancel}, nil
}
