package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"taskboard/internal/backend"
	"taskboard/internal/tasklist"
)

//go:embed templates/*.html static/*.js static/*.css
var assetsFS embed.FS

type ServerConfig struct {
	Addr     string
	StateDir string // session secret key lives here
	MediaDir string // when set, files under it are served at /media/

	Client  backend.Client
	Manager *tasklist.Manager
	Logger  *slog.Logger
}

type Server struct {
	cfg    ServerConfig
	tmpl   *template.Template
	logger *slog.Logger
	hub    *listHub
	secret []byte
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.StateDir = strings.TrimSpace(cfg.StateDir)
	cfg.MediaDir = strings.TrimSpace(cfg.MediaDir)
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if cfg.StateDir == "" {
		return nil, errors.New("web: state dir is empty")
	}
	if cfg.Client == nil {
		return nil, errors.New("web: backend client is nil")
	}
	if cfg.Manager == nil {
		return nil, errors.New("web: task manager is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"trim":     strings.TrimSpace,
		"markdown": renderMarkdownHTML,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	secret, err := loadOrInitSecretKey(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		tmpl:   tmpl,
		logger: cfg.Logger,
		hub:    newListHub(),
		secret: secret,
	}
	cfg.Manager.SetNotify(s.hub.broadcast)
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /static/app.js", s.handleAppJS)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginGet)
	mux.HandleFunc("POST /login", s.handleLoginPost)
	mux.HandleFunc("POST /logout", s.handleLogoutPost)
	mux.HandleFunc("POST /tasks", s.handleTaskCreate)
	mux.HandleFunc("POST /tasks/{taskId}/edit", s.handleTaskEditStart)
	mux.HandleFunc("POST /tasks/{taskId}/edit/cancel", s.handleTaskEditCancel)
	mux.HandleFunc("POST /tasks/{taskId}/description", s.handleTaskEditSave)
	mux.HandleFunc("POST /tasks/{taskId}/delete", s.handleTaskDelete)
	if s.cfg.MediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaDir))))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	b, err := assetsFS.ReadFile("static/app.css")
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleAppJS(w http.ResponseWriter, r *http.Request) {
	b, err := assetsFS.ReadFile("static/app.js")
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// listHub fans a "task list changed" tick out to every open event stream.
type listHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newListHub() *listHub {
	return &listHub{subs: map[chan struct{}]struct{}{}}
}

func (h *listHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

func (h *listHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// handleEvents holds a Datastar SSE stream open and re-patches the task list
// container whenever the snapshot changes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionForRequest(r)
	if sess == nil {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}

	sse := datastar.NewSSE(w, r)

	ch, cancel := s.hub.subscribe()
	defer cancel()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	render := func() (string, error) {
		return s.renderTemplate("task_list", s.taskListVM())
	}

	// Initial patch so a reconnecting tab catches up immediately.
	if html, err := render(); err == nil {
		_ = sse.PatchElements(html,
			datastar.WithSelector("#task-list"),
			datastar.WithMode(datastar.ElementPatchModeOuter))
	}

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			html, err := render()
			if err != nil {
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
				continue
			}
			_ = sse.PatchElements(html,
				datastar.WithSelector("#task-list"),
				datastar.WithMode(datastar.ElementPatchModeOuter))
		}
	}
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, status int, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, html)
}

func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	ref := strings.TrimSpace(r.Header.Get("Referer"))
	if ref != "" {
		http.Redirect(w, r, ref, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, fallback, http.StatusSeeOther)
}
