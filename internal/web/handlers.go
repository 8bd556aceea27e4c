package web

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/tasklist"
)

const maxUploadBytes = 50 << 20

type baseVM struct {
	Now     string
	Session *model.Session
	Flash   string
}

type taskVM struct {
	ID              int64
	Title           string
	DescriptionHTML template.HTML
	ImageURL        string
	CreatedBy       string
	CreatedAt       string
	Editing         bool
	EditValue       string
}

type taskListVM struct {
	Tasks []taskVM
}

type formVM struct {
	Title            string
	Description      string
	TitleError       string
	DescriptionError string
}

type homeVM struct {
	baseVM
	List taskListVM
	Form formVM
}

type loginVM struct {
	Now   string
	Email string
	Error string
}

func (s *Server) baseVMForRequest(r *http.Request) baseVM {
	return baseVM{
		Now:     time.Now().Format(time.RFC3339),
		Session: s.sessionForRequest(r),
	}
}

func (s *Server) taskListVM() taskListVM {
	tasks := s.cfg.Manager.Tasks()
	vms := make([]taskVM, 0, len(tasks))
	for _, t := range tasks {
		vm := taskVM{
			ID:              t.ID,
			Title:           t.Title,
			DescriptionHTML: renderMarkdownHTML(t.Description),
			ImageURL:        t.ImageURL,
			CreatedBy:       t.CreatedBy,
			CreatedAt:       t.CreatedAt.Local().Format("2 Jan 2006 15:04"),
		}
		if v, ok := s.cfg.Manager.StagedEdit(t.ID); ok {
			vm.Editing = true
			vm.EditValue = v
		}
		vms = append(vms, vm)
	}
	return taskListVM{Tasks: vms}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	vm := homeVM{
		baseVM: s.baseVMForRequest(r),
		List:   s.taskListVM(),
	}
	s.writeHTMLTemplate(w, http.StatusOK, "home.html", vm)
}

func (s *Server) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.writeHTMLTemplate(w, http.StatusOK, "login.html", loginVM{
		Now: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.Form.Get("email")))
	password := r.Form.Get("password")
	if email == "" || password == "" {
		s.writeHTMLTemplate(w, http.StatusOK, "login.html", loginVM{
			Now:   time.Now().Format(time.RFC3339),
			Email: email,
			Error: "email and password are required",
		})
		return
	}

	sess, err := s.cfg.Client.SignIn(r.Context(), email, password)
	if err != nil {
		s.logger.Warn("sign-in failed", "email", email, "error", err)
		s.writeHTMLTemplate(w, http.StatusOK, "login.html", loginVM{
			Now:   time.Now().Format(time.RFC3339),
			Email: email,
			Error: "sign-in failed: " + err.Error(),
		})
		return
	}

	if err := s.setSessionCookie(w, sess); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Client.SignOut(r.Context()); err != nil {
		s.logger.Warn("backend sign-out failed", "error", err)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// renderHomeWith re-renders the full page so a failed form round-trip keeps
// the user's input and shows what went wrong.
func (s *Server) renderHomeWith(w http.ResponseWriter, r *http.Request, status int, form formVM, flash string) {
	vm := homeVM{
		baseVM: s.baseVMForRequest(r),
		List:   s.taskListVM(),
		Form:   form,
	}
	vm.Flash = flash
	s.writeHTMLTemplate(w, status, "home.html", vm)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionForRequest(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	draft := tasklist.Draft{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	form := formVM{Title: draft.Title, Description: draft.Description}

	var image *tasklist.Image
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image = &tasklist.Image{Filename: header.Filename, Content: file}
	}

	_, ferrs, err := s.cfg.Manager.Create(r.Context(), draft, image, sess.Email)
	if !ferrs.OK() {
		form.TitleError = ferrs.Title
		form.DescriptionError = ferrs.Description
		s.renderHomeWith(w, r, http.StatusUnprocessableEntity, form, "")
		return
	}
	if err != nil {
		s.logger.Error("task create failed", "error", err)
		s.renderHomeWith(w, r, http.StatusOK, form, "could not save task: "+err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) taskIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("taskId")), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleTaskEditStart(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, ok := s.taskIDFromPath(r)
	if !ok {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	if _, ok := s.cfg.Manager.StageEdit(id); !ok {
		http.NotFound(w, r)
		return
	}
	redirectBack(w, r, "/")
}

func (s *Server) handleTaskEditCancel(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, ok := s.taskIDFromPath(r)
	if !ok {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	s.cfg.Manager.CancelEdit(id)
	redirectBack(w, r, "/")
}

func (s *Server) handleTaskEditSave(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, ok := s.taskIDFromPath(r)
	if !ok {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	description := strings.TrimSpace(r.Form.Get("description"))
	if _, err := s.cfg.Manager.SubmitEdit(r.Context(), id, description); err != nil {
		s.logger.Error("task edit failed", "task", id, "error", err)
		s.renderHomeWith(w, r, http.StatusOK, formVM{}, "could not save description: "+err.Error())
		return
	}
	redirectBack(w, r, "/")
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if s.sessionForRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, ok := s.taskIDFromPath(r)
	if !ok {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	if err := s.cfg.Manager.Delete(r.Context(), id); err != nil {
		s.logger.Error("task delete failed", "task", id, "error", err)
		s.renderHomeWith(w, r, http.StatusOK, formVM{}, "could not delete task: "+err.Error())
		return
	}
	redirectBack(w, r, "/")
}
