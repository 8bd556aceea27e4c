package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskboard/internal/backend"
	"taskboard/internal/tasklist"
)

const backendTimeout = 10 * time.Second

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEdit
	modeDetail
	modeConfirmDelete
)

type (
	tasksChangedMsg struct{}
	sessionMsg      struct{ email string }
	refreshedMsg    struct{ err error }
	taskSavedMsg    struct {
		ferrs tasklist.FieldErrors
		err   error
	}
	editSavedMsg   struct{ err error }
	taskDeletedMsg struct{ err error }
)

type addForm struct {
	title       textinput.Model
	description textarea.Model
	imagePath   textinput.Model
	focus       int
	errs        tasklist.FieldErrors
}

func newAddForm() addForm {
	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 200
	title.Focus()

	description := textarea.New()
	description.Placeholder = "Description (markdown)"
	description.SetHeight(4)

	imagePath := textinput.New()
	imagePath.Placeholder = "Image path (optional)"

	return addForm{title: title, description: description, imagePath: imagePath}
}

type appModel struct {
	client backend.Client
	mgr    *tasklist.Manager

	mode   mode
	list   list.Model
	form   addForm
	editor textarea.Model

	editID    int64
	confirmID int64
	detailID  int64

	sessionEmail string
	status       string
	statusIsErr  bool

	width  int
	height int
}

func newAppModel(client backend.Client, mgr *tasklist.Manager) appModel {
	l := list.New(nil, newTaskDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	return appModel{
		client: client,
		mgr:    mgr,
		list:   l,
		form:   newAddForm(),
		editor: textarea.New(),
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.loadSessionCmd(), m.refreshCmd())
}

func (m appModel) loadSessionCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		sess, err := client.Session(ctx)
		if err != nil || sess == nil {
			return sessionMsg{}
		}
		return sessionMsg{email: sess.Email}
	}
}

func (m appModel) refreshCmd() tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		return refreshedMsg{err: mgr.Refresh(ctx)}
	}
}

func (m appModel) createCmd(draft tasklist.Draft, imagePath, createdBy string) tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()

		var image *tasklist.Image
		if imagePath != "" {
			f, err := os.Open(imagePath)
			if err != nil {
				return taskSavedMsg{err: err}
			}
			defer f.Close()
			image = &tasklist.Image{Filename: filepath.Base(imagePath), Content: f}
		}

		_, ferrs, err := mgr.Create(ctx, draft, image, createdBy)
		return taskSavedMsg{ferrs: ferrs, err: err}
	}
}

func (m appModel) saveEditCmd(id int64, description string) tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		_, err := mgr.SubmitEdit(ctx, id, description)
		return editSavedMsg{err: err}
	}
}

func (m appModel) deleteCmd(id int64) tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		return taskDeletedMsg{err: mgr.Delete(ctx, id)}
	}
}

func (m *appModel) syncItems() {
	var selectedID int64
	if it, ok := m.list.SelectedItem().(taskItem); ok {
		selectedID = it.task.ID
	}

	tasks := m.mgr.Tasks()
	items := make([]list.Item, 0, len(tasks))
	selectIdx := -1
	for i, t := range tasks {
		items = append(items, taskItem{task: t})
		if t.ID == selectedID {
			selectIdx = i
		}
	}
	m.list.SetItems(items)
	if selectIdx >= 0 {
		m.list.Select(selectIdx)
	}
}

func (m *appModel) setError(err error) {
	m.status = err.Error()
	m.statusIsErr = true
}

func (m *appModel) setStatus(s string) {
	m.status = s
	m.statusIsErr = false
}

func (m appModel) selectedTaskID() (int64, bool) {
	it, ok := m.list.SelectedItem().(taskItem)
	if !ok {
		return 0, false
	}
	return it.task.ID, true
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, max(msg.Height-4, 1))
		m.form.description.SetWidth(max(msg.Width-4, 20))
		m.editor.SetWidth(max(msg.Width-4, 20))
		return m, nil

	case tasksChangedMsg:
		m.syncItems()
		return m, nil

	case sessionMsg:
		m.sessionEmail = msg.email
		if msg.email == "" {
			m.setStatus("not signed in: run `taskboard login` to add or change tasks")
		}
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("refresh failed: %w", msg.err))
			return m, nil
		}
		m.syncItems()
		return m, nil

	case taskSavedMsg:
		if !msg.ferrs.OK() {
			m.form.errs = msg.ferrs
			return m, nil
		}
		if msg.err != nil {
			m.setError(fmt.Errorf("could not save task: %w", msg.err))
			return m, nil
		}
		m.mode = modeList
		m.form = newAddForm()
		m.setStatus("task saved")
		m.syncItems()
		return m, nil

	case editSavedMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("could not save description: %w", msg.err))
			return m, nil
		}
		m.mode = modeList
		m.setStatus("description saved")
		m.syncItems()
		return m, nil

	case taskDeletedMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("could not delete task: %w", msg.err))
		} else {
			m.setStatus("task deleted")
		}
		m.mode = modeList
		m.syncItems()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeAdd:
			return m.updateAdd(msg)
		case modeEdit:
			return m.updateEdit(msg)
		case modeDetail:
			return m.updateDetail(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		default:
			return m.updateList(msg)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.refreshCmd()
	case "a":
		if m.sessionEmail == "" {
			m.setError(fmt.Errorf("sign in first: run `taskboard login`"))
			return m, nil
		}
		m.mode = modeAdd
		m.form = newAddForm()
		m.status = ""
		return m, textinput.Blink
	case "e":
		if m.sessionEmail == "" {
			m.setError(fmt.Errorf("sign in first: run `taskboard login`"))
			return m, nil
		}
		id, ok := m.selectedTaskID()
		if !ok {
			return m, nil
		}
		current, ok := m.mgr.StageEdit(id)
		if !ok {
			return m, nil
		}
		m.editID = id
		m.editor = textarea.New()
		m.editor.SetWidth(max(m.width-4, 20))
		m.editor.SetHeight(6)
		m.editor.SetValue(current)
		m.editor.Focus()
		m.mode = modeEdit
		m.status = ""
		return m, textarea.Blink
	case "d":
		if m.sessionEmail == "" {
			m.setError(fmt.Errorf("sign in first: run `taskboard login`"))
			return m, nil
		}
		id, ok := m.selectedTaskID()
		if !ok {
			return m, nil
		}
		m.confirmID = id
		m.mode = modeConfirmDelete
		return m, nil
	case "enter":
		id, ok := m.selectedTaskID()
		if !ok {
			return m, nil
		}
		m.detailID = id
		m.mode = modeDetail
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m appModel) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.form = newAddForm()
		return m, nil
	case "tab", "shift+tab":
		if msg.String() == "tab" {
			m.form.focus = (m.form.focus + 1) % 3
		} else {
			m.form.focus = (m.form.focus + 2) % 3
		}
		m.form.title.Blur()
		m.form.description.Blur()
		m.form.imagePath.Blur()
		switch m.form.focus {
		case 0:
			m.form.title.Focus()
		case 1:
			m.form.description.Focus()
		case 2:
			m.form.imagePath.Focus()
		}
		return m, nil
	case "ctrl+s":
		draft := tasklist.Draft{
			Title:       strings.TrimSpace(m.form.title.Value()),
			Description: strings.TrimSpace(m.form.description.Value()),
		}
		m.form.errs = tasklist.Validate(draft)
		if !m.form.errs.OK() {
			return m, nil
		}
		return m, m.createCmd(draft, strings.TrimSpace(m.form.imagePath.Value()), m.sessionEmail)
	case "enter":
		// Enter advances from the title; the description is multi-line.
		if m.form.focus == 0 {
			m.form.focus = 1
			m.form.title.Blur()
			m.form.description.Focus()
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.form.focus {
	case 0:
		m.form.title, cmd = m.form.title.Update(msg)
	case 1:
		m.form.description, cmd = m.form.description.Update(msg)
	case 2:
		m.form.imagePath, cmd = m.form.imagePath.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mgr.CancelEdit(m.editID)
		m.mode = modeList
		return m, nil
	case "ctrl+s":
		return m, m.saveEditCmd(m.editID, strings.TrimSpace(m.editor.Value()))
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "enter":
		m.mode = modeList
		return m, nil
	}
	return m, nil
}

func (m appModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		id := m.confirmID
		m.confirmID = 0
		return m, m.deleteCmd(id)
	case "n", "N", "esc":
		m.confirmID = 0
		m.mode = modeList
		return m, nil
	}
	return m, nil
}

func (m appModel) View() string {
	header := titleStyle.Render("Taskboard")
	if m.sessionEmail != "" {
		header += statusStyle.Render(m.sessionEmail)
	}

	statusLine := ""
	if m.status != "" {
		if m.statusIsErr {
			statusLine = errorStyle.Render(m.status)
		} else {
			statusLine = statusStyle.Render(m.status)
		}
	}

	var body, help string
	switch m.mode {
	case modeAdd:
		body = m.viewAdd()
		help = helpStyle.Render("tab: next field • ctrl+s: save • esc: cancel")
	case modeEdit:
		body = lipgloss.JoinVertical(lipgloss.Left,
			fieldLabelStyle.Render("Edit description"),
			m.editor.View(),
		)
		help = helpStyle.Render("ctrl+s: save • esc: cancel")
	case modeDetail:
		body = m.viewDetail()
		help = helpStyle.Render("esc: back")
	case modeConfirmDelete:
		body = errorStyle.Render("Delete this task? (y/n)")
		help = ""
	default:
		body = m.list.View()
		help = helpStyle.Render("a: add • e: edit • d: delete • enter: detail • r: refresh • q: quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, statusLine, body, help)
}

func (m appModel) viewAdd() string {
	parts := []string{
		fieldLabelStyle.Render("New task"),
		m.form.title.View(),
	}
	if m.form.errs.Title != "" {
		parts = append(parts, fieldErrorStyle.Render(m.form.errs.Title))
	}
	parts = append(parts, m.form.description.View())
	if m.form.errs.Description != "" {
		parts = append(parts, fieldErrorStyle.Render(m.form.errs.Description))
	}
	parts = append(parts, m.form.imagePath.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m appModel) viewDetail() string {
	t, ok := m.mgr.Task(m.detailID)
	if !ok {
		return statusStyle.Render("task no longer exists")
	}
	width := max(m.width-4, 20)
	meta := t.CreatedBy
	if !t.CreatedAt.IsZero() {
		if meta != "" {
			meta += " · "
		}
		meta += t.CreatedAt.Local().Format("2 Jan 2006 15:04")
	}
	parts := []string{
		fieldLabelStyle.Render(t.Title),
		detailMetaStyle.Render(meta),
	}
	if t.ImageURL != "" {
		parts = append(parts, detailMetaStyle.Render("image: "+t.ImageURL))
	}
	if desc := renderMarkdown(t.Description, width); desc != "" {
		parts = append(parts, "", desc)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
