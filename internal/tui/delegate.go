package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"taskboard/internal/model"
)

type taskItem struct {
	task model.Task
}

func (i taskItem) Title() string       { return i.task.Title }
func (i taskItem) FilterValue() string { return i.task.Title }

// taskDelegate renders one task per row: title, then creator and date pushed
// to the right edge.
type taskDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
	meta     lipgloss.Style
}

func newTaskDelegate() taskDelegate {
	return taskDelegate{
		normal: lipgloss.NewStyle(),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Bold(true),
		meta: lipgloss.NewStyle().Foreground(colorMuted),
	}
}

func (d taskDelegate) Height() int                             { return 1 }
func (d taskDelegate) Spacing() int                            { return 0 }
func (d taskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d taskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		fmt.Fprint(w, "")
		return
	}

	it, ok := item.(taskItem)
	if !ok {
		fmt.Fprint(w, fmt.Sprint(item))
		return
	}

	style := d.normal
	if index == m.Index() {
		style = d.selected
	}

	meta := it.task.CreatedBy
	if !it.task.CreatedAt.IsZero() {
		if meta != "" {
			meta += " "
		}
		meta += it.task.CreatedAt.Local().Format("2006-01-02")
	}

	line := " " + it.task.Title
	lineW := xansi.StringWidth(line)
	metaW := xansi.StringWidth(meta)
	if meta != "" && lineW+metaW+2 <= contentW {
		line += strings.Repeat(" ", contentW-lineW-metaW-1) + d.meta.Render(meta) + " "
		lineW = contentW
	}

	if lineW < contentW {
		line += strings.Repeat(" ", contentW-lineW)
	} else if lineW > contentW {
		line = xansi.Cut(line, 0, contentW)
	}

	fmt.Fprint(w, style.Render(line))
}
