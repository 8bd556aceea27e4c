package tui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"taskboard/internal/backend"
	"taskboard/internal/tasklist"
)

// Run starts the interactive task list. It owns the change-feed loop for the
// lifetime of the program: feed events land in the manager's snapshot and a
// redraw message is pushed into the bubbletea event loop.
func Run(ctx context.Context, client backend.Client, mgr *tasklist.Manager, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newAppModel(client, mgr)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	mgr.SetNotify(func() {
		p.Send(tasksChangedMsg{})
	})
	authCh, release := client.AuthChanges()
	defer release()
	go func() {
		for sess := range authCh {
			email := ""
			if sess != nil {
				email = sess.Email
			}
			p.Send(sessionMsg{email: email})
		}
	}()
	go func() {
		if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("change feed stopped", "error", err)
		}
	}()

	_, err := p.Run()
	return err
}
