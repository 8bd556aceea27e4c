package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/backend"
	"taskboard/internal/format"
	"taskboard/internal/model"
	"taskboard/internal/tasklist"
)

type taskListOutput struct {
	Tasks []model.Task `json:"tasks"`
}

func (o taskListOutput) FormatText(w io.Writer) error {
	for _, t := range o.Tasks {
		format.FormatTaskLine(w, t)
	}
	return nil
}

type taskOutput struct {
	Task model.Task `json:"task"`
}

func (o taskOutput) FormatText(w io.Writer) error {
	format.FormatTaskLine(w, o.Task)
	if strings.TrimSpace(o.Task.Description) != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, o.Task.Description)
	}
	if o.Task.ImageURL != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "image:", o.Task.ImageURL)
	}
	return nil
}

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and change tasks",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksRmCmd(app))
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			tasks, err := client.ListTasks(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, taskListOutput{Tasks: tasks})
		},
	}
}

func newTasksAddCmd(app *App) *cobra.Command {
	var title, description, imagePath string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Example: strings.TrimSpace(`
  taskboard tasks add --title "Groceries" --description "Buy milk and bread"
  taskboard tasks add --title "Groceries" --description "Buy milk" --image receipt.png
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			sess, err := client.Session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if sess == nil {
				return writeErr(cmd, errors.New("not signed in: run `taskboard login` first"))
			}

			draft := tasklist.Draft{
				Title:       strings.TrimSpace(title),
				Description: strings.TrimSpace(description),
			}

			var image *tasklist.Image
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer f.Close()
				image = &tasklist.Image{Filename: filepath.Base(imagePath), Content: f}
			}

			mgr := tasklist.NewManager(client, app.logger())
			task, ferrs, err := mgr.Create(cmd.Context(), draft, image, sess.Email)
			if !ferrs.OK() {
				if ferrs.Title != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "title:", ferrs.Title)
				}
				if ferrs.Description != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "description:", ferrs.Description)
				}
				return errors.New("invalid task")
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, taskOutput{Task: task})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Task title (at least 5 characters)")
	cmd.Flags().StringVar(&description, "description", "", "Task description, markdown allowed (at least 5 characters)")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to an image to attach")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			tasks, err := client.ListTasks(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			for _, t := range tasks {
				if t.ID == id {
					return writeOut(cmd, app, taskOutput{Task: t})
				}
			}
			return writeErr(cmd, errTaskNotFound(id))
		},
	}
}

func newTasksEditCmd(app *App) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Replace a task's description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			task, err := client.UpdateTaskDescription(cmd.Context(), id, strings.TrimSpace(description))
			if errors.Is(err, backend.ErrNotFound) {
				return writeErr(cmd, errTaskNotFound(id))
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, taskOutput{Task: task})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "New description")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newTasksRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Delete a task (already-deleted ids are a no-op)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			if err := client.DeleteTask(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": id})
		},
	}
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id: %q", s)
	}
	return id, nil
}
