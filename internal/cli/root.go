package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/backend"
	"taskboard/internal/backend/local"
	"taskboard/internal/backend/rest"
	"taskboard/internal/config"
	"taskboard/internal/format"
	"taskboard/internal/tasklist"
	"taskboard/internal/tui"
)

type App struct {
	ConfigDir  string
	BackendURL string
	AnonKey    string
	Local      bool
	DataDir    string
	Format     string
	PrettyJSON bool
	Debug      bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "taskboard",
		Short:        "Shared task list with live updates (CLI + TUI + web)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  taskboard

  # Scriptable commands
  taskboard tasks list
  taskboard tasks add --title "Groceries" --description "Buy milk and bread"

  # Serve the browser UI
  taskboard serve --addr 127.0.0.1:3456
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", envOr("TASKBOARD_CONFIG_DIR", ""), "Config directory (default: XDG config dir)")
	cmd.PersistentFlags().StringVar(&app.BackendURL, "backend-url", envOr("TASKBOARD_BACKEND_URL", ""), "Backend base URL")
	cmd.PersistentFlags().StringVar(&app.AnonKey, "anon-key", envOr("TASKBOARD_ANON_KEY", ""), "Backend anonymous API key")
	cmd.PersistentFlags().BoolVar(&app.Local, "local", os.Getenv("TASKBOARD_LOCAL") != "", "Use the embedded sqlite backend instead of a remote one")
	cmd.PersistentFlags().StringVar(&app.DataDir, "data-dir", envOr("TASKBOARD_DATA_DIR", ""), "Data directory for the embedded backend")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TASKBOARD_FORMAT", "json"), "Output format (json|text)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVar(&app.Debug, "debug", os.Getenv("TASKBOARD_DEBUG") != "", "Verbose logging to stderr")

	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newServeCmd(app))

	return cmd
}

func runTUI(cmd *cobra.Command, app *App) error {
	client, cleanup, err := newClient(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer cleanup()

	mgr := tasklist.NewManager(client, app.logger())
	return tui.Run(cmd.Context(), client, mgr, app.logger())
}

func (app *App) configDir() string {
	if app.ConfigDir != "" {
		return app.ConfigDir
	}
	return config.DefaultDir()
}

func (app *App) logger() *slog.Logger {
	level := slog.LevelWarn
	if app.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveSettings merges flags over the persisted config file.
func resolveSettings(app *App) (*config.Settings, error) {
	st, err := config.Load(app.configDir())
	if err != nil {
		return nil, err
	}
	if app.BackendURL != "" {
		st.BackendURL = app.BackendURL
	}
	if app.AnonKey != "" {
		st.AnonKey = app.AnonKey
	}
	if app.Local {
		st.Local = true
	}
	if app.DataDir != "" {
		st.DataDir = app.DataDir
	}
	if st.DataDir == "" {
		st.DataDir = filepath.Join(app.configDir(), "data")
	}
	return st, nil
}

// newClient builds the backend client the command will talk to: the embedded
// sqlite backend in local mode, the remote REST backend otherwise. The
// returned cleanup is safe to call once.
func newClient(cmd *cobra.Command, app *App) (backend.Client, func(), error) {
	st, err := resolveSettings(app)
	if err != nil {
		return nil, nil, err
	}
	creds, err := config.LoadCredentials(app.configDir())
	if err != nil {
		return nil, nil, err
	}

	if st.Local {
		c, err := local.Open(cmd.Context(), st.DataDir)
		if err != nil {
			return nil, nil, err
		}
		// The local session store is in-memory; re-seed it from the stored
		// sign-in so attribution survives across processes.
		if creds != nil && creds.Email != "" {
			_, _ = c.SignIn(cmd.Context(), creds.Email, "local")
		}
		return c, func() { _ = c.Close() }, nil
	}

	if st.BackendURL == "" {
		return nil, nil, errors.New("no backend configured: pass --backend-url/--anon-key (or --local)")
	}
	cfg := rest.Config{
		BaseURL: st.BackendURL,
		AnonKey: st.AnonKey,
		Logger:  app.logger(),
	}
	if creds != nil {
		cfg.AccessToken = creds.AccessToken
	}
	c, err := rest.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
