package cli

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/backend/local"
	"taskboard/internal/tasklist"
	"taskboard/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser UI",
		Long: strings.TrimSpace(`
Serve the task list as a web app: server-rendered HTML with live updates
pushed to every open tab over SSE.
`),
		Example: strings.TrimSpace(`
  # Serve against the configured remote backend
  taskboard serve --addr 127.0.0.1:3456

  # Fully local: embedded sqlite + filesystem image storage
  taskboard --local serve --addr 127.0.0.1:3456
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				return writeErr(cmd, errors.New("serve: missing --addr"))
			}

			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			mediaDir := ""
			if lc, ok := client.(*local.Client); ok {
				mediaDir = lc.ObjectsDir()
			}

			logger := app.logger()
			mgr := tasklist.NewManager(client, logger)

			srv, err := web.NewServer(web.ServerConfig{
				Addr:     listenAddr,
				StateDir: app.configDir(),
				MediaDir: mediaDir,
				Client:   client,
				Manager:  mgr,
				Logger:   logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			go func() {
				if err := mgr.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
					logger.Error("change feed stopped", "error", err)
				}
			}()

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}

			url := "http://" + ln.Addr().String() + "/"
			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{"addr": ln.Addr().String(), "url": url},
				"meta": map[string]any{"hint": "open " + url},
			})

			httpSrv := &http.Server{Handler: srv.Handler()}
			go func() {
				<-cmd.Context().Done()
				_ = httpSrv.Close()
			}()
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && cmd.Context().Err() == nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3456", "Listen address")
	return cmd
}
