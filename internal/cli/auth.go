package cli

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/config"
)

func newLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session for later commands",
		Example: strings.TrimSpace(`
  taskboard login --email ann@example.com --password s3cret
  echo "s3cret" | taskboard login --email ann@example.com
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return writeErr(cmd, errors.New("missing --email"))
			}
			if password == "" {
				// Allow piping the password instead of leaking it into
				// shell history via the flag.
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					password = strings.TrimSpace(sc.Text())
				}
			}
			if password == "" {
				return writeErr(cmd, errors.New("missing password: pass --password or pipe it on stdin"))
			}

			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			sess, err := client.SignIn(cmd.Context(), email, password)
			if err != nil {
				return writeErr(cmd, err)
			}

			creds := &config.Credentials{
				UserID: sess.UserID,
				Email:  sess.Email,
			}
			// The remote client carries a bearer token; the embedded
			// backend has nothing to persist beyond the identity.
			if tc, ok := client.(interface{ AccessToken() string }); ok {
				creds.AccessToken = tc.AccessToken()
			}
			if err := config.SaveCredentials(app.configDir(), creds); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"signedIn": sess.Email})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or pipe it on stdin)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			if err := client.SignOut(cmd.Context()); err != nil {
				app.logger().Warn("backend sign-out failed", "error", err)
			}
			if err := config.ClearCredentials(app.configDir()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"signedOut": true})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
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
				return writeOut(cmd, app, map[string]any{"signedIn": false})
			}
			return writeOut(cmd, app, map[string]any{
				"signedIn": true,
				"userId":   sess.UserID,
				"email":    sess.Email,
			})
		},
	}
}
