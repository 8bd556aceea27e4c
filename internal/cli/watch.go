package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream task changes as JSON lines until interrupted",
		Example: "  taskboard watch | jq .type",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := newClient(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cleanup()

			sub, err := client.SubscribeTaskChanges(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer sub.Unsubscribe()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case change, ok := <-sub.Changes():
					if !ok {
						return nil
					}
					if err := enc.Encode(change); err != nil {
						return err
					}
				}
			}
		},
	}
}
