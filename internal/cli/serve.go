package cli

import (
	"github.com/DariyDar/astra/internal/mcp"

	"github.com/spf13/cobra"
)

func serveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the briefing tools to an MCP client over stdio",
		Long: `Serve speaks line-delimited JSON-RPC on stdin/stdout and exposes two tools:
briefing and search_everywhere. Logs go to the log file, never to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			app.Logger.Info("starting mcp server",
				"google_account", app.Config.Google.Account,
				"credentials_backend", app.Config.Google.CredentialsBackend,
				"slack_configured", app.Config.Slack.Token != "" && app.Config.Slack.TeamID != "",
				"clickup_configured", app.Config.ClickUp.APIKey != "" && app.Config.ClickUp.TeamID != "",
			)
			srv := mcp.NewServer(app.Service, o.version, app.Logger)
			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
