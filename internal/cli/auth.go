package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/DariyDar/astra/internal/credential"
	"github.com/DariyDar/astra/internal/store"

	"github.com/spf13/cobra"
)

func authCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google credential used by gmail and calendar",
	}
	cmd.AddCommand(authLoginCmd(o), authImportCmd(o), authListCmd(o))
	return cmd
}

func authLoginCmd(o *rootOptions) *cobra.Command {
	var clientSecret string
	cmd := &cobra.Command{
		Use:   "login [account]",
		Short: "Authorize read-only Gmail and Calendar access for an account",
		Long: `Login runs the OAuth authorization-code flow with the client file downloaded
from the Google Cloud console and stores the resulting record. The account
defaults to google.account from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			account := app.Config.Google.Account
			if len(args) == 1 {
				account = args[0]
			}
			if err := credential.ValidateAccount(account); err != nil {
				return err
			}
			if clientSecret == "" {
				clientSecret = app.Config.ClientSecretPath()
			}
			secret, err := os.ReadFile(clientSecret)
			if err != nil {
				return fmt.Errorf("read client secret: %w", err)
			}

			cred, err := credential.Authorize(cmd.Context(), credential.AuthorizeOptions{
				ClientSecretJSON: secret,
				In:               cmd.InOrStdin(),
				Out:              cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if err := app.Store.Save(cmd.Context(), account, cred); err != nil {
				return fmt.Errorf("save credential: %w", err)
			}
			app.Logger.Info("account authorized", "account", account)
			fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s\n", account)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "path to client_secret.json (default google.client_secret)")
	return cmd
}

// recordImporter copies a credential file verbatim, keeping keys the
// Credential type does not model.
type recordImporter interface {
	ImportFile(ctx context.Context, account, path string) error
}

func authImportCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <account> <file>",
		Short: "Copy an existing credential JSON file into the configured store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			account, path := args[0], args[1]
			imp, ok := app.Store.(recordImporter)
			if !ok {
				return fmt.Errorf("credential backend does not support import")
			}
			if err := imp.ImportFile(cmd.Context(), account, path); err != nil {
				return fmt.Errorf("import credential: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", account)
			return nil
		},
	}
}

func authListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts in the sqlite credential store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s, ok := app.Store.(*store.SQLiteStore)
			if !ok {
				return fmt.Errorf("auth list needs google.credentials_backend: sqlite (file records live in %s)", app.Config.CredentialsDir())
			}
			accounts, err := s.Accounts(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}
