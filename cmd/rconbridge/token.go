package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/cli"
	"github.com/energizer-project/rconbridge/internal/db"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage REST API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create NAME PERMISSION",
	Short: "Create a token (permission: monitor, control or configure)",
	Long: `Create an API token. The secret is printed once and only its hash is
stored. Permissions are cumulative: control includes monitor, configure
includes both.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		perm, err := db.ParsePermission(args[1])
		if err != nil {
			return err
		}
		return withTokens(cmd, func(tokens *db.TokensDatabase) error {
			secret, err := tokens.CreateToken(args[0], perm)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token %q (%s) created. Store it now, it will not be shown again:\n%s\n",
				args[0], perm, secret)
			return nil
		})
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withTokens(cmd, func(tokens *db.TokensDatabase) error {
			list, err := tokens.ListTokens()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, t := range list {
				lastUsed := "never"
				if t.LastUsedAt != nil {
					lastUsed = t.LastUsedAt.Format(time.DateTime)
				}
				rows = append(rows, []string{t.Name, string(t.Permission), t.CreatedAt.Format(time.DateTime), lastUsed})
			}
			cli.FormatRows(cmd.OutOrStdout(), []string{"Name", "Permission", "Created", "Last Used"}, rows)
			return nil
		})
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke NAME",
	Short: "Revoke a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(cmd, func(tokens *db.TokensDatabase) error {
			if err := tokens.RevokeToken(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token %q revoked\n", args[0])
			return nil
		})
	},
}

func init() {
	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd)
}

// withTokens opens the token store configured for the gateway.
func withTokens(cmd *cobra.Command, fn func(*db.TokensDatabase) error) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	path := cfg.GetApplicationData().History.DatabaseFile
	if path == "" {
		return fmt.Errorf("history.database_file is not set in %s", cfg.Path())
	}

	database, err := db.NewDatabase(path)
	if err != nil {
		return err
	}
	defer database.Close()

	tokens, err := db.NewTokensDatabase(database)
	if err != nil {
		return err
	}
	return fn(tokens)
}
