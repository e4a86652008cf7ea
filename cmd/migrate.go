package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redecaete/matupiri/internal/account"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the event and account database schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		events, err := openEvents(ctx, cfg)
		if err != nil {
			return err
		}
		defer events.Close() //nolint:errcheck
		if err := events.Migrate(ctx); err != nil {
			return err
		}
		fmt.Printf("Event store migrated (%s)\n", cfg.Store.Driver)

		accounts, err := account.NewStore(cfg.Accounts.Path)
		if err != nil {
			return err
		}
		defer accounts.Close() //nolint:errcheck
		if err := accounts.Migrate(ctx); err != nil {
			return err
		}
		fmt.Printf("Account store migrated (%s)\n", cfg.Accounts.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
