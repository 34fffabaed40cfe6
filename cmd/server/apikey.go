package main

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Long: `Create an API key for a user. Only a hash is stored, so the printed key cannot be shown again.

--permissions takes any of read, create, update, delete. --tables limits the key to those tables.
Leaving either empty grants everything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		user, _ := cmd.Flags().GetString("user")
		permissions, _ := cmd.Flags().GetStringSlice("permissions")
		tables, _ := cmd.Flags().GetStringSlice("tables")
		expires, _ := cmd.Flags().GetString("expires")

		var expiresAt *time.Time
		if expires != "" {
			t, err := now.Parse(expires)
			if err != nil {
				return fmt.Errorf("invalid --expires %q: %w", expires, err)
			}
			expiresAt = &t
		}

		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		plaintext, key, err := s.registry.CreateAPIKey(cmd.Context(), name, user, permissions, tables, expiresAt)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key %d created for %s:\n%s\n", key.ID, user, plaintext)
		return nil
	},
}

func init() {
	apikeyCreateCmd.Flags().String("name", "", "label for the key")
	apikeyCreateCmd.Flags().String("user", "", "user id the key acts as")
	apikeyCreateCmd.Flags().StringSlice("permissions", nil, "granted permissions (read,create,update,delete)")
	apikeyCreateCmd.Flags().StringSlice("tables", nil, "tables the key may access")
	apikeyCreateCmd.Flags().String("expires", "", "expiry date, e.g. 2025-12-31")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
	_ = apikeyCreateCmd.MarkFlagRequired("user")

	apikeyCmd.AddCommand(apikeyCreateCmd)
	rootCmd.AddCommand(apikeyCmd)
}
