package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Annany2002/nebula-dataapi/config"
	"github.com/Annany2002/nebula-dataapi/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		token, err := auth.GenerateJWT(args[0], cfg.JWTSecret, cfg.JWTExpiration)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
