package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage model definitions",
}

var modelsApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Apply a YAML model file",
	Long: `Upsert the models, fields, relationships and webhooks declared in a YAML file
and create any missing record tables. Fields and relationships of listed models are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.registry.LoadFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		for _, m := range s.registry.Catalog().Models() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d fields\n", m.Name, m.TableName, len(m.Fields))
		}
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsApplyCmd)
	rootCmd.AddCommand(modelsCmd)
}
