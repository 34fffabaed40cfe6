// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"github.com/Annany2002/nebula-dataapi/config"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/registry"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

var rootCmd = &cobra.Command{
	Use:   "nebula",
	Short: "Nebula data API server",
	Long: `Nebula serves a REST API for every model declared in its model file.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stores are the handles every subcommand opens against the metadata database.
type stores struct {
	cfg      *config.Config
	db       *sql.DB
	registry *registry.Registry
}

func (s *stores) Close() {
	customLog.Println("Closing metadata database connection...")
	if err := s.db.Close(); err != nil {
		customLog.Printf("Error closing metadata database: %v", err)
	}
}

// openStores loads configuration, connects to the database and loads the current models.
func openStores(ctx context.Context) (*stores, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	db, err := storage.ConnectMetadataDB(cfg)
	if err != nil {
		return nil, err
	}
	gdb, err := storage.OpenGorm(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := registry.New(gdb)
	if err := reg.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := reg.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{cfg: cfg, db: db, registry: reg}, nil
}
