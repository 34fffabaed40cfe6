// internal/storage/database.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Driver registration
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Annany2002/nebula-dataapi/config"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// dsnOptions enables foreign keys, WAL mode and a 5s busy timeout on every connection.
const dsnOptions = "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// ConnectMetadataDB opens the SQLite database that holds both the model metadata
// and the record tables declared by it.
func ConnectMetadataDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
	customLog.Printf("Storage: Initializing database: %s", dbPath)

	// Ensure the data directory exists
	if err := os.MkdirAll(cfg.MetadataDbDir, 0o750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return OpenDB(context.Background(), dbPath)
}

// OpenDB opens and pings the SQLite file at path.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		customLog.Warnf("Storage: Failed to open db '%s': %v", path, err)
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Verify connection is working
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping db '%s': %v", path, err)
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	customLog.Println("Storage: Database connection successful.")

	return db, nil
}

// OpenGorm wraps an open connection for the gorm-managed metadata tables.
// Both handles share one pool so transactions and locks stay consistent.
func OpenGorm(db *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite3",
		Conn:       db,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		customLog.Warnf("Storage: Failed to initialise gorm: %v", err)
		return nil, fmt.Errorf("failed to initialise metadata orm: %w", err)
	}
	return gdb, nil
}
