package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/blog-cms/internal/config"
	"github.com/example/blog-cms/internal/models"
)

type Database struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func Connect(cfg *config.Config) (*Database, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.DBPath, logger.Warn)
	default:
		return Open(postgres.Open(cfg.DSN()), logger.Info)
	}
}

// OpenSQLite opens (and creates) a sqlite database file with foreign keys enforced.
func OpenSQLite(path string, level logger.LogLevel) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), level)
}

func Open(dialector gorm.Dialector, level logger.LogLevel) (*Database, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	return &Database{Gorm: gormDB, SQL: sqlDB}, nil
}

func (d *Database) AutoMigrate(modelsToMigrate ...interface{}) error {
	return d.Gorm.AutoMigrate(modelsToMigrate...)
}

// Migrate creates or updates every table the application uses.
func (d *Database) Migrate() error {
	return d.AutoMigrate(models.All()...)
}

func (d *Database) Close() error {
	if d.SQL != nil {
		return d.SQL.Close()
	}
	return nil
}

// Transaction runs fc in a transaction bound to ctx. It commits when fc
// returns nil and rolls back on error or panic.
func (d *Database) Transaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	return d.Gorm.WithContext(ctx).Transaction(fc)
}
