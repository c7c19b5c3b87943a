// Package store opens the relational database shared by the auth and vectordb packages.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

type Config struct {
	//sqlite or postgres
	Driver string `mapstructure:"driver"`
	//file path for sqlite, connection string for postgres
	DSN   string `mapstructure:"dsn"`
	Debug bool   `mapstructure:"debug"`
}

// Open connects to the configured database and tunes the pool for the driver.
func Open(cfg Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{
		Logger: slogLogger{level: level, slow: 200 * time.Millisecond},
	}

	switch cfg.Driver {
	case SQLite, "":
		path := cfg.DSN
		if path == "" {
			path = "rca.db"
		}
		if !strings.Contains(path, "?") {
			path = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
		}
		db, err := gorm.Open(sqlite.Open(path), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// sqlite locks the whole file on write
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return db, nil

	case Postgres:
		db, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil

	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
	}
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
