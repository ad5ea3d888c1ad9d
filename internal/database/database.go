package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
)

// Open connects to the database backing the SQL vector index: Postgres with
// pgvector when the index backend is postgres, a SQLite file otherwise.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	log := logging.WithComponent("database")

	var dialector gorm.Dialector
	switch cfg.Index.Backend {
	case "postgres":
		log.Info().
			Str("host", cfg.Database.Host).
			Str("port", cfg.Database.Port).
			Str("user", cfg.Database.User).
			Msg("connecting to postgres")
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		log.Info().Str("path", cfg.Database.SQLitePath).Msg("opening sqlite database")
		dialector = sqlite.Open(cfg.Database.SQLitePath)
	default:
		return nil, fmt.Errorf("index backend %q does not use a database", cfg.Index.Backend)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database handle: %w", err)
	}
	if cfg.Index.Backend == "sqlite" {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := HealthCheck(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	log.Info().Msg("successfully connected to database")
	return db, nil
}

// HealthCheck checks if the database is accessible
func HealthCheck(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
