package repository

import (
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
)

// Open connects to the configured database and applies the schema.
// Postgres is the production driver; sqlite exists for local runs and tests.
func Open(cfg common.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	logger.Info("db.connect", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, common.WrapError(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, common.WrapError(err, "access connection pool")
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("db.connect.ok")
	return db, nil
}

// Migrate applies the schema for all persisted entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entity.Document{}, &entity.ExtractionJob{}); err != nil {
		return common.WrapError(err, "migrate schema")
	}
	return nil
}
