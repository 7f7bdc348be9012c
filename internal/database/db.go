// Package database persists FileRecord metadata in SQLite via GORM.
package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/csv-transformer/backend/internal/models"
)

// DefaultFile is the metadata database file used when the config does
// not name one.
const DefaultFile = "transformer.db"

// NewDB opens (and migrates) the metadata database at the given path.
func NewDB(file string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(file), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening metadata database %s: %w", file, err)
	}

	if err := db.AutoMigrate(&models.FileRecord{}); err != nil {
		return nil, fmt.Errorf("migrating metadata database: %w", err)
	}
	return db, nil
}
