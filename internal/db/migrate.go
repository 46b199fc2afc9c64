// Package db connects to the SQL report store and implements report.Sink on
// top of it.
package db

import (
	"fmt"

	"github.com/zulandar/tally/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.ReportHeader{},
		&models.ReportRow{},
	}
}

// AutoMigrate creates or updates all report tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
