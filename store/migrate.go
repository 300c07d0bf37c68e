package store

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table from the gorm models. It is
// used for sqlite, which has no SQL migration set.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
