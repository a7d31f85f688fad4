package database

import (
	"eventhub/internal/journal"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&journal.AttemptRecord{},
		&journal.TransitionRecord{},
	); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
