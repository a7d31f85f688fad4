package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the indexes the attempt history queries rely on
func MigrateConstraints(db *gorm.DB) error {
	// History listings are always newest first per user
	err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_booking_attempts_user_created
		ON booking_attempts (user_id, created_at DESC);
	`).Error
	if err != nil {
		return err
	}

	// A reservation key belongs to exactly one attempt
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_attempts_reservation_key
		ON booking_attempts (reservation_key)
		WHERE reservation_key <> '';
	`).Error
	if err != nil {
		return err
	}

	return nil
}
