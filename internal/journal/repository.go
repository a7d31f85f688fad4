package journal

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("attempt not found")
)

const defaultListLimit = 50

// Repository records booking attempts and their transitions
type Repository interface {
	Save(ctx context.Context, record *AttemptRecord) error
	AppendTransition(ctx context.Context, transition *TransitionRecord) error
	Get(ctx context.Context, id string) (*AttemptRecord, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]AttemptRecord, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Save inserts or updates the attempt row. Transitions are written separately.
func (r *repository) Save(ctx context.Context, record *AttemptRecord) error {
	if err := r.db.WithContext(ctx).Omit("Transitions").Save(record).Error; err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

func (r *repository) AppendTransition(ctx context.Context, transition *TransitionRecord) error {
	if err := r.db.WithContext(ctx).Create(transition).Error; err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*AttemptRecord, error) {
	var record AttemptRecord
	err := r.db.WithContext(ctx).
		Preload("Transitions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &record, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var records []AttemptRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return records, nil
}
