package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepository keeps attempts in process memory for runs without a
// database.
type memoryRepository struct {
	mu          sync.RWMutex
	attempts    map[string]AttemptRecord
	transitions map[string][]TransitionRecord
	nextID      uint
	now         func() time.Time
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		attempts:    make(map[string]AttemptRecord),
		transitions: make(map[string][]TransitionRecord),
		now:         time.Now,
	}
}

func (m *memoryRepository) Save(ctx context.Context, record *AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if existing, ok := m.attempts[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	stored := *record
	stored.Transitions = nil
	m.attempts[record.ID] = stored
	return nil
}

func (m *memoryRepository) AppendTransition(ctx context.Context, transition *TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	transition.ID = m.nextID
	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = m.now().UTC()
	}
	m.transitions[transition.AttemptID] = append(m.transitions[transition.AttemptID], *transition)
	return nil
}

func (m *memoryRepository) Get(ctx context.Context, id string) (*AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	record.Transitions = append([]TransitionRecord(nil), m.transitions[id]...)
	return &record, nil
}

func (m *memoryRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []AttemptRecord
	for _, record := range m.attempts {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
