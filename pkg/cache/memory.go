package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"eventhub/pkg/logger"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// memoryService is the in-process Service used when Redis is not configured.
// Values are stored as JSON so both backends behave the same for callers.
type memoryService struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	logger  *logger.Logger
}

func NewMemoryService() Service {
	return newMemoryService(time.Now)
}

func newMemoryService(now func() time.Time) *memoryService {
	return &memoryService{
		entries: make(map[string]entry),
		now:     now,
		logger:  logger.GetDefault(),
	}
}

func (m *memoryService) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return ErrCacheMiss
	}
	if m.expired(e) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && m.expired(cur) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return ErrCacheMiss
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (m *memoryService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.purgeExpired()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// purgeExpired drops every expired entry. Must hold m.mu.
func (m *memoryService) purgeExpired() {
	for key, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, key)
		}
	}
}

func (m *memoryService) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePattern accepts Redis glob patterns
func (m *memoryService) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("cache delete pattern error: %w", err)
		}
		if matched {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryService) Exists(ctx context.Context, key string) bool {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return ok && !m.expired(e)
}

func (m *memoryService) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetcher func() (interface{}, error), dest interface{}) error {
	return getOrSet(ctx, m, m.logger, key, ttl, fetcher, dest)
}

func (m *memoryService) Ping(ctx context.Context) error { return nil }

func (m *memoryService) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
