package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps the session in process memory. The user profile is kept
// serialized, the same way it is persisted by the other stores.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string, 2)}
}

func (m *MemoryStore) Load(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	token, hasToken := m.values[TokenKey]
	raw, hasUser := m.values[UserKey]
	m.mu.RUnlock()

	if !hasToken || !hasUser {
		if hasToken || hasUser {
			m.Clear(ctx)
		}
		return nil, ErrNoSession
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.Clear(ctx)
		return nil, ErrNoSession
	}
	return &Session{Token: token, User: user}, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("marshal session user: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[TokenKey] = s.Token
	m.values[UserKey] = string(data)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, TokenKey)
	delete(m.values, UserKey)
	return nil
}

// MemoryStores hands out one MemoryStore per session id until it is dropped
type MemoryStores struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{stores: make(map[string]*MemoryStore)}
}

func (m *MemoryStores) Store(sessionID string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[sessionID]
	if !ok {
		s = NewMemoryStore()
		m.stores[sessionID] = s
	}
	return s
}

// Drop forgets the store of sessionID
func (m *MemoryStores) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, sessionID)
}

func (m *MemoryStores) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// MemoryFactory is a Factory over a fresh MemoryStores
func MemoryFactory() Factory {
	return NewMemoryStores().Store
}
