package gateway

import (
	"errors"
	"sync"
	"time"

	"eventhub/internal/workflow"
	"eventhub/pkg/idempotency"
)

// ErrUnknownSession is returned for a session id this gateway never issued,
// or one that was swept
var ErrUnknownSession = errors.New("unknown or expired session")

type entry struct {
	client   *workflow.Client
	lastSeen time.Time
}

// Registry keeps one workflow client per issued gateway session. Ids it did
// not issue are refused unless the resume check finds their session data in
// a persistent store.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	build   WorkflowFactory
	now     func() time.Time
	resume  func(sessionID string) bool
	evict   func(sessionID string)
}

type RegistryOption func(*Registry)

// WithResume lets ids issued before a restart back in when their session
// still exists
func WithResume(check func(sessionID string) bool) RegistryOption {
	return func(r *Registry) { r.resume = check }
}

// WithEvict is called for every swept session id
func WithEvict(fn func(sessionID string)) RegistryOption {
	return func(r *Registry) { r.evict = fn }
}

func NewRegistry(factory WorkflowFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		build:   factory,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue creates a new session and returns its id
func (r *Registry) Issue() string {
	id := idempotency.NewSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry{client: r.build(id), lastSeen: r.now()}
	return id
}

// Get returns the client of sessionID
func (r *Registry) Get(sessionID string) (*workflow.Client, error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.client, nil
	}
	r.mu.Unlock()

	if r.resume == nil || !r.resume(sessionID) {
		return nil, ErrUnknownSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[sessionID]; !ok {
		e = &entry{client: r.build(sessionID)}
		r.entries[sessionID] = e
	}
	e.lastSeen = r.now()
	return e.client, nil
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-maxIdle)
	var dropped []string
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			dropped = append(dropped, id)
		}
	}
	r.mu.Unlock()

	if r.evict != nil {
		for _, id := range dropped {
			r.evict(id)
		}
	}
	return len(dropped)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
