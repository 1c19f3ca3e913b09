package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/events"
	"go.uber.org/zap"
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrRegistryClosed   = errors.New("session registry closed")
)

// Registry keeps the live sessions of this process, created on first use.
type Registry struct {
	deps Deps
	log  *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	lastSeen map[string]time.Time
	closed   bool
}

func NewRegistry(deps Deps) *Registry {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
	}
}

// Get returns the session for id, initializing it on first access.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.lastSeen[id] = r.now()
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	// Init talks to the API, so it runs outside the lock.
	s := New(id, r.deps)
	s.Init(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		s.Teardown()
		return nil, ErrRegistryClosed
	}
	r.lastSeen[id] = r.now()
	if existing, ok := r.sessions[id]; ok {
		s.Teardown()
		return existing, nil
	}
	r.sessions[id] = s
	return s, nil
}

// Lookup returns a live session without creating one. It does not count as
// activity.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict tears down one session. Its stored state stays.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	delete(r.lastSeen, id)
	r.mu.Unlock()
	if ok {
		s.Teardown()
	}
}

// EvictIdle tears down sessions not requested through Get for longer than
// maxIdle and returns how many were evicted.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Session
	for id, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			idle = append(idle, r.sessions[id])
			delete(r.sessions, id)
			delete(r.lastSeen, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Teardown()
	}
	if len(idle) > 0 {
		r.log.Debug("evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.EvictIdle(maxIdle)
		case <-ctx.Done():
			return
		}
	}
}

// HandleOrderPlaced reloads the cart of a live session after an order was
// placed through another instance.
func (r *Registry) HandleOrderPlaced(ctx context.Context, event events.OrderPlaced) error {
	s, ok := r.Lookup(event.SessionID)
	if !ok {
		return nil
	}
	r.log.Debug("reloading cart after order event",
		zap.String("session_id", event.SessionID),
		zap.String("event_id", event.EventID))
	s.Reload(ctx)
	return nil
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.lastSeen = make(map[string]time.Time)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
}
