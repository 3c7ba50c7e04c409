package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/intake/internal/questionnaire"
)

// Registry holds the live sessions of a server process. Sessions are kept in
// memory only and are lost on restart. Sessions nobody touched for a while
// are dropped by Evict.
type Registry struct {
	opts   Options
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session over cfg.
func (r *Registry) Create(cfg *questionnaire.Config) *Session {
	s := New(uuid.NewString(), cfg, r.opts)
	r.mu.Lock()
	r.sessions[s.ID()] = &entry{session: s, lastUsed: r.now()}
	r.mu.Unlock()
	return s
}

// Get returns a session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastUsed = r.now()
	return e.session, nil
}

// Delete drops a session. A submission still in flight for it is abandoned.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.session.Reset()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict drops the sessions unused for maxIdle or longer and returns how many
// were dropped. Sessions with a submission in flight are kept.
func (r *Registry) Evict(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Session
	for id, e := range r.sessions {
		if e.lastUsed.After(cutoff) || e.session.State().Busy {
			continue
		}
		delete(r.sessions, id)
		idle = append(idle, e.session)
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Reset()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle sessions", "count", len(idle), "max_idle", maxIdle)
	}
	return len(idle)
}

// EvictLoop calls Evict every interval until ctx is done.
func (r *Registry) EvictLoop(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Evict(maxIdle)
		}
	}
}
