package table

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Chess-Coach/internal/session"
	"go.uber.org/zap"
)

const janitorInterval = time.Minute

// Registry maps browser sessions to live tables.
type Registry struct {
	deps Deps
	ttl  time.Duration

	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry evicts tables idle for longer than ttl once Run is started.
// A non-positive ttl keeps tables until Close.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{
		deps:   deps.withDefaults(),
		ttl:    ttl,
		tables: make(map[string]*Table),
	}
}

// Get returns the live table for sessionID, resuming a stored game when one
// exists and starting a new one otherwise.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Table, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, session.ErrEmptySessionID
	}
	r.mu.Lock()
	if t, ok := r.tables[sessionID]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	t := r.load(ctx, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[sessionID]; ok {
		// lost a race with a concurrent Get
		go t.Close()
		return existing, nil
	}
	r.tables[sessionID] = t
	return t, nil
}

func (r *Registry) load(ctx context.Context, sessionID string) *Table {
	if r.deps.Store == nil {
		return New(sessionID, r.deps)
	}
	snap, err := r.deps.Store.Load(ctx, sessionID)
	if err != nil {
		r.deps.Logger.Warn("coach_session_load_failed", zap.Error(err))
		return New(sessionID, r.deps)
	}
	if snap == nil {
		return New(sessionID, r.deps)
	}
	t, err := Restore(snap, r.deps)
	if err != nil {
		r.deps.Logger.Warn("coach_session_restore_failed", zap.String("game", snap.GameID), zap.Error(err))
		return New(sessionID, r.deps)
	}
	r.deps.Logger.Debug("coach_session_restored", zap.String("game", snap.GameID), zap.Int("plies", len(snap.Moves)))
	return t
}

// Len reports the number of live tables.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}

// Run evicts idle tables until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := janitorInterval
	if r.ttl < interval {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.evictIdle(r.deps.Now()); n > 0 {
				r.deps.Logger.Debug("coach_tables_evicted", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) evictIdle(now time.Time) int {
	var idle []*Table
	r.mu.Lock()
	for id, t := range r.tables {
		if now.Sub(t.LastActive()) > r.ttl {
			idle = append(idle, t)
			delete(r.tables, id)
		}
	}
	r.mu.Unlock()
	// the stored snapshot outlives the table
	for _, t := range idle {
		t.Close()
	}
	return len(idle)
}

// Close shuts every live table down.
func (r *Registry) Close() {
	r.mu.Lock()
	tables := r.tables
	r.tables = make(map[string]*Table)
	r.mu.Unlock()
	for _, t := range tables {
		t.Close()
	}
}
