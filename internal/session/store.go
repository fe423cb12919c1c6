package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
)

var ErrEmptySessionID = errors.New("session id is empty")

// Snapshot is the persisted state of one browser session's game.
type Snapshot struct {
	SessionID string           `json:"sessionId"`
	GameID    string           `json:"gameId"`
	StartFEN  string           `json:"startFen"`
	Moves     []string         `json:"moves"` // UCI, play order
	Advice    *domain.Advice   `json:"advice,omitempty"`
	AdviceSeq uint64           `json:"adviceSeq"`
	Version   uint64           `json:"version,omitempty"`
	Tally     domain.EvalTally `json:"tally"`
	Recorded  bool             `json:"recorded,omitempty"`
	StartedAt time.Time        `json:"startedAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Moves = append([]string(nil), s.Moves...)
	if s.Advice != nil {
		a := *s.Advice
		cp.Advice = &a
	}
	return &cp
}

// Store persists snapshots. Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// HashID is the storage key form of a session id.
func HashID(sessionID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionID)))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	snap      *Snapshot
	expiresAt time.Time
}

// MemoryStore keeps snapshots in process with the same TTL semantics as Redis.
type MemoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, data: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}
	key := HashID(sessionID)
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.ttl > 0 && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, nil
	}
	return e.snap.clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.SessionID) == "" {
		return ErrEmptySessionID
	}
	m.mu.Lock()
	m.data[HashID(snap.SessionID)] = memoryEntry{snap: snap.clone(), expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored snapshots, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
