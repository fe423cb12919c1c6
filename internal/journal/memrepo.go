package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
)

// memrepo is the in-memory journal used when no DATABASE_URL is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	byGame    map[string]*domain.GameRecord   // game uuid -> record
	bySession map[string][]*domain.GameRecord // session hash -> records (append, latest last)
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byGame:    make(map[string]*domain.GameRecord),
		bySession: make(map[string][]*domain.GameRecord),
	}
}

func (m *memrepo) Insert(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil {
		return 0, ErrNilRecord
	}
	key := strings.TrimSpace(game.GameID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byGame[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	rec := copyRecord(game)
	rec.ID = m.nextID

	m.byGame[key] = rec
	m.bySession[rec.SessionHash] = append(m.bySession[rec.SessionHash], rec)
	return rec.ID, nil
}

func (m *memrepo) Recent(ctx context.Context, sessionHash string, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.bySession[sessionHash]
	if len(list) == 0 {
		return []*domain.GameRecord{}, nil
	}
	// EndedAt desc, then ID desc
	items := make([]*domain.GameRecord, 0, len(list))
	for _, g := range list {
		items = append(items, copyRecord(g))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func copyRecord(g *domain.GameRecord) *domain.GameRecord {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
