package journal

import (
	"fmt"
	"time"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
)

// GameMeta identifies the game a finished position belongs to.
type GameMeta struct {
	GameID    string
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Tally     domain.EvalTally
}

// NewRecord builds the archive entry for a finished position.
// It returns nil, nil while the game is still running.
func NewRecord(eng rules.Engine, pos *rules.Position, meta GameMeta) (*domain.GameRecord, error) {
	if pos == nil || !pos.Over() {
		return nil, nil
	}
	ended := meta.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	rec := &domain.GameRecord{
		GameID:      meta.GameID,
		SessionHash: session.HashID(meta.SessionID),
		Result:      pos.Outcome().Winner(),
		Method:      pos.Method(),
		MovesUCI:    pos.MovesUCI(),
		MovesSAN:    pos.MovesSAN(),
		StartedAt:   meta.StartedAt,
		EndedAt:     ended,
		Tally:       meta.Tally,
	}
	if !meta.StartedAt.IsZero() && ended.After(meta.StartedAt) {
		rec.Duration = ended.Sub(meta.StartedAt)
	}

	op := pos.Opening()
	pgn, err := eng.PGN(pos, map[string]string{
		"Event":       "Coached game",
		"Site":        "Cheese Chess Coach",
		"Date":        ended.Format("2006.01.02"),
		"White":       "Player",
		"Black":       "Player",
		"ECO":         op.Code,
		"Opening":     op.Title,
		"Termination": rec.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("export pgn: %w", err)
	}
	rec.PGN = pgn
	return rec, nil
}
