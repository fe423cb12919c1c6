package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
)

var (
	ErrDuplicateGame = errors.New("game already recorded")
	ErrNilRecord     = errors.New("nil game record")
)

// Repository archives finished games.
type Repository interface {
	Insert(ctx context.Context, game *domain.GameRecord) (int64, error)
	Recent(ctx context.Context, sessionHash string, limit int) ([]*domain.GameRecord, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS coach_games (
	id            BIGSERIAL PRIMARY KEY,
	game_uuid     TEXT NOT NULL UNIQUE,
	session_hash  TEXT NOT NULL,
	result        TEXT NOT NULL,
	result_method TEXT NOT NULL DEFAULT '',
	moves_uci     JSONB NOT NULL,
	moves_san     JSONB NOT NULL,
	pgn           TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	eval_tally    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS coach_games_session_idx ON coach_games (session_hash, ended_at DESC);`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// EnsureSchema creates the journal table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create coach_games: %w", err)
	}
	return nil
}

func (r *repository) Insert(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil {
		return 0, ErrNilRecord
	}

	movesUCI, err := json.Marshal(nonNil(game.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(game.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	tally, err := json.Marshal(game.Tally)
	if err != nil {
		return 0, fmt.Errorf("marshal eval_tally: %w", err)
	}

	const query = `
		INSERT INTO coach_games (
			game_uuid,
			session_hash,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			started_at,
			ended_at,
			duration_ms,
			eval_tally
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameID,
		game.SessionHash,
		game.Result,
		game.Method,
		string(movesUCI),
		string(movesSAN),
		game.PGN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
		string(tally),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert game record: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) Recent(ctx context.Context, sessionHash string, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			game_uuid,
			session_hash,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			started_at,
			ended_at,
			duration_ms,
			eval_tally
		FROM coach_games
		WHERE session_hash = $1
		ORDER BY ended_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionHash, limit)
	if err != nil {
		return nil, fmt.Errorf("select game records: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		var (
			game         domain.GameRecord
			movesUCIJSON []byte
			movesSANJSON []byte
			tallyJSON    []byte
			durationMS   sql.NullInt64
		)
		if err := rows.Scan(
			&game.ID,
			&game.GameID,
			&game.SessionHash,
			&game.Result,
			&game.Method,
			&movesUCIJSON,
			&movesSANJSON,
			&game.PGN,
			&game.StartedAt,
			&game.EndedAt,
			&durationMS,
			&tallyJSON,
		); err != nil {
			return nil, fmt.Errorf("scan game record: %w", err)
		}
		if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
		if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
		if len(tallyJSON) > 0 {
			if err := json.Unmarshal(tallyJSON, &game.Tally); err != nil {
				return nil, fmt.Errorf("decode eval_tally: %w", err)
			}
		}
		if durationMS.Valid {
			game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		}
		games = append(games, &game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game records: %w", err)
	}
	return games, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
