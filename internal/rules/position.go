package rules

import (
	"strconv"
	"strings"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable snapshot of one game state. Engines return a new
// Position for every move, undo or reset; callers must not modify it.
type Position struct {
	startFEN string
	fen      string
	turn     Color
	movesUCI []string
	movesSAN []string
	board    [64]Piece

	check     bool
	checkmate bool
	stalemate bool
	draw      bool
	outcome   Outcome
	method    string

	drawClaims []string

	lastMove *LastMove
	captured Captured
	opening  Opening
}

func (p *Position) StartFEN() string { return p.startFEN }
func (p *Position) FEN() string      { return p.fen }
func (p *Position) Turn() Color      { return p.turn }
func (p *Position) Ply() int         { return len(p.movesUCI) }

// MoveNumber is the FEN full-move counter.
func (p *Position) MoveNumber() int {
	fields := strings.Fields(p.fen)
	if len(fields) == 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			return n
		}
	}
	return p.Ply()/2 + 1
}

func (p *Position) MovesUCI() []string { return append([]string(nil), p.movesUCI...) }
func (p *Position) MovesSAN() []string { return append([]string(nil), p.movesSAN...) }

func (p *Position) PieceAt(sq Square) Piece {
	if !sq.Valid() {
		return NoPiece
	}
	return p.board[sq]
}

// Board returns a copy of the placement indexed by Square.
func (p *Position) Board() [64]Piece { return p.board }

func (p *Position) InCheck() bool      { return p.check }
func (p *Position) Checkmate() bool    { return p.checkmate }
func (p *Position) Stalemate() bool    { return p.stalemate }
func (p *Position) Draw() bool         { return p.draw }
func (p *Position) Outcome() Outcome   { return p.outcome }
func (p *Position) Method() string     { return p.method }
func (p *Position) Captured() Captured { return p.captured }
func (p *Position) Opening() Opening   { return p.opening }

// DrawClaims lists draws the side to move could claim but the game has not
// ended on, e.g. "threefold_repetition" or "fifty_move_rule".
func (p *Position) DrawClaims() []string { return append([]string(nil), p.drawClaims...) }

// Over reports whether the game has a result.
func (p *Position) Over() bool { return p.outcome != NoOutcome }

// LastMove returns nil before the first move.
func (p *Position) LastMove() *LastMove {
	if p.lastMove == nil {
		return nil
	}
	lm := *p.lastMove
	return &lm
}

// LastSAN returns the SAN of the last ply or "" on an empty history.
func (p *Position) LastSAN() string {
	if len(p.movesSAN) == 0 {
		return ""
	}
	return p.movesSAN[len(p.movesSAN)-1]
}

var startingCounts = Tally{King: 1, Queen: 1, Rook: 2, Bishop: 2, Knight: 2, Pawn: 8}

// capturedFromBoard diffs on-board counts against the starting set.
// Kings are never counted; promotions can push a count above the start and
// are clamped at zero.
func capturedFromBoard(board [64]Piece) Captured {
	var onBoard [3]Tally
	for _, pc := range board {
		if pc.Empty() {
			continue
		}
		onBoard[pc.Color][pc.Kind]++
	}
	var out Captured
	for _, kind := range CapturableKinds {
		if lost := startingCounts[kind] - onBoard[White][kind]; lost > 0 {
			out.White[kind] = lost
		}
		if lost := startingCounts[kind] - onBoard[Black][kind]; lost > 0 {
			out.Black[kind] = lost
		}
	}
	return out
}
