package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ErrIllegalMove = errors.New("illegal chess move")
	ErrInvalidFEN  = errors.New("invalid FEN")
	ErrBadHistory  = errors.New("move history does not replay")
	ErrNoPosition  = errors.New("no position")
)

// Engine is the capability surface the rest of the application needs from a
// chess rules implementation. Every method is pure with respect to its input
// Position.
type Engine interface {
	Start() *Position
	Load(fen string) (*Position, error)
	Replay(startFEN string, movesUCI []string) (*Position, error)
	Move(p *Position, req MoveRequest) (*Position, error)
	LegalMoves(p *Position, from Square) []Destination
	Undo(p *Position) *Position
	PGN(p *Position, tags map[string]string) (string, error)
}

type Option func(*engine)

// WithOpeningBook toggles ECO labelling of positions (on by default).
func WithOpeningBook(enabled bool) Option {
	return func(e *engine) { e.openings = enabled }
}

// engine adapts github.com/corentings/chess. Games are rebuilt from the
// snapshot's start FEN and UCI history for every call.
type engine struct {
	openings bool

	bookOnce sync.Once
	book     *opening.BookECO
}

func NewEngine(opts ...Option) Engine {
	e := &engine{openings: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Start() *Position {
	p, err := e.Replay(StartingFEN, nil)
	if err != nil {
		// the standard start always replays
		panic(err)
	}
	return p
}

func (e *engine) Load(fen string) (*Position, error) {
	return e.Replay(fen, nil)
}

func (e *engine) Replay(startFEN string, movesUCI []string) (*Position, error) {
	startFEN = strings.TrimSpace(startFEN)
	if startFEN == "" {
		startFEN = StartingFEN
	}
	game, err := newGame(startFEN)
	if err != nil {
		return nil, err
	}
	notation := nchess.UCINotation{}
	for _, mv := range movesUCI {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrBadHistory, mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("%w: apply %s: %v", ErrBadHistory, mv, err)
		}
	}
	return e.snapshot(startFEN, game), nil
}

func (e *engine) Move(p *Position, req MoveRequest) (next *Position, err error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no position", ErrIllegalMove)
	}
	if !req.From.Valid() || !req.To.Valid() {
		return nil, fmt.Errorf("%w: malformed square", ErrIllegalMove)
	}
	if p.Over() {
		return nil, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	piece := p.PieceAt(req.From)
	if piece.Empty() {
		return nil, fmt.Errorf("%w: no piece on %s", ErrIllegalMove, req.From)
	}
	if piece.Color != p.Turn() {
		return nil, fmt.Errorf("%w: %s is not to move", ErrIllegalMove, piece.Color.Name())
	}

	defer func() {
		if r := recover(); r != nil {
			next, err = nil, fmt.Errorf("%w: rules library panic: %v", ErrIllegalMove, r)
		}
	}()

	game, err := replayGame(p.startFEN, p.movesUCI)
	if err != nil {
		return nil, err
	}
	uci, ok := matchValidMove(game.Position(), req)
	if !ok {
		return nil, fmt.Errorf("%w: %s%s", ErrIllegalMove, req.From, req.To)
	}
	notation := nchess.UCINotation{}
	move, err := notation.Decode(game.Position(), uci)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	if err := game.Move(move, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return e.snapshot(p.startFEN, game), nil
}

func (e *engine) LegalMoves(p *Position, from Square) []Destination {
	if p == nil || p.Over() || !from.Valid() {
		return nil
	}
	piece := p.PieceAt(from)
	if piece.Empty() || piece.Color != p.Turn() {
		return nil
	}
	game, err := replayGame(p.startFEN, p.movesUCI)
	if err != nil {
		return nil
	}
	origin := toLibSquare(from)
	seen := make(map[Square]int)
	var out []Destination
	for _, mv := range game.Position().ValidMoves() {
		if mv.S1() != origin {
			continue
		}
		to := fromLibSquare(mv.S2())
		capture := mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant)
		promote := mv.Promo() != nchess.NoPieceType
		// promotions yield one move per piece kind on the same square
		if i, ok := seen[to]; ok {
			out[i].Capture = out[i].Capture || capture
			out[i].Promote = out[i].Promote || promote
			continue
		}
		seen[to] = len(out)
		out = append(out, Destination{Square: to, Capture: capture, Promote: promote})
	}
	return out
}

func (e *engine) Undo(p *Position) *Position {
	if p == nil || len(p.movesUCI) == 0 {
		return p
	}
	prev, err := e.Replay(p.startFEN, p.movesUCI[:len(p.movesUCI)-1])
	if err != nil {
		return p
	}
	return prev
}

// PGN exports the game so far. SetUp, FEN and Result are always derived from
// the position; other tag pairs come from tags, blank values are skipped.
func (e *engine) PGN(p *Position, tags map[string]string) (string, error) {
	if p == nil {
		return "", ErrNoPosition
	}
	game, err := replayGame(p.startFEN, p.movesUCI)
	if err != nil {
		return "", err
	}
	for k, v := range tags {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		game.AddTagPair(k, tagEscaper.Replace(v))
	}
	if p.startFEN != StartingFEN {
		game.AddTagPair("SetUp", "1")
		game.AddTagPair("FEN", p.startFEN)
	}
	game.AddTagPair("Result", string(p.outcome))
	return game.String(), nil
}

var tagEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// matchValidMove finds the library's legal move for req and returns it in
// UCI form. A pawn reaching the last rank without a choice becomes a queen.
func matchValidMove(pos *nchess.Position, req MoveRequest) (string, bool) {
	s1, s2 := toLibSquare(req.From), toLibSquare(req.To)
	want := toLibPieceType(req.Promotion)
	if want == nchess.NoPieceType {
		want = nchess.Queen
	}
	found := false
	promo := false
	for _, mv := range pos.ValidMoves() {
		if mv.S1() != s1 || mv.S2() != s2 {
			continue
		}
		if mv.Promo() == nchess.NoPieceType {
			found = true
			continue
		}
		if mv.Promo() == want {
			found, promo = true, true
		}
	}
	if !found {
		return "", false
	}
	uci := req.From.String() + req.To.String()
	if promo {
		uci += strings.ToLower(fromLibPieceType(want).Letter())
	}
	return uci, true
}

func newGame(fen string) (*nchess.Game, error) {
	if fen == StartingFEN {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

func replayGame(startFEN string, moves []string) (*nchess.Game, error) {
	game, err := newGame(startFEN)
	if err != nil {
		return nil, err
	}
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadHistory, mv, err)
		}
	}
	return game, nil
}

func (e *engine) snapshot(startFEN string, game *nchess.Game) *Position {
	pos := game.Position()
	p := &Position{
		startFEN: startFEN,
		fen:      game.FEN(),
		turn:     fromLibColor(pos.Turn()),
		outcome:  fromLibOutcome(game.Outcome()),
		method:   methodName(game.Method()),
	}

	board := pos.Board()
	for sq, pc := range board.SquareMap() {
		p.board[fromLibSquare(sq)] = fromLibPiece(pc)
	}

	moves := game.Moves()
	positions := game.Positions()
	notation := nchess.AlgebraicNotation{}
	uci := nchess.UCINotation{}
	p.movesUCI = make([]string, 0, len(moves))
	p.movesSAN = make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		p.movesUCI = append(p.movesUCI, strings.ToLower(uci.Encode(positions[i], mv)))
		p.movesSAN = append(p.movesSAN, notation.Encode(positions[i], mv))
	}
	if n := len(moves); n > 0 && len(p.movesSAN) == n {
		last := moves[n-1]
		p.lastMove = &LastMove{
			From: fromLibSquare(last.S1()),
			To:   fromLibSquare(last.S2()),
			UCI:  p.movesUCI[n-1],
			SAN:  p.movesSAN[n-1],
		}
		p.check = last.HasTag(nchess.Check)
	}

	p.checkmate = game.Method() == nchess.Checkmate
	p.stalemate = game.Method() == nchess.Stalemate
	p.draw = game.Outcome() == nchess.Draw
	switch {
	case p.checkmate:
		p.check = true
	case len(moves) == 0:
		// no move tag to read after a FEN load
		p.check = kingAttacked(p.board, p.turn)
	}
	if game.Outcome() == nchess.NoOutcome {
		for _, m := range game.EligibleDraws() {
			if m != nchess.DrawOffer {
				p.drawClaims = append(p.drawClaims, methodName(m))
			}
		}
	}
	p.captured = capturedFromBoard(p.board)
	if e.openings && startFEN == StartingFEN && len(moves) > 0 {
		p.opening = e.lookupOpening(moves)
	}
	return p
}

func (e *engine) lookupOpening(moves []*nchess.Move) Opening {
	e.bookOnce.Do(func() { e.book = opening.NewBookECO() })
	if e.book == nil {
		return Opening{}
	}
	if eco := e.book.Find(moves); eco != nil {
		return Opening{Code: eco.Code(), Title: eco.Title()}
	}
	return Opening{}
}

// kingAttacked reports whether side's king is attacked. The opponent is given
// the move with its own king lifted off the board, so every pseudo-legal
// capture of the king shows up among the library's legal moves, pinned
// attackers included.
func kingAttacked(board [64]Piece, side Color) (attacked bool) {
	king := NoSquare
	trial := board
	for i, pc := range board {
		switch {
		case pc.Kind != King:
		case pc.Color == side:
			king = Square(i)
		default:
			trial[i] = NoPiece
		}
	}
	if king == NoSquare {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			attacked = false
		}
	}()
	var pos nchess.Position
	if err := pos.UnmarshalText([]byte(placement(trial) + " " + side.Other().String() + " - - 0 1")); err != nil {
		return false
	}
	target := toLibSquare(king)
	for _, mv := range pos.ValidMoves() {
		if mv.S2() == target {
			return true
		}
	}
	return false
}

// placement encodes the FEN piece-placement field.
func placement(board [64]Piece) string {
	var b strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := board[NewSquare(file, rank)]
			if pc.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			letter := pc.Kind.Letter()
			if pc.Color == Black {
				letter = strings.ToLower(letter)
			}
			b.WriteString(letter)
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			b.WriteByte('/')
		}
	}
	return b.String()
}

func toLibSquare(sq Square) nchess.Square {
	return nchess.NewSquare(nchess.File(sq.File()), nchess.Rank(sq.Rank()))
}

func fromLibSquare(sq nchess.Square) Square {
	return NewSquare(int(sq.File()), int(sq.Rank()))
}

func fromLibColor(c nchess.Color) Color {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return NoColor
	}
}

func fromLibPiece(pc nchess.Piece) Piece {
	if pc == nchess.NoPiece {
		return NoPiece
	}
	return Piece{Color: fromLibColor(pc.Color()), Kind: fromLibPieceType(pc.Type())}
}

func fromLibPieceType(pt nchess.PieceType) PieceKind {
	switch pt {
	case nchess.King:
		return King
	case nchess.Queen:
		return Queen
	case nchess.Rook:
		return Rook
	case nchess.Bishop:
		return Bishop
	case nchess.Knight:
		return Knight
	case nchess.Pawn:
		return Pawn
	default:
		return NoKind
	}
}

func toLibPieceType(k PieceKind) nchess.PieceType {
	switch k {
	case Queen:
		return nchess.Queen
	case Rook:
		return nchess.Rook
	case Bishop:
		return nchess.Bishop
	case Knight:
		return nchess.Knight
	default:
		return nchess.NoPieceType
	}
}

func fromLibOutcome(o nchess.Outcome) Outcome {
	switch o {
	case nchess.WhiteWon:
		return WhiteWon
	case nchess.BlackWon:
		return BlackWon
	case nchess.Draw:
		return Drawn
	default:
		return NoOutcome
	}
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	default:
		return ""
	}
}
