package rules

import "strings"

// Square indexes the board from a1 (0) to h8 (63), file-major within a rank.
type Square int8

const NoSquare Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

// ParseSquare accepts coordinates like "e4" (case-insensitive).
func ParseSquare(s string) (Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return NoSquare, false
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	sq := NewSquare(file, rank)
	return sq, sq != NoSquare
}

func (s Square) Valid() bool { return s >= 0 && s < 64 }
func (s Square) File() int   { return int(s) % 8 }
func (s Square) Rank() int   { return int(s) / 8 }

// Dark reports the square colour; a1 is dark.
func (s Square) Dark() bool { return (s.File()+s.Rank())%2 == 0 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

type Color uint8

const (
	NoColor Color = iota
	White
	Black
)

// String returns the FEN side token ("w" or "b").
func (c Color) String() string {
	switch c {
	case White:
		return "w"
	case Black:
		return "b"
	default:
		return "-"
	}
}

func (c Color) Name() string {
	switch c {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return ""
	}
}

func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

type PieceKind uint8

const (
	NoKind PieceKind = iota
	King
	Queen
	Rook
	Bishop
	Knight
	Pawn
)

// CapturableKinds is the display order of captured tallies.
var CapturableKinds = []PieceKind{Queen, Rook, Bishop, Knight, Pawn}

// Letter returns the upper-case piece letter used in SAN ("" for NoKind).
func (k PieceKind) Letter() string {
	switch k {
	case King:
		return "K"
	case Queen:
		return "Q"
	case Rook:
		return "R"
	case Bishop:
		return "B"
	case Knight:
		return "N"
	case Pawn:
		return "P"
	default:
		return ""
	}
}

// ParsePieceKind accepts a piece letter or name ("q", "queen", "N").
func ParsePieceKind(s string) (PieceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "k", "king":
		return King, true
	case "q", "queen":
		return Queen, true
	case "r", "rook":
		return Rook, true
	case "b", "bishop":
		return Bishop, true
	case "n", "knight":
		return Knight, true
	case "p", "pawn":
		return Pawn, true
	default:
		return NoKind, false
	}
}

type Piece struct {
	Color Color
	Kind  PieceKind
}

var NoPiece = Piece{}

func (p Piece) Empty() bool { return p.Kind == NoKind }

// Token is "wP", "bK", ... or "" for an empty square.
func (p Piece) Token() string {
	if p.Empty() {
		return ""
	}
	return p.Color.String() + p.Kind.Letter()
}

// Outcome uses PGN result tokens.
type Outcome string

const (
	NoOutcome Outcome = "*"
	WhiteWon  Outcome = "1-0"
	BlackWon  Outcome = "0-1"
	Drawn     Outcome = "1/2-1/2"
)

// Winner returns white | black | draw, or "" while the game is running.
func (o Outcome) Winner() string {
	switch o {
	case WhiteWon:
		return "white"
	case BlackWon:
		return "black"
	case Drawn:
		return "draw"
	default:
		return ""
	}
}

// Tally counts pieces per kind, indexed by PieceKind.
type Tally [7]int

func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

// Captured holds, per side, the pieces of that side no longer on the board.
type Captured struct {
	White Tally
	Black Tally
}

func (c Captured) Of(color Color) Tally {
	if color == Black {
		return c.Black
	}
	return c.White
}

func (c Captured) Empty() bool {
	return c.White.Total() == 0 && c.Black.Total() == 0
}

// Opening is an ECO classification of the moves played so far.
type Opening struct {
	Code  string
	Title string
}

// Destination is one legal target of a piece.
type Destination struct {
	Square  Square
	Capture bool
	Promote bool
}

// MoveRequest is an origin/destination pair with an optional promotion choice.
type MoveRequest struct {
	From      Square
	To        Square
	Promotion PieceKind
}

// LastMove describes the most recent ply.
type LastMove struct {
	From Square
	To   Square
	UCI  string
	SAN  string
}
