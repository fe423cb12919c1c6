package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sq(t *testing.T, s string) Square {
	t.Helper()
	v, ok := ParseSquare(s)
	if !ok {
		t.Fatalf("bad square %q", s)
	}
	return v
}

func play(t *testing.T, e Engine, p *Position, moves ...string) *Position {
	t.Helper()
	for _, mv := range moves {
		next, err := e.Move(p, MoveRequest{From: sq(t, mv[:2]), To: sq(t, mv[2:4])})
		if err != nil {
			t.Fatalf("move %s: %v", mv, err)
		}
		p = next
	}
	return p
}

func TestParseSquare(t *testing.T) {
	cases := map[string]bool{"a1": true, "H8": true, "e4": true, "i1": false, "a9": false, "": false, "e44": false}
	for in, ok := range cases {
		got, valid := ParseSquare(in)
		if valid != ok {
			t.Fatalf("ParseSquare(%q) valid=%v, want %v", in, valid, ok)
		}
		if valid && got.String() == "-" {
			t.Fatalf("ParseSquare(%q) produced invalid square", in)
		}
	}
	if s, _ := ParseSquare("e4"); s.File() != 4 || s.Rank() != 3 {
		t.Fatalf("e4 -> file %d rank %d", s.File(), s.Rank())
	}
}

func TestStart(t *testing.T) {
	e := NewEngine()
	p := e.Start()
	if p.FEN() != StartingFEN {
		t.Fatalf("FEN = %q", p.FEN())
	}
	if p.Turn() != White || p.Ply() != 0 || p.LastMove() != nil {
		t.Fatalf("unexpected start state: turn=%v ply=%d", p.Turn(), p.Ply())
	}
	if !p.Captured().Empty() || p.Over() || p.InCheck() {
		t.Fatalf("start position should be quiet")
	}
	if got := p.PieceAt(sq(t, "e1")); got != (Piece{Color: White, Kind: King}) {
		t.Fatalf("e1 = %+v", got)
	}
}

func TestMove_E4(t *testing.T) {
	e := NewEngine()
	p := play(t, e, e.Start(), "e2e4")
	if diff := cmp.Diff([]string{"e4"}, p.MovesSAN()); diff != "" {
		t.Fatalf("SAN history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e2e4"}, p.MovesUCI()); diff != "" {
		t.Fatalf("UCI history mismatch (-want +got):\n%s", diff)
	}
	if p.Turn() != Black || p.Turn().String() != "b" {
		t.Fatalf("turn = %v", p.Turn())
	}
	if !p.Captured().Empty() {
		t.Fatalf("no captures expected: %+v", p.Captured())
	}
	if p.LastSAN() != "e4" || p.LastMove().From != sq(t, "e2") {
		t.Fatalf("last move = %+v", p.LastMove())
	}
}

func TestMove_RejectionsLeavePositionUnchanged(t *testing.T) {
	e := NewEngine()
	start := e.Start()
	cases := []MoveRequest{
		{From: sq(t, "e3"), To: sq(t, "e4")}, // empty origin
		{From: sq(t, "e7"), To: sq(t, "e5")}, // wrong side
		{From: sq(t, "e2"), To: sq(t, "e5")}, // bad geometry
		{From: NoSquare, To: sq(t, "e4")},    // malformed
		{From: sq(t, "b1"), To: Square(99)},  // malformed
	}
	for _, req := range cases {
		next, err := e.Move(start, req)
		if !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%v: expected ErrIllegalMove, got %v", req, err)
		}
		if next != nil {
			t.Fatalf("%v: rejected move returned a position", req)
		}
	}
	if start.FEN() != StartingFEN || start.Ply() != 0 {
		t.Fatalf("start position mutated: %s", start.FEN())
	}
}

func TestMove_IntoCheckRejected(t *testing.T) {
	e := NewEngine()
	// bishop on e2 is pinned to the king by the rook on e8
	p, err := e.Load("4r2k/8/8/8/8/8/4B3/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := e.Move(p, MoveRequest{From: sq(t, "e2"), To: sq(t, "d3")}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("pinned bishop move should be illegal, got %v", err)
	}
}

func TestReplayReproducesPosition(t *testing.T) {
	e := NewEngine()
	p := play(t, e, e.Start(), "e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4", "f3d4")
	again, err := e.Replay(p.StartFEN(), p.MovesUCI())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if again.FEN() != p.FEN() {
		t.Fatalf("replay FEN %q != %q", again.FEN(), p.FEN())
	}
	if diff := cmp.Diff(p.MovesSAN(), again.MovesSAN()); diff != "" {
		t.Fatalf("SAN mismatch:\n%s", diff)
	}
	if p.Opening().Code == "" {
		t.Fatalf("expected an ECO label for a Sicilian line")
	}
}

func TestReplay_BadHistory(t *testing.T) {
	e := NewEngine()
	if _, err := e.Replay(StartingFEN, []string{"e2e5"}); !errors.Is(err, ErrBadHistory) {
		t.Fatalf("expected ErrBadHistory, got %v", err)
	}
	if _, err := e.Load("not a fen"); !errors.Is(err, ErrInvalidFEN) {
		t.Fatalf("expected ErrInvalidFEN, got %v", err)
	}
}

func TestUndo(t *testing.T) {
	e := NewEngine()
	start := e.Start()
	if got := e.Undo(start); got != start {
		t.Fatalf("undo on empty history must be a no-op")
	}
	p1 := play(t, e, start, "e2e4")
	p2 := play(t, e, p1, "e7e5")
	back := e.Undo(p2)
	if back.FEN() != p1.FEN() || back.Ply() != 1 {
		t.Fatalf("undo: got %q want %q", back.FEN(), p1.FEN())
	}
	if p2.Ply() != 2 {
		t.Fatalf("undo mutated its input")
	}
}

func TestCapturedTally(t *testing.T) {
	e := NewEngine()
	p := play(t, e, e.Start(), "e2e4", "d7d5", "e4d5", "d8d5")
	c := p.Captured()
	if c.White[Pawn] != 1 || c.Black[Pawn] != 1 {
		t.Fatalf("expected one pawn lost per side, got %+v", c)
	}
	if c.White.Total() != 1 || c.Black.Total() != 1 {
		t.Fatalf("unexpected totals %+v", c)
	}
	for _, kind := range CapturableKinds {
		if c.White[kind] < 0 || c.Black[kind] < 0 {
			t.Fatalf("negative tally for %v", kind)
		}
	}
}

func TestFoolsMate(t *testing.T) {
	e := NewEngine()
	p := play(t, e, e.Start(), "f2f3", "e7e5", "g2g4", "d8h4")
	if !p.Checkmate() || !p.InCheck() {
		t.Fatalf("expected checkmate, got fen %s", p.FEN())
	}
	if p.Turn() != White {
		t.Fatalf("mated side should be to move, got %v", p.Turn())
	}
	if p.Outcome() != BlackWon || p.Outcome().Winner() != "black" || p.Method() != "checkmate" {
		t.Fatalf("outcome = %s method = %s", p.Outcome(), p.Method())
	}
	if _, err := e.Move(p, MoveRequest{From: sq(t, "a2"), To: sq(t, "a3")}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("moves after mate must be rejected, got %v", err)
	}
	if got := e.LegalMoves(p, sq(t, "a2")); len(got) != 0 {
		t.Fatalf("no legal moves after mate, got %v", got)
	}
}

func TestStalemate(t *testing.T) {
	e := NewEngine()
	p, err := e.Load("k7/8/8/1Q6/8/8/8/7K w - - 0 1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p = play(t, e, p, "b5b6")
	if !p.Stalemate() || !p.Draw() || p.Checkmate() {
		t.Fatalf("expected stalemate, fen %s", p.FEN())
	}
	if p.Outcome() != Drawn {
		t.Fatalf("outcome = %s", p.Outcome())
	}
}

func TestPromotion(t *testing.T) {
	e := NewEngine()
	p, err := e.Load("8/P7/8/8/8/8/8/k6K w - - 0 1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dests := e.LegalMoves(p, sq(t, "a7"))
	if len(dests) != 1 || !dests[0].Promote {
		t.Fatalf("expected a single promotion destination, got %+v", dests)
	}

	queen, err := e.Move(p, MoveRequest{From: sq(t, "a7"), To: sq(t, "a8")})
	if err != nil {
		t.Fatalf("default promotion: %v", err)
	}
	if got := queen.PieceAt(sq(t, "a8")); got.Kind != Queen || got.Color != White {
		t.Fatalf("default promotion should queen, got %+v", got)
	}

	knight, err := e.Move(p, MoveRequest{From: sq(t, "a7"), To: sq(t, "a8"), Promotion: Knight})
	if err != nil {
		t.Fatalf("knight promotion: %v", err)
	}
	if got := knight.PieceAt(sq(t, "a8")); got.Kind != Knight {
		t.Fatalf("explicit promotion ignored, got %+v", got)
	}
}

func TestLegalMoves(t *testing.T) {
	e := NewEngine()
	start := e.Start()

	got := map[string]bool{}
	for _, d := range e.LegalMoves(start, sq(t, "b1")) {
		got[d.Square.String()] = d.Capture
	}
	if diff := cmp.Diff(map[string]bool{"a3": false, "c3": false}, got); diff != "" {
		t.Fatalf("knight moves mismatch:\n%s", diff)
	}
	if d := e.LegalMoves(start, sq(t, "e7")); len(d) != 0 {
		t.Fatalf("opponent piece must have no destinations, got %v", d)
	}
	if d := e.LegalMoves(start, sq(t, "e4")); len(d) != 0 {
		t.Fatalf("empty square must have no destinations, got %v", d)
	}

	p := play(t, e, start, "e2e4", "d7d5")
	captures := map[string]bool{}
	for _, d := range e.LegalMoves(p, sq(t, "e4")) {
		captures[d.Square.String()] = d.Capture
	}
	if !captures["d5"] {
		t.Fatalf("exd5 should be flagged as capture: %v", captures)
	}
	if c, ok := captures["e5"]; !ok || c {
		t.Fatalf("e5 should be a quiet move: %v", captures)
	}
}

func TestLoad_DerivesCheck(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		name string
		fen  string
		want bool
	}{
		{"rook on the file", "4k3/8/8/8/8/8/8/4R1K1 b - - 0 1", true},
		{"rook off the file", "4k3/8/8/8/8/8/8/3R2K1 b - - 0 1", false},
		{"pinned knight still checks", "3rk3/8/3N4/8/8/8/8/3K4 b - - 0 1", true},
		{"pawn checks white", "8/8/8/8/8/3p4/4K3/7k w - - 0 1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := e.Load(tc.fen)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if p.InCheck() != tc.want {
				t.Fatalf("InCheck = %v, want %v", p.InCheck(), tc.want)
			}
			if p.Over() {
				t.Fatalf("position should still be playable")
			}
		})
	}
}

func TestDrawClaims_Threefold(t *testing.T) {
	e := NewEngine()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	p := play(t, e, e.Start(), shuffle...)
	if claims := p.DrawClaims(); len(claims) != 0 {
		t.Fatalf("two occurrences are not claimable yet: %v", claims)
	}
	p = play(t, e, p, shuffle...)
	if diff := cmp.Diff([]string{"threefold_repetition"}, p.DrawClaims()); diff != "" {
		t.Fatalf("claims (-want +got):\n%s", diff)
	}
	if p.Over() || p.Draw() {
		t.Fatalf("a claimable draw does not end the game")
	}
}

func TestPGN(t *testing.T) {
	e := NewEngine()
	p := play(t, e, e.Start(), "f2f3", "e7e5", "g2g4", "d8h4")
	pgn, err := e.PGN(p, map[string]string{
		"Event":     "Coached game",
		"Annotator": `Say "hi"`,
		"ECO":       "",
	})
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	for _, want := range []string{
		`[Event "Coached game"]`,
		`[Result "0-1"]`,
		`[Annotator "Say \"hi\""]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("PGN missing %q:\n%s", want, pgn)
		}
	}
	for _, absent := range []string{"[ECO", "[SetUp", "[FEN"} {
		if strings.Contains(pgn, absent) {
			t.Fatalf("PGN should not contain %q:\n%s", absent, pgn)
		}
	}
	if _, err := e.PGN(nil, nil); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("nil position: %v", err)
	}
}
