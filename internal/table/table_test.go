package table

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/park285/Cheese-Chess-Coach/internal/coach"
	"github.com/park285/Cheese-Chess-Coach/internal/domain"
	"github.com/park285/Cheese-Chess-Coach/internal/journal"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
)

func sq(t *testing.T, name string) rules.Square {
	t.Helper()
	s, ok := rules.ParseSquare(name)
	if !ok {
		t.Fatalf("bad square %q", name)
	}
	return s
}

func drop(t *testing.T, tb *Table, from, to string) {
	t.Helper()
	if err := tb.Drop(context.Background(), rules.MoveRequest{From: sq(t, from), To: sq(t, to)}); err != nil {
		t.Fatalf("drop %s%s: %v", from, to, err)
	}
}

// recorder answers immediately and remembers every request.
type recorder struct {
	mu   sync.Mutex
	reqs []coach.Request
}

func (r *recorder) Advise(ctx context.Context, req coach.Request) domain.Advice {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return domain.Advice{Explanation: "nice " + req.LastMove, Evaluation: domain.EvalGood, SuggestedMove: "Nf3"}
}

func (r *recorder) requests() []coach.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]coach.Request(nil), r.reqs...)
}

func TestClick_SelectThenMove(t *testing.T) {
	adv := &recorder{}
	tb := New("s1", Deps{Advisor: adv})
	defer tb.Close()
	ctx := context.Background()

	g, err := tb.Click(ctx, sq(t, "e2"))
	if err != nil || g != GestureSelected {
		t.Fatalf("click e2 = %v, %v", g, err)
	}
	st := tb.State()
	want := map[rules.Square]Highlight{
		sq(t, "e2"): HighlightOrigin,
		sq(t, "e3"): HighlightMove,
		sq(t, "e4"): HighlightMove,
	}
	if diff := cmp.Diff(want, st.Selection.Targets); diff != "" {
		t.Fatalf("highlights (-want +got):\n%s", diff)
	}

	g, err = tb.Click(ctx, sq(t, "e4"))
	if err != nil || g != GestureMoved {
		t.Fatalf("click e4 = %v, %v", g, err)
	}
	st = tb.State()
	if st.Selection != nil {
		t.Fatalf("selection should clear after a move")
	}
	if st.Position.Turn() != rules.Black {
		t.Fatalf("turn = %v", st.Position.Turn())
	}
	if diff := cmp.Diff([]string{"e4"}, st.Position.MovesSAN()); diff != "" {
		t.Fatalf("history:\n%s", diff)
	}

	tb.Wait()
	st = tb.State()
	if st.AdvicePending || st.Advice == nil || st.Advice.Explanation != "nice e4" {
		t.Fatalf("advice not applied: %+v pending=%v", st.Advice, st.AdvicePending)
	}
	if st.Tally.Good != 1 {
		t.Fatalf("tally = %+v", st.Tally)
	}
	reqs := adv.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one advice request, got %d", len(reqs))
	}
	if reqs[0].LastMove != "e4" || reqs[0].Turn != "b" || reqs[0].FEN != st.Position.FEN() {
		t.Fatalf("unexpected request %+v", reqs[0])
	}
}

func TestClick_SelectionTransitions(t *testing.T) {
	tb := New("s1", Deps{Advisor: &recorder{}})
	defer tb.Close()
	ctx := context.Background()

	cases := []struct {
		square string
		want   Gesture
		origin string // "" for no selection afterwards
	}{
		{"e5", GestureIgnored, ""},
		{"e7", GestureIgnored, ""},
		{"a1", GestureIgnored, ""},
		{"e2", GestureSelected, "e2"},
		{"e2", GestureCleared, ""},
		{"e2", GestureSelected, "e2"},
		{"g1", GestureSelected, "g1"},
		{"h5", GestureCleared, ""},
	}
	for i, tc := range cases {
		g, err := tb.Click(ctx, sq(t, tc.square))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if g != tc.want {
			t.Fatalf("step %d click %s = %v, want %v", i, tc.square, g, tc.want)
		}
		st := tb.State()
		switch {
		case tc.origin == "" && st.Selection != nil:
			t.Fatalf("step %d: expected no selection, got %v", i, st.Selection.Origin)
		case tc.origin != "" && (st.Selection == nil || st.Selection.Origin != sq(t, tc.origin)):
			t.Fatalf("step %d: expected origin %s", i, tc.origin)
		}
	}
	if tb.State().Position.Ply() != 0 {
		t.Fatalf("no move should have been played")
	}
}

func TestDrop_Illegal(t *testing.T) {
	adv := &recorder{}
	tb := New("s1", Deps{Advisor: adv})
	defer tb.Close()
	before := tb.State()

	err := tb.Drop(context.Background(), rules.MoveRequest{From: sq(t, "e2"), To: sq(t, "e5")})
	if !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	after := tb.State()
	if after.Position.FEN() != before.Position.FEN() || after.Seq != before.Seq {
		t.Fatalf("rejected drop changed state")
	}
	tb.Wait()
	if n := len(adv.requests()); n != 0 {
		t.Fatalf("rejected drop requested advice %d times", n)
	}
}

func TestDrop_ClearsSelection(t *testing.T) {
	tb := New("s1", Deps{Advisor: &recorder{}})
	defer tb.Close()
	if _, err := tb.Click(context.Background(), sq(t, "g1")); err != nil {
		t.Fatal(err)
	}
	drop(t, tb, "d2", "d4")
	if tb.State().Selection != nil {
		t.Fatalf("drop should clear the selection")
	}
	tb.Wait()
}

func TestAdvice_StaleResultDiscarded(t *testing.T) {
	gates := map[string]chan struct{}{
		"e4": make(chan struct{}),
		"e5": make(chan struct{}),
	}
	adv := coach.Func(func(ctx context.Context, req coach.Request) domain.Advice {
		<-gates[req.LastMove]
		return domain.Advice{Explanation: "after " + req.LastMove, Evaluation: domain.EvalBad}
	})
	tb := New("s1", Deps{Advisor: adv})
	defer tb.Close()

	drop(t, tb, "e2", "e4")
	drop(t, tb, "e7", "e5")

	close(gates["e5"])
	deadline := time.Now().Add(2 * time.Second)
	for tb.State().Advice == nil {
		if time.Now().After(deadline) {
			t.Fatalf("advice for e5 never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(gates["e4"])
	tb.Wait()

	st := tb.State()
	if st.Advice == nil || st.Advice.Explanation != "after e5" {
		t.Fatalf("stale advice overwrote the latest: %+v", st.Advice)
	}
	if st.Tally.Total() != 1 {
		t.Fatalf("stale advice must not be tallied: %+v", st.Tally)
	}
}

func TestUndo(t *testing.T) {
	release := make(chan struct{})
	adv := coach.Func(func(ctx context.Context, req coach.Request) domain.Advice {
		<-release
		return domain.Advice{Explanation: "late", Evaluation: domain.EvalGood}
	})
	tb := New("s1", Deps{Advisor: adv})
	defer tb.Close()
	ctx := context.Background()

	if ok, err := tb.Undo(ctx); ok || err != nil {
		t.Fatalf("undo on start = %v, %v", ok, err)
	}

	start := tb.State().Position.FEN()
	drop(t, tb, "e2", "e4")
	afterOne := tb.State().Position.FEN()
	drop(t, tb, "e7", "e5")

	ok, err := tb.Undo(ctx)
	if !ok || err != nil {
		t.Fatalf("undo = %v, %v", ok, err)
	}
	st := tb.State()
	if st.Position.FEN() != afterOne {
		t.Fatalf("undo fen = %q, want %q", st.Position.FEN(), afterOne)
	}
	if st.Advice != nil || st.AdvicePending || st.Selection != nil {
		t.Fatalf("undo should clear advice and selection: %+v", st)
	}

	close(release)
	tb.Wait()
	if tb.State().Advice != nil {
		t.Fatalf("in-flight advice must be discarded after undo")
	}
	if _, err := tb.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if got := tb.State().Position.FEN(); got != start {
		t.Fatalf("second undo fen = %q", got)
	}
}

func TestReset(t *testing.T) {
	tb := New("s1", Deps{Advisor: &recorder{}})
	defer tb.Close()
	drop(t, tb, "e2", "e4")
	tb.Wait()
	first := tb.State()

	if err := tb.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := tb.State()
	if st.Position.FEN() != rules.StartingFEN || st.Position.Ply() != 0 {
		t.Fatalf("reset fen = %q", st.Position.FEN())
	}
	if st.GameID == first.GameID || st.GameID == "" {
		t.Fatalf("reset should start a new game id")
	}
	if st.Advice != nil || st.Tally.Total() != 0 || !st.Position.Captured().Empty() {
		t.Fatalf("reset left state behind: %+v", st)
	}
}

func TestGameOver_RecordedOnce(t *testing.T) {
	repo := journal.NewMemoryRepository()
	tb := New("s1", Deps{Advisor: &recorder{}, Journal: repo})
	defer tb.Close()

	drop(t, tb, "f2", "f3")
	drop(t, tb, "e7", "e5")
	drop(t, tb, "g2", "g4")
	drop(t, tb, "d8", "h4")
	tb.Wait()

	st := tb.State()
	if !st.Position.Checkmate() || st.Position.Turn() != rules.White {
		t.Fatalf("expected white to be mated")
	}
	err := tb.Drop(context.Background(), rules.MoveRequest{From: sq(t, "a2"), To: sq(t, "a3")})
	if !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("moves after mate must be rejected, got %v", err)
	}
	tb.Wait()

	games, err := repo.Recent(context.Background(), session.HashID("s1"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].Result != "black" || games[0].GameID != st.GameID {
		t.Fatalf("unexpected journal: %+v", games)
	}
	if got := games[0].Tally.Total(); got != 4 {
		t.Fatalf("tally should count every ply including the mate, got %d", got)
	}
}

// gatedOn holds advice for one SAN until release is closed.
func gatedOn(san string, release <-chan struct{}) coach.Func {
	return func(ctx context.Context, req coach.Request) domain.Advice {
		if req.LastMove == san {
			<-release
			return domain.Advice{Explanation: "mate", Evaluation: domain.EvalMistake}
		}
		return domain.Advice{Explanation: "ok", Evaluation: domain.EvalGood}
	}
}

func foolsMate(t *testing.T, tb *Table) {
	t.Helper()
	drop(t, tb, "f2", "f3")
	drop(t, tb, "e7", "e5")
	drop(t, tb, "g2", "g4")
	drop(t, tb, "d8", "h4")
}

func TestGameOver_RecordWaitsForFinalAdvice(t *testing.T) {
	release := make(chan struct{})
	repo := journal.NewMemoryRepository()
	tb := New("s1", Deps{Advisor: gatedOn("Qh4#", release), Journal: repo})
	defer tb.Close()
	ctx := context.Background()

	foolsMate(t, tb)
	games, _ := repo.Recent(ctx, session.HashID("s1"), 10)
	if len(games) != 0 {
		t.Fatalf("game recorded before its last advice: %+v", games)
	}

	close(release)
	tb.Wait()
	games, _ = repo.Recent(ctx, session.HashID("s1"), 10)
	if len(games) != 1 {
		t.Fatalf("expected one journaled game, got %d", len(games))
	}
	want := domain.EvalTally{Good: 3, Mistake: 1}
	if diff := cmp.Diff(want, games[0].Tally); diff != "" {
		t.Fatalf("tally (-want +got):\n%s", diff)
	}
}

func TestGameOver_StaleFinalAdviceStillRecords(t *testing.T) {
	release := make(chan struct{})
	repo := journal.NewMemoryRepository()
	tb := New("s1", Deps{Advisor: gatedOn("Qh4#", release), Journal: repo})
	defer tb.Close()
	ctx := context.Background()

	foolsMate(t, tb)
	gameID := tb.State().GameID
	if ok, err := tb.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo: %v %v", ok, err)
	}
	close(release)
	tb.Wait()

	games, _ := repo.Recent(ctx, session.HashID("s1"), 10)
	if len(games) != 1 || games[0].GameID != gameID || games[0].Method != "checkmate" {
		t.Fatalf("mated game should still be journaled: %+v", games)
	}
	// the dropped verdict is not part of the tally
	if got := games[0].Tally.Total(); got != 3 {
		t.Fatalf("tally total = %d, want 3", got)
	}
	if tb.State().Advice != nil {
		t.Fatalf("stale advice must not be shown after undo")
	}
}

func TestVersion_AdvancesOnEveryChange(t *testing.T) {
	release := make(chan struct{})
	tb := New("s1", Deps{Advisor: gatedOn("e4", release)})
	defer tb.Close()
	ctx := context.Background()

	v0 := tb.State().Version
	if _, err := tb.Click(ctx, sq(t, "e2")); err != nil {
		t.Fatal(err)
	}
	v1 := tb.State().Version
	if v1 <= v0 {
		t.Fatalf("selection should advance the version: %d -> %d", v0, v1)
	}
	if _, err := tb.Click(ctx, sq(t, "e4")); err != nil {
		t.Fatal(err)
	}
	moved := tb.State()
	if moved.Version <= v1 || !moved.AdvicePending {
		t.Fatalf("move should advance the version and leave advice pending: %+v", moved)
	}

	close(release)
	tb.Wait()
	advised := tb.State()
	if advised.Advice == nil || advised.Seq != moved.Seq {
		t.Fatalf("advice should apply without a new seq: %+v", advised)
	}
	if advised.Version <= moved.Version {
		t.Fatalf("applied advice must advance the version: %d -> %d", moved.Version, advised.Version)
	}
}

func TestSubscribe(t *testing.T) {
	tb := New("s1", Deps{Advisor: &recorder{}})
	defer tb.Close()

	ch, cancel := tb.Subscribe()
	first := <-ch
	if first.Position.Ply() != 0 {
		t.Fatalf("initial state ply = %d", first.Position.Ply())
	}
	if _, err := tb.Click(context.Background(), sq(t, "b1")); err != nil {
		t.Fatal(err)
	}
	st := <-ch
	if st.Selection == nil || st.Selection.Origin != sq(t, "b1") {
		t.Fatalf("expected selection update, got %+v", st.Selection)
	}
	if st.Highlight(sq(t, "c3")) != HighlightMove {
		t.Fatalf("c3 should be highlighted")
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	cancel()
}

func TestClosedTable(t *testing.T) {
	tb := New("s1", Deps{})
	tb.Close()
	if _, err := tb.Click(context.Background(), sq(t, "e2")); !errors.Is(err, ErrClosed) {
		t.Fatalf("click on closed table: %v", err)
	}
	ch, _ := tb.Subscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("subscribe on closed table should return a closed channel")
	}
}
