package table

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Chess-Coach/internal/coach"
	"github.com/park285/Cheese-Chess-Coach/internal/domain"
	"github.com/park285/Cheese-Chess-Coach/internal/journal"
	"github.com/park285/Cheese-Chess-Coach/internal/obslog"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("table closed")

const (
	defaultAdviceTimeout = 20 * time.Second
	storeTimeout         = 3 * time.Second
	journalTimeout       = 5 * time.Second
)

// Gesture is the outcome of a click.
type Gesture int

const (
	GestureIgnored Gesture = iota
	GestureSelected
	GestureCleared
	GestureMoved
	GestureRejected
)

func (g Gesture) String() string {
	switch g {
	case GestureSelected:
		return "selected"
	case GestureCleared:
		return "cleared"
	case GestureMoved:
		return "moved"
	case GestureRejected:
		return "rejected"
	default:
		return "ignored"
	}
}

type Highlight string

const (
	HighlightOrigin  Highlight = "origin"
	HighlightMove    Highlight = "move"
	HighlightCapture Highlight = "capture"
)

// Selection is the click-to-move origin and its highlighted destinations.
type Selection struct {
	Origin  rules.Square
	Targets map[rules.Square]Highlight
}

func (s *Selection) clone() *Selection {
	if s == nil {
		return nil
	}
	cp := &Selection{Origin: s.Origin, Targets: make(map[rules.Square]Highlight, len(s.Targets))}
	for k, v := range s.Targets {
		cp.Targets[k] = v
	}
	return cp
}

// State is a copy of a table at one point in time. Seq stamps advice
// requests; Version grows with every observable change, advice included, so
// clients can drop views older than the one they show.
type State struct {
	SessionID     string
	GameID        string
	Position      *rules.Position
	Selection     *Selection
	Advice        *domain.Advice
	AdvicePending bool
	Seq           uint64
	Version       uint64
	Tally         domain.EvalTally
	StartedAt     time.Time
}

// Highlight returns the selection style of sq, or "" when unmarked.
func (s State) Highlight(sq rules.Square) Highlight {
	if s.Selection == nil {
		return ""
	}
	return s.Selection.Targets[sq]
}

type Deps struct {
	Engine        rules.Engine
	Advisor       coach.Advisor
	Store         session.Store      // optional
	Journal       journal.Repository // optional
	Logger        *zap.Logger
	AdviceTimeout time.Duration
	Now           func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Engine == nil {
		d.Engine = rules.NewEngine()
	}
	if d.Advisor == nil {
		d.Advisor = coach.Func(func(context.Context, coach.Request) domain.Advice {
			return coach.Fallback("")
		})
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.AdviceTimeout <= 0 {
		d.AdviceTimeout = defaultAdviceTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Table is one player's board: position, click selection and latest advice.
// Gestures are applied in lock order; advice arrives on its own goroutine and
// is kept only if no gesture advanced the sequence in the meantime.
type Table struct {
	id     string
	deps   Deps
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	gameID    string
	pos       *rules.Position
	selection *Selection
	advice    *domain.Advice
	pending   bool
	seq       uint64
	version   uint64
	tally     domain.EvalTally
	recorded  bool
	startedAt time.Time
	touched   time.Time

	// finished games wait for the advice on their last move, keyed by seq
	finishing map[uint64]finishedGame

	subs    map[int]chan State
	nextSub int
}

type finishedGame struct {
	pos  *rules.Position
	meta journal.GameMeta
}

// New starts a table on the standard starting position.
func New(sessionID string, deps Deps) *Table {
	t := newTable(sessionID, deps)
	t.resetLocked()
	return t
}

// Restore rebuilds a table from a stored snapshot by replaying its moves.
func Restore(snap *session.Snapshot, deps Deps) (*Table, error) {
	if snap == nil || strings.TrimSpace(snap.SessionID) == "" {
		return nil, session.ErrEmptySessionID
	}
	t := newTable(snap.SessionID, deps)
	pos, err := t.deps.Engine.Replay(snap.StartFEN, snap.Moves)
	if err != nil {
		t.cancel()
		return nil, err
	}
	t.pos = pos
	t.gameID = snap.GameID
	if t.gameID == "" {
		t.gameID = uuid.NewString()
	}
	if snap.Advice != nil {
		a := *snap.Advice
		t.advice = &a
	}
	t.seq = snap.AdviceSeq
	// the broadcast after the last save went one past the stored version
	t.version = snap.Version + 1
	t.tally = snap.Tally
	t.recorded = snap.Recorded
	t.startedAt = snap.StartedAt
	if t.startedAt.IsZero() {
		t.startedAt = t.deps.Now()
	}
	return t, nil
}

func newTable(sessionID string, deps Deps) *Table {
	deps = deps.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	hash := session.HashID(sessionID)
	return &Table{
		id:        sessionID,
		deps:      deps,
		logger:    deps.Logger.With(obslog.Session(hash)),
		base:      base,
		cancel:    cancel,
		subs:      make(map[int]chan State),
		finishing: make(map[uint64]finishedGame),
		touched:   deps.Now(),
	}
}

func (t *Table) ID() string { return t.id }

func (t *Table) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// LastActive is the time of the last gesture or state read by a gesture.
func (t *Table) LastActive() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.touched
}

// Click drives the select-then-move gesture sequence.
func (t *Table) Click(ctx context.Context, sq rules.Square) (Gesture, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return GestureIgnored, ErrClosed
	}
	t.touched = t.deps.Now()
	if !sq.Valid() {
		return GestureIgnored, nil
	}

	if sel := t.selection; sel != nil {
		if sq == sel.Origin {
			t.selection = nil
			t.broadcastLocked()
			return GestureCleared, nil
		}
		if hl, ok := sel.Targets[sq]; ok && hl != HighlightOrigin {
			if err := t.attemptLocked(ctx, rules.MoveRequest{From: sel.Origin, To: sq}); err != nil {
				return GestureRejected, err
			}
			return GestureMoved, nil
		}
		// anything else abandons the selection and may start a new one
		t.selection = nil
		gesture := GestureCleared
		if t.selectLocked(sq) {
			gesture = GestureSelected
		}
		t.broadcastLocked()
		return gesture, nil
	}

	if t.selectLocked(sq) {
		t.broadcastLocked()
		return GestureSelected, nil
	}
	return GestureIgnored, nil
}

// Drop submits a dragged move directly. A rejected drop leaves the position
// untouched and returns rules.ErrIllegalMove.
func (t *Table) Drop(ctx context.Context, req rules.MoveRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.touched = t.deps.Now()
	t.selection = nil
	return t.attemptLocked(ctx, req)
}

// Undo takes back one ply. It reports false when there was nothing to undo.
func (t *Table) Undo(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrClosed
	}
	t.touched = t.deps.Now()
	if t.pos.Ply() == 0 {
		return false, nil
	}
	t.pos = t.deps.Engine.Undo(t.pos)
	t.selection = nil
	t.advice = nil
	t.pending = false
	t.seq++
	t.persistLocked(ctx)
	t.broadcastLocked()
	return true, nil
}

// Reset starts a new game with a fresh id.
func (t *Table) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.touched = t.deps.Now()
	t.resetLocked()
	t.persistLocked(ctx)
	t.broadcastLocked()
	return nil
}

// Subscribe returns a channel that receives the current state and then every
// change. Slow readers only see the latest state.
func (t *Table) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.stateLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Wait blocks until in-flight advice and journal calls have finished.
func (t *Table) Wait() { t.wg.Wait() }

// Close stops background work and closes subscriber channels.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

func (t *Table) resetLocked() {
	t.pos = t.deps.Engine.Start()
	t.gameID = uuid.NewString()
	t.selection = nil
	t.advice = nil
	t.pending = false
	t.seq++
	t.tally = domain.EvalTally{}
	t.recorded = false
	t.startedAt = t.deps.Now()
}

// selectLocked marks sq as origin when it holds a piece of the side to move
// with at least one legal destination.
func (t *Table) selectLocked(sq rules.Square) bool {
	piece := t.pos.PieceAt(sq)
	if piece.Empty() || piece.Color != t.pos.Turn() {
		return false
	}
	dests := t.deps.Engine.LegalMoves(t.pos, sq)
	if len(dests) == 0 {
		return false
	}
	sel := &Selection{Origin: sq, Targets: make(map[rules.Square]Highlight, len(dests)+1)}
	sel.Targets[sq] = HighlightOrigin
	for _, d := range dests {
		if d.Capture {
			sel.Targets[d.Square] = HighlightCapture
		} else {
			sel.Targets[d.Square] = HighlightMove
		}
	}
	t.selection = sel
	return true
}

func (t *Table) attemptLocked(ctx context.Context, req rules.MoveRequest) error {
	next, err := t.deps.Engine.Move(t.pos, req)
	t.selection = nil
	if err != nil {
		t.logger.Debug("coach_move_rejected",
			zap.String("from", req.From.String()),
			zap.String("to", req.To.String()),
			zap.Error(err),
		)
		t.broadcastLocked()
		return err
	}

	t.pos = next
	t.advice = nil
	t.pending = true
	t.seq++
	if next.Over() && !t.recorded {
		t.recorded = true
		t.finishing[t.seq] = finishedGame{pos: next, meta: journal.GameMeta{
			GameID:    t.gameID,
			SessionID: t.id,
			StartedAt: t.startedAt,
			EndedAt:   t.deps.Now(),
			Tally:     t.tally,
		}}
	}
	t.requestAdvice(t.seq, adviceRequest(next))
	t.persistLocked(ctx)
	t.broadcastLocked()
	return nil
}

func adviceRequest(pos *rules.Position) coach.Request {
	last := pos.LastSAN()
	if last == "" {
		last = coach.NoMove
	}
	op := pos.Opening()
	return coach.Request{
		FEN:        pos.FEN(),
		LastMove:   last,
		Turn:       pos.Turn().String(),
		Opening:    strings.TrimSpace(op.Code + " " + op.Title),
		MoveNumber: pos.MoveNumber(),
	}
}

func (t *Table) requestAdvice(seq uint64, req coach.Request) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(t.base, t.deps.AdviceTimeout)
		defer cancel()
		advice := t.deps.Advisor.Advise(ctx, req)
		t.applyAdvice(seq, advice)
	}()
}

// applyAdvice keeps advice only while seq is current. A game that ended on
// seq is journaled here either way; its tally counts the final verdict only
// when that verdict was applied.
func (t *Table) applyAdvice(seq uint64, advice domain.Advice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := !t.closed && seq == t.seq
	if current {
		t.advice = &advice
		t.pending = false
		t.tally.Add(advice.Evaluation)
	}
	if fin, ok := t.finishing[seq]; ok {
		delete(t.finishing, seq)
		if current {
			fin.meta.Tally = t.tally
		}
		t.recordLocked(fin)
	}
	if !current {
		if !t.closed {
			t.logger.Debug("coach_advice_stale", zap.Uint64("seq", seq), zap.Uint64("current", t.seq))
		}
		return
	}
	t.persistLocked(t.base)
	t.broadcastLocked()
}

func (t *Table) recordLocked(fin finishedGame) {
	if t.deps.Journal == nil {
		return
	}
	rec, err := journal.NewRecord(t.deps.Engine, fin.pos, fin.meta)
	if err != nil {
		t.logger.Warn("coach_game_record_failed", zap.String("game", fin.meta.GameID), zap.Error(err))
		return
	}
	t.recordAsync(rec)
}

func (t *Table) recordAsync(rec *domain.GameRecord) {
	if rec == nil || t.deps.Journal == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(t.base), journalTimeout)
		defer cancel()
		id, err := t.deps.Journal.Insert(ctx, rec)
		switch {
		case errors.Is(err, journal.ErrDuplicateGame):
			t.logger.Info("coach_game_already_recorded", zap.String("game", rec.GameID))
		case err != nil:
			t.logger.Warn("coach_game_record_failed", zap.String("game", rec.GameID), zap.Error(err))
		default:
			t.logger.Info("coach_game_recorded",
				zap.Int64("id", id),
				zap.String("game", rec.GameID),
				zap.String("result", rec.Result),
				zap.String("method", rec.Method),
				zap.Int("plies", len(rec.MovesUCI)),
			)
		}
	}()
}

func (t *Table) persistLocked(ctx context.Context) {
	if t.deps.Store == nil {
		return
	}
	snap := &session.Snapshot{
		SessionID: t.id,
		GameID:    t.gameID,
		StartFEN:  t.pos.StartFEN(),
		Moves:     t.pos.MovesUCI(),
		AdviceSeq: t.seq,
		Version:   t.version,
		Tally:     t.tally,
		Recorded:  t.recorded,
		StartedAt: t.startedAt,
		UpdatedAt: t.deps.Now(),
	}
	if t.advice != nil {
		a := *t.advice
		snap.Advice = &a
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := t.deps.Store.Save(sctx, snap); err != nil {
		t.logger.Warn("coach_session_save_failed", zap.Error(err))
	}
}

func (t *Table) stateLocked() State {
	st := State{
		SessionID:     t.id,
		GameID:        t.gameID,
		Position:      t.pos,
		Selection:     t.selection.clone(),
		AdvicePending: t.pending,
		Seq:           t.seq,
		Version:       t.version,
		Tally:         t.tally,
		StartedAt:     t.startedAt,
	}
	if t.advice != nil {
		a := *t.advice
		st.Advice = &a
	}
	return st
}

// broadcastLocked marks a new version and pushes it to subscribers. Every
// observable change goes through here.
func (t *Table) broadcastLocked() {
	t.version++
	if len(t.subs) == 0 {
		return
	}
	st := t.stateLocked()
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
