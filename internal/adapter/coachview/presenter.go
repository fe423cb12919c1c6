package coachview

import (
	"strings"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
	"github.com/park285/Cheese-Chess-Coach/internal/msgcat"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/table"
	"github.com/park285/Cheese-Chess-Coach/pkg/coachdto"
)

// Presenter turns table state into browser views. Display text comes from
// the message catalog.
type Presenter struct {
	catalog *msgcat.Catalog
}

func NewPresenter(catalog *msgcat.Catalog) *Presenter {
	if catalog == nil {
		catalog = msgcat.Default()
	}
	return &Presenter{catalog: catalog}
}

func (p *Presenter) View(st table.State) coachdto.View {
	pos := st.Position
	if pos == nil {
		return coachdto.View{Version: st.Version, GameID: st.GameID}
	}
	v := coachdto.View{
		Version:       st.Version,
		GameID:        st.GameID,
		FEN:           pos.FEN(),
		Turn:          pos.Turn().String(),
		Squares:       p.squares(st),
		Moves:         nonNil(pos.MovesSAN()),
		Captured:      toCaptured(pos.Captured()),
		Status:        p.status(pos),
		Opening:       openingLabel(pos.Opening()),
		Advice:        toAdvice(st.Advice),
		AdvicePending: st.AdvicePending,
		CanUndo:       pos.Ply() > 0,
		Tally:         toTally(st.Tally),
	}
	if lm := pos.LastMove(); lm != nil {
		v.LastMove = &coachdto.LastMove{From: lm.From.String(), To: lm.To.String(), UCI: lm.UCI, SAN: lm.SAN}
	}
	if st.Selection != nil {
		v.Selected = st.Selection.Origin.String()
	}
	if st.AdvicePending {
		v.Status.Thinking = p.catalog.RenderOr("status.thinking", nil, "Coach is thinking...")
	}
	return v
}

// Title is the board image heading.
func (p *Presenter) Title() string {
	return p.catalog.RenderOr("board.title", nil, "Chess")
}

// StatusText is the one-line game status.
func (p *Presenter) StatusText(pos *rules.Position) string {
	if pos == nil {
		return ""
	}
	return p.status(pos).Text
}

func (p *Presenter) squares(st table.State) []coachdto.SquareView {
	pos := st.Position
	board := pos.Board()
	var from, to rules.Square = rules.NoSquare, rules.NoSquare
	if lm := pos.LastMove(); lm != nil {
		from, to = lm.From, lm.To
	}
	out := make([]coachdto.SquareView, 0, 64)
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			sq := rules.NewSquare(file, rank)
			piece := board[sq]
			out = append(out, coachdto.SquareView{
				Name:      sq.String(),
				Piece:     piece.Token(),
				Dark:      sq.Dark(),
				Highlight: string(st.Highlight(sq)),
				Last:      sq == from || sq == to,
				Check:     pos.InCheck() && piece.Kind == rules.King && piece.Color == pos.Turn(),
			})
		}
	}
	return out
}

type sideData struct{ Side string }

func (p *Presenter) status(pos *rules.Position) coachdto.Status {
	s := coachdto.Status{
		Check:     pos.InCheck(),
		Checkmate: pos.Checkmate(),
		Stalemate: pos.Stalemate(),
		Draw:      pos.Draw(),
		Over:      pos.Over(),
		Result:    pos.Outcome().Winner(),
		Method:    pos.Method(),
		Claims:    pos.DrawClaims(),
	}
	side := pos.Turn().Name()
	switch {
	case s.Checkmate:
		winner := pos.Turn().Other().Name()
		s.Text = p.catalog.RenderOr("status.checkmate", struct{ Winner string }{winner}, "Checkmate! "+winner+" wins.")
	case s.Stalemate:
		s.Text = p.catalog.RenderOr("status.stalemate", nil, "Stalemate.")
	case s.Over:
		method := strings.ReplaceAll(s.Method, "_", " ")
		s.Text = p.catalog.RenderOr("status.draw", struct{ Method string }{method}, "Draw.")
	case s.Check:
		s.Text = p.catalog.RenderOr("status.check", sideData{side}, side+" is in check!")
	default:
		s.Text = p.catalog.RenderOr("status.to_move", sideData{side}, side+" to move")
	}
	if len(s.Claims) > 0 {
		method := strings.ReplaceAll(s.Claims[0], "_", " ")
		s.Claim = p.catalog.RenderOr("status.claim", struct{ Method string }{method}, "A draw by "+method+" can be claimed.")
	}
	return s
}

func openingLabel(op rules.Opening) string {
	return strings.TrimSpace(op.Code + " " + op.Title)
}

func toCaptured(c rules.Captured) coachdto.Captured {
	return coachdto.Captured{
		White: tokens(rules.White, c.White),
		Black: tokens(rules.Black, c.Black),
	}
}

func tokens(color rules.Color, t rules.Tally) []string {
	out := []string{}
	for _, kind := range rules.CapturableKinds {
		tok := rules.Piece{Color: color, Kind: kind}.Token()
		for i := 0; i < t[kind]; i++ {
			out = append(out, tok)
		}
	}
	return out
}

func toAdvice(a *domain.Advice) *coachdto.Advice {
	if a == nil {
		return nil
	}
	return &coachdto.Advice{
		Explanation:   a.Explanation,
		Evaluation:    string(a.Evaluation),
		SuggestedMove: a.SuggestedMove,
		FunFact:       a.FunFact,
	}
}

func toTally(t domain.EvalTally) coachdto.Tally {
	return coachdto.Tally{Good: t.Good, Neutral: t.Neutral, Bad: t.Bad, Mistake: t.Mistake}
}

// ToJournal converts archived games for the history panel.
func ToJournal(games []*domain.GameRecord) []coachdto.JournalEntry {
	out := make([]coachdto.JournalEntry, 0, len(games))
	for _, g := range games {
		if g == nil {
			continue
		}
		out = append(out, coachdto.JournalEntry{
			GameID:     g.GameID,
			Result:     g.Result,
			Method:     g.Method,
			Moves:      nonNil(append([]string(nil), g.MovesSAN...)),
			PGN:        g.PGN,
			EndedAt:    g.EndedAt,
			DurationMS: g.Duration.Milliseconds(),
			Tally:      toTally(g.Tally),
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
