package coachdto

// View is everything the browser needs to draw one table.
type View struct {
	Version       uint64       `json:"version"` // grows per change; older views are stale
	GameID        string       `json:"gameId"`
	FEN           string       `json:"fen"`
	Turn          string       `json:"turn"` // "w" | "b"
	Squares       []SquareView `json:"squares"`
	Moves         []string     `json:"moves"` // SAN, play order
	LastMove      *LastMove    `json:"lastMove,omitempty"`
	Captured      Captured     `json:"captured"`
	Status        Status       `json:"status"`
	Opening       string       `json:"opening,omitempty"`
	Selected      string       `json:"selected,omitempty"`
	Advice        *Advice      `json:"advice,omitempty"`
	AdvicePending bool         `json:"advicePending"`
	CanUndo       bool         `json:"canUndo"`
	Tally         Tally        `json:"tally"`
}

// SquareView is one board square in display order (a8 first, h1 last).
type SquareView struct {
	Name      string `json:"name"`
	Piece     string `json:"piece,omitempty"` // "wK", "bP", ...
	Dark      bool   `json:"dark"`
	Highlight string `json:"highlight,omitempty"` // origin | move | capture
	Last      bool   `json:"last,omitempty"`
	Check     bool   `json:"check,omitempty"`
}

type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
	UCI  string `json:"uci"`
	SAN  string `json:"san"`
}

// Captured lists captured piece tokens per side, most valuable first.
type Captured struct {
	White []string `json:"white"`
	Black []string `json:"black"`
}

type Status struct {
	Check     bool     `json:"check"`
	Checkmate bool     `json:"checkmate"`
	Stalemate bool     `json:"stalemate"`
	Draw      bool     `json:"draw"`
	Over      bool     `json:"over"`
	Result    string   `json:"result,omitempty"` // white | black | draw
	Method    string   `json:"method,omitempty"`
	Claims    []string `json:"claims,omitempty"` // draws the side to move may claim
	Claim     string   `json:"claim,omitempty"`
	Text      string   `json:"text"`
	Thinking  string   `json:"thinking,omitempty"`
}

type Advice struct {
	Explanation   string `json:"explanation"`
	Evaluation    string `json:"evaluation"`
	SuggestedMove string `json:"suggestedMove,omitempty"`
	FunFact       string `json:"funFact,omitempty"`
}

type Tally struct {
	Good    int `json:"good"`
	Neutral int `json:"neutral"`
	Bad     int `json:"bad"`
	Mistake int `json:"mistake"`
}
