package coachdto

import "time"

type ClickRequest struct {
	Square string `json:"square"`
}

type DropRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"` // q | r | b | n
}

// GestureResponse answers click, drop, undo and reset calls. A rejected move
// is reported through Accepted only.
type GestureResponse struct {
	Accepted bool   `json:"accepted"`
	Result   string `json:"result"`
	View     View   `json:"view"`
}

// JournalEntry is one finished game of the current session.
type JournalEntry struct {
	GameID     string    `json:"gameId"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Moves      []string  `json:"moves"`
	PGN        string    `json:"pgn"`
	EndedAt    time.Time `json:"endedAt"`
	DurationMS int64     `json:"durationMs"`
	Tally      Tally     `json:"tally"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
