package domain

import (
	"strings"
	"time"
)

// Evaluation is the coach's one-word verdict on the last move.
type Evaluation string

const (
	EvalGood    Evaluation = "good"
	EvalNeutral Evaluation = "neutral"
	EvalBad     Evaluation = "bad"
	EvalMistake Evaluation = "mistake"
)

// Evaluations lists the accepted values in schema order.
var Evaluations = []Evaluation{EvalGood, EvalNeutral, EvalBad, EvalMistake}

func ParseEvaluation(s string) (Evaluation, bool) {
	e := Evaluation(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Evaluations {
		if e == v {
			return e, true
		}
	}
	return "", false
}

// Advice is one coaching reply. SuggestedMove and FunFact are optional.
type Advice struct {
	Explanation   string     `json:"explanation"`
	Evaluation    Evaluation `json:"evaluation"`
	SuggestedMove string     `json:"suggestedMove,omitempty"`
	FunFact       string     `json:"funFact,omitempty"`
}

// EvalTally counts the verdicts received during one game.
type EvalTally struct {
	Good    int `json:"good"`
	Neutral int `json:"neutral"`
	Bad     int `json:"bad"`
	Mistake int `json:"mistake"`
}

func (t *EvalTally) Add(e Evaluation) {
	switch e {
	case EvalGood:
		t.Good++
	case EvalBad:
		t.Bad++
	case EvalMistake:
		t.Mistake++
	default:
		t.Neutral++
	}
}

func (t EvalTally) Total() int {
	return t.Good + t.Neutral + t.Bad + t.Mistake
}

// GameRecord is a finished game as archived in the journal.
type GameRecord struct {
	ID          int64
	GameID      string
	SessionHash string
	Result      string // white | black | draw
	Method      string
	MovesUCI    []string
	MovesSAN    []string
	PGN         string
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Tally       EvalTally
}
