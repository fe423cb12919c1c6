package coach

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
)

var (
	ErrEmptyReply      = errors.New("advice reply is empty")
	ErrMalformedReply  = errors.New("advice reply is not valid JSON")
	ErrMissingField    = errors.New("advice reply is missing a required field")
	ErrBadEvaluation   = errors.New("advice reply has an unknown evaluation")
	ErrNotConfigured   = errors.New("advice service credential not configured")
	ErrUpstreamBlocked = errors.New("advice request was blocked upstream")
)

// DefaultFallbackText is used when no catalog is wired.
const DefaultFallbackText = "Hmm, I'm still thinking about that one! Keep playing and I'll catch up."

// Fallback returns the neutral placeholder advice.
func Fallback(explanation string) domain.Advice {
	if strings.TrimSpace(explanation) == "" {
		explanation = DefaultFallbackText
	}
	return domain.Advice{Explanation: explanation, Evaluation: domain.EvalNeutral}
}

type adviceWire struct {
	Explanation   *string `json:"explanation"`
	Evaluation    *string `json:"evaluation"`
	SuggestedMove *string `json:"suggestedMove"`
	FunFact       *string `json:"funFact"`
}

// ParseAdvice decodes model output into Advice. Surrounding whitespace and a
// markdown code fence are tolerated; optional fields may be absent.
func ParseAdvice(raw string) (domain.Advice, error) {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return domain.Advice{}, ErrEmptyReply
	}
	var w adviceWire
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return domain.Advice{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if w.Explanation == nil || strings.TrimSpace(*w.Explanation) == "" {
		return domain.Advice{}, fmt.Errorf("%w: explanation", ErrMissingField)
	}
	if w.Evaluation == nil {
		return domain.Advice{}, fmt.Errorf("%w: evaluation", ErrMissingField)
	}
	eval, ok := domain.ParseEvaluation(*w.Evaluation)
	if !ok {
		return domain.Advice{}, fmt.Errorf("%w: %q", ErrBadEvaluation, *w.Evaluation)
	}
	return domain.Advice{
		Explanation:   strings.TrimSpace(*w.Explanation),
		Evaluation:    eval,
		SuggestedMove: trimOptional(w.SuggestedMove),
		FunFact:       trimOptional(w.FunFact),
	}, nil
}

func trimOptional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// stripFence removes a ```json ... ``` wrapper if present.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
