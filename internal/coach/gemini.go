package coach

import "github.com/park285/Cheese-Chess-Coach/internal/domain"

// Wire types for the generateContent REST call.

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type       string            `json:"type"`
	Format     string            `json:"format,omitempty"`
	Enum       []string          `json:"enum,omitempty"`
	Properties map[string]schema `json:"properties,omitempty"`
	Required   []string          `json:"required,omitempty"`
	Ordering   []string          `json:"propertyOrdering,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   schema  `json:"responseSchema"`
	Temperature      float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// adviceSchema constrains the reply to the Advice shape.
func adviceSchema() schema {
	evals := make([]string, 0, len(domain.Evaluations))
	for _, e := range domain.Evaluations {
		evals = append(evals, string(e))
	}
	return schema{
		Type: "OBJECT",
		Properties: map[string]schema{
			"explanation":   {Type: "STRING"},
			"suggestedMove": {Type: "STRING"},
			"evaluation":    {Type: "STRING", Format: "enum", Enum: evals},
			"funFact":       {Type: "STRING"},
		},
		Required: []string{"explanation", "evaluation"},
		Ordering: []string{"explanation", "suggestedMove", "evaluation", "funFact"},
	}
}

// text concatenates the parts of the first candidate.
func (r *generateResponse) text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out
}
