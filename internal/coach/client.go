package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/Cheese-Chess-Coach/internal/domain"
	"github.com/park285/Cheese-Chess-Coach/internal/msgcat"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// NoMove is sent as the last move for the initial position.
const NoMove = "none"

// Request is the position context for one advice call.
type Request struct {
	FEN        string
	LastMove   string // SAN, or NoMove
	Turn       string // "w" or "b"
	Opening    string
	MoveNumber int
}

// Advisor produces coaching for a position. Implementations never fail:
// errors are replaced by fallback advice.
type Advisor interface {
	Advise(ctx context.Context, req Request) domain.Advice
}

// Func adapts a plain function to Advisor.
type Func func(ctx context.Context, req Request) domain.Advice

func (f Func) Advise(ctx context.Context, req Request) domain.Advice { return f(ctx, req) }

// Client calls the Gemini generateContent endpoint with a JSON response schema.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *fasthttp.Client
	catalog *msgcat.Catalog
	logger  *zap.Logger

	defaultTimeout time.Duration
	temperature    float64
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(u), "/"); s != "" {
			c.baseURL = s
		}
	}
}

func WithModel(m string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(m); s != "" {
			c.model = s
		}
	}
}

func WithCatalog(cat *msgcat.Catalog) Option {
	return func(c *Client) { c.catalog = cat }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the fasthttp client (tests dial an in-memory listener).
func WithHTTPClient(h *fasthttp.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        "https://generativelanguage.googleapis.com",
		model:          "gemini-2.5-flash",
		apiKey:         strings.TrimSpace(apiKey),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 20 * time.Second,
		temperature:    0.7,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		c.catalog = msgcat.Default()
	}
	return c
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

// Advise never returns an error; any failure yields the fallback advice.
func (c *Client) Advise(ctx context.Context, req Request) domain.Advice {
	start := time.Now()
	advice, err := c.advise(ctx, req)
	if err != nil {
		c.logger.Warn("coach_advice_fallback",
			zap.Error(err),
			zap.String("last_move", req.LastMove),
			zap.String("turn", req.Turn),
			zap.Duration("elapsed", time.Since(start)),
		)
		return c.fallback()
	}
	c.logger.Debug("coach_advice",
		zap.String("last_move", req.LastMove),
		zap.String("evaluation", string(advice.Evaluation)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return advice
}

func (c *Client) fallback() domain.Advice {
	return Fallback(c.catalog.RenderOr("coach.fallback", nil, DefaultFallbackText))
}

func (c *Client) advise(ctx context.Context, req Request) (domain.Advice, error) {
	if !c.Enabled() {
		return domain.Advice{}, ErrNotConfigured
	}
	body, err := c.buildRequest(req)
	if err != nil {
		return domain.Advice{}, err
	}
	var resp generateResponse
	if err := c.doJSON(ctx, c.endpoint(), body, &resp); err != nil {
		return domain.Advice{}, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return domain.Advice{}, fmt.Errorf("%w: %s", ErrUpstreamBlocked, resp.PromptFeedback.BlockReason)
	}
	return ParseAdvice(resp.text())
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

type promptData struct {
	FEN        string
	LastMove   string
	Turn       string
	TurnName   string
	Opening    string
	MoveNumber int
}

func (c *Client) buildRequest(req Request) (*generateRequest, error) {
	last := strings.TrimSpace(req.LastMove)
	if last == "" {
		last = c.catalog.RenderOr("coach.none_move", nil, NoMove)
	}
	turnName := "White"
	if strings.EqualFold(strings.TrimSpace(req.Turn), "b") {
		turnName = "Black"
	}
	moveNumber := req.MoveNumber
	if moveNumber <= 0 {
		moveNumber = 1
	}
	persona, err := c.catalog.Render("coach.persona", nil)
	if err != nil {
		return nil, fmt.Errorf("render persona: %w", err)
	}
	prompt, err := c.catalog.Render("coach.prompt", promptData{
		FEN:        strings.TrimSpace(req.FEN),
		LastMove:   last,
		Turn:       strings.ToLower(strings.TrimSpace(req.Turn)),
		TurnName:   turnName,
		Opening:    strings.TrimSpace(req.Opening),
		MoveNumber: moveNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	return &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: persona}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   adviceSchema(),
			Temperature:      c.temperature,
		},
	}, nil
}

// doJSON performs a single POST; advice calls are not retried.
// fasthttp only knows deadlines, so cancellation is watched here and the
// abandoned request finishes in the background before its buffers are released.
func (c *Client) doJSON(ctx context.Context, target string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(target)
	req.Header.SetContentType("application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.SetBody(payload)

	done := make(chan error, 1)
	deadline := c.computeDeadline(ctx)
	go func() { done <- c.http.DoDeadline(req, resp, deadline) }()

	select {
	case <-ctx.Done():
		go func() {
			<-done
			release()
		}()
		return ctx.Err()
	case err := <-done:
		defer release()
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("advice api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
