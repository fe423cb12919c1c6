package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultHTTPAddr      = ":8080"
)

// AppConfig is read once from the process environment.
// GeminiAPIKey is a secret: never log or render it.
type AppConfig struct {
	HTTPAddr string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	AdviceTimeout time.Duration

	RedisURL    string
	DatabaseURL string

	SessionTTL   time.Duration
	JournalLimit int
	MessagesDir  string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:      DefaultHTTPAddr,
		GeminiModel:   DefaultGeminiModel,
		GeminiBaseURL: DefaultGeminiBaseURL,
		AdviceTimeout: 20 * time.Second,
		SessionTTL:    24 * time.Hour,
		JournalLimit:  10,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}

	// GEMINI_API_KEY 우선, 없으면 API_KEY
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
		cfg.GeminiModel = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); v != "" {
		cfg.GeminiBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("COACH_ADVICE_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdviceTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("COACH_SESSION_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("COACH_JOURNAL_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JournalLimit = n
		}
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	u, err := url.Parse(cfg.GeminiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("GEMINI_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("GEMINI_BASE_URL must be an http(s) URL")
	}
	if u.Host == "" {
		return nil, errors.New("GEMINI_BASE_URL host is required")
	}

	return cfg, nil
}

// AdviceEnabled reports whether a credential for the advice service is present.
func (c *AppConfig) AdviceEnabled() bool {
	return c != nil && c.GeminiAPIKey != ""
}
