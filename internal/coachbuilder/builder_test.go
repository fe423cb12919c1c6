package coachbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-Chess-Coach/internal/config"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		HTTPAddr:      ":0",
		GeminiModel:   config.DefaultGeminiModel,
		GeminiBaseURL: config.DefaultGeminiBaseURL,
		AdviceTimeout: time.Second,
		SessionTTL:    time.Hour,
		JournalLimit:  5,
	}
}

func TestNew_InMemory(t *testing.T) {
	d, err := New(context.Background(), baseConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if _, ok := d.Store.(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", d.Store)
	}
	if d.Advisor.Enabled() {
		t.Fatalf("advisor should be disabled without a key")
	}
	if d.Server == nil || d.Registry == nil || d.Journal == nil {
		t.Fatalf("incomplete wiring: %+v", d)
	}
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.GeminiAPIKey = "k"

	d, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := d.Store.(*session.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", d.Store)
	}
	if !d.Advisor.Enabled() {
		t.Fatalf("advisor should be enabled with a key")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := baseConfig()
	cfg.RedisURL = "http://not-redis"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected an error for a non-redis url")
	}
}
