package coachbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/Cheese-Chess-Coach/internal/adapter/coachview"
	"github.com/park285/Cheese-Chess-Coach/internal/coach"
	"github.com/park285/Cheese-Chess-Coach/internal/config"
	"github.com/park285/Cheese-Chess-Coach/internal/journal"
	"github.com/park285/Cheese-Chess-Coach/internal/msgcat"
	"github.com/park285/Cheese-Chess-Coach/internal/render"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
	"github.com/park285/Cheese-Chess-Coach/internal/table"
	"github.com/park285/Cheese-Chess-Coach/internal/web"
	"go.uber.org/zap"
)

const startupTimeout = 5 * time.Second

// Deps is the wired application. Close releases everything New opened.
type Deps struct {
	Catalog  *msgcat.Catalog
	Engine   rules.Engine
	Advisor  *coach.Client
	Store    session.Store
	Journal  journal.Repository
	Registry *table.Registry
	Server   *web.Server

	closers []func() error
}

// New wires the coach. Redis and Postgres are optional: without REDIS_URL
// sessions live in memory, without DATABASE_URL the journal does.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (_ *Deps, err error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	// Catalog
	d.Catalog, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d.Engine = rules.NewEngine()

	// Advice client
	d.Advisor = coach.NewClient(cfg.GeminiAPIKey,
		coach.WithBaseURL(cfg.GeminiBaseURL),
		coach.WithModel(cfg.GeminiModel),
		coach.WithTimeout(cfg.AdviceTimeout),
		coach.WithCatalog(d.Catalog),
		coach.WithLogger(logger.Named("coach")),
	)
	if !d.Advisor.Enabled() {
		logger.Warn("advice_disabled", zap.String("reason", "GEMINI_API_KEY not set; fallback advice only"))
	}

	sctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// Session store (Redis optional)
	if cfg.RedisURL != "" {
		rs, derr := session.Dial(sctx, cfg.RedisURL, cfg.SessionTTL)
		if derr != nil {
			return nil, fmt.Errorf("init session store: %w", derr)
		}
		d.closers = append(d.closers, rs.Close)
		d.Store = rs
		logger.Info("session_store", zap.String("backend", "redis"))
	} else {
		d.Store = session.NewMemoryStore(cfg.SessionTTL)
		logger.Info("session_store", zap.String("backend", "memory"))
	}

	// Journal (Postgres optional)
	if cfg.DatabaseURL != "" {
		db, oerr := sql.Open("postgres", cfg.DatabaseURL)
		if oerr != nil {
			return nil, fmt.Errorf("open postgres: %w", oerr)
		}
		d.closers = append(d.closers, db.Close)
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
		if perr := db.PingContext(sctx); perr != nil {
			return nil, fmt.Errorf("ping postgres: %w", perr)
		}
		if serr := journal.EnsureSchema(sctx, db); serr != nil {
			return nil, fmt.Errorf("journal schema: %w", serr)
		}
		d.Journal = journal.NewRepository(db)
		logger.Info("journal", zap.String("backend", "postgres"))
	} else {
		d.Journal = journal.NewMemoryRepository()
		logger.Info("journal", zap.String("backend", "memory"))
	}

	d.Registry = table.NewRegistry(table.Deps{
		Engine:        d.Engine,
		Advisor:       d.Advisor,
		Store:         d.Store,
		Journal:       d.Journal,
		Logger:        logger.Named("table"),
		AdviceTimeout: cfg.AdviceTimeout,
	}, cfg.SessionTTL)

	d.Server, err = web.NewServer(web.Deps{
		Registry:     d.Registry,
		Presenter:    coachview.NewPresenter(d.Catalog),
		Renderer:     render.NewBoardRenderer(),
		Journal:      d.Journal,
		Logger:       logger.Named("http"),
		JournalLimit: cfg.JournalLimit,
		SessionTTL:   cfg.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init web server: %w", err)
	}
	return d, nil
}

// Close stops live tables first so their last writes reach the stores.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Registry != nil {
		d.Registry.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
