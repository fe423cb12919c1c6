package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/park285/Cheese-Chess-Coach/internal/adapter/coachview"
	"github.com/park285/Cheese-Chess-Coach/internal/journal"
	"github.com/park285/Cheese-Chess-Coach/internal/render"
	"github.com/park285/Cheese-Chess-Coach/internal/table"
	"go.uber.org/zap"
)

//go:embed static/*
var staticFiles embed.FS

const (
	maxJSONBodyBytes int64 = 64 << 10
	defaultJournal         = 10
)

type Deps struct {
	Registry     *table.Registry
	Presenter    *coachview.Presenter
	Renderer     render.BoardRenderer
	Journal      journal.Repository // optional
	Logger       *zap.Logger
	JournalLimit int
	SessionTTL   time.Duration
}

// Server is the browser-facing HTTP surface of the coach.
type Server struct {
	deps   Deps
	logger *zap.Logger
	static fs.FS

	srvMu sync.Mutex
	srv   *http.Server
}

func NewServer(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("web: registry is required")
	}
	if deps.Presenter == nil {
		deps.Presenter = coachview.NewPresenter(nil)
	}
	if deps.Renderer == nil {
		deps.Renderer = render.NewBoardRenderer()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.JournalLimit <= 0 {
		deps.JournalLimit = defaultJournal
	}
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	return &Server{deps: deps, logger: deps.Logger, static: static}, nil
}

// Listen serves until Close is called.
func (s *Server) Listen(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// no WriteTimeout: websocket streams stay open
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()
	defer func() {
		s.srvMu.Lock()
		s.srv = nil
		s.srvMu.Unlock()
	}()

	s.logger.Info("http_listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts the listener down.
func (s *Server) Close(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	root := http.NewServeMux()
	// the websocket upgrade needs the raw writer, so it skips compression
	root.HandleFunc("GET /ws", s.handleWS)
	root.Handle("/", gzhttp.GzipHandler(s.routes()))
	return RequestID(AccessLog(s.logger, root))
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("GET /api/state", s.withJSON(s.handleState))
	mux.HandleFunc("POST /api/click", s.withJSON(s.handleClick))
	mux.HandleFunc("POST /api/drop", s.withJSON(s.handleDrop))
	mux.HandleFunc("POST /api/undo", s.withJSON(s.handleUndo))
	mux.HandleFunc("POST /api/reset", s.withJSON(s.handleReset))
	mux.HandleFunc("GET /api/journal", s.withJSON(s.handleJournal))
	mux.HandleFunc("GET /api/board.png", s.handleBoardPNG)

	mux.Handle("GET /static/pieces/", http.StripPrefix("/static/pieces/", http.FileServerFS(render.PieceAssets())))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
