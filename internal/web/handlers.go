package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Chess-Coach/internal/adapter/coachview"
	"github.com/park285/Cheese-Chess-Coach/internal/render"
	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"github.com/park285/Cheese-Chess-Coach/internal/session"
	"github.com/park285/Cheese-Chess-Coach/internal/table"
	"github.com/park285/Cheese-Chess-Coach/pkg/coachdto"
	"go.uber.org/zap"
)

const sessionCookie = "coach_session"

// sessionID returns the browser's session id, issuing a cookie when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
	if ttl := s.deps.SessionTTL; ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (*table.Table, bool) {
	tb, err := s.deps.Registry.Get(r.Context(), s.sessionID(w, r))
	if err != nil {
		s.logger.Error("coach_table_unavailable", zap.String("rid", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "table unavailable")
		return nil, false
	}
	return tb, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	applyHTMLSecurityHeaders(w.Header())
	s.sessionID(w, r)
	http.ServeFileFS(w, r, s.static, "index.html")
}

func (s *Server) withJSON(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applyAPISecurityHeaders(w.Header())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	writeJSON(w, coachdto.ErrorResponse{Error: msg})
}

// decodeBody reports false after writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func parseSquare(s string) (rules.Square, bool) {
	return rules.ParseSquare(strings.ToLower(strings.TrimSpace(s)))
}

func (s *Server) respond(w http.ResponseWriter, tb *table.Table, accepted bool, result string) {
	writeJSON(w, coachdto.GestureResponse{
		Accepted: accepted,
		Result:   result,
		View:     s.deps.Presenter.View(tb.State()),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.deps.Presenter.View(tb.State()))
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var body coachdto.ClickRequest
	if !decodeBody(w, r, &body) {
		return
	}
	sq, valid := parseSquare(body.Square)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid square")
		return
	}
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	gesture, err := tb.Click(r.Context(), sq)
	if err != nil && !errors.Is(err, rules.ErrIllegalMove) {
		s.gestureFailed(w, r, err)
		return
	}
	s.respond(w, tb, gesture != table.GestureRejected, gesture.String())
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var body coachdto.DropRequest
	if !decodeBody(w, r, &body) {
		return
	}
	from, okFrom := parseSquare(body.From)
	to, okTo := parseSquare(body.To)
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "invalid square")
		return
	}
	req := rules.MoveRequest{From: from, To: to}
	if p := strings.TrimSpace(body.Promotion); p != "" {
		kind, valid := rules.ParsePieceKind(p)
		if !valid || kind == rules.King || kind == rules.Pawn {
			writeError(w, http.StatusBadRequest, "invalid promotion choice")
			return
		}
		req.Promotion = kind
	}
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	err := tb.Drop(r.Context(), req)
	switch {
	case err == nil:
		s.respond(w, tb, true, table.GestureMoved.String())
	case errors.Is(err, rules.ErrIllegalMove):
		s.respond(w, tb, false, table.GestureRejected.String())
	default:
		s.gestureFailed(w, r, err)
	}
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	undone, err := tb.Undo(r.Context())
	if err != nil {
		s.gestureFailed(w, r, err)
		return
	}
	result := "undone"
	if !undone {
		result = "noop"
	}
	s.respond(w, tb, true, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	if err := tb.Reset(r.Context()); err != nil {
		s.gestureFailed(w, r, err)
		return
	}
	s.respond(w, tb, true, "reset")
}

func (s *Server) gestureFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("coach_gesture_failed", zap.String("rid", GetRequestID(r.Context())), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "table unavailable")
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if s.deps.Journal == nil {
		writeJSON(w, []coachdto.JournalEntry{})
		return
	}
	games, err := s.deps.Journal.Recent(r.Context(), session.HashID(id), s.deps.JournalLimit)
	if err != nil {
		s.logger.Warn("coach_journal_read_failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	writeJSON(w, coachview.ToJournal(games))
}

func (s *Server) handleBoardPNG(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	pos := tb.State().Position
	flip := r.URL.Query().Get("flip")
	data, err := s.deps.Renderer.RenderPNG(r.Context(), pos, render.Options{
		Flip:   flip == "1" || flip == "true",
		Title:  s.deps.Presenter.Title(),
		Status: s.deps.Presenter.StatusText(pos),
	})
	if err != nil {
		s.logger.Warn("coach_board_render_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
