package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWS pushes a fresh view whenever the caller's table changes. Client
// messages are ignored; gestures go through the JSON API.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.table(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Debug("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := tb.Subscribe()
	defer cancel()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case st, open := <-updates:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "table closed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, s.deps.Presenter.View(st))
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("ws_write_failed", zap.Error(err))
				}
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
