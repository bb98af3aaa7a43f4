package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"wanwatch/internal/api"
	"wanwatch/internal/model"
)

const writeWait = 10 * time.Second

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
		},
	}
}

// handleStream pushes a fresh collection cycle every stream interval until the
// client goes away.
func (s *Server) handleStream(c echo.Context) error {
	up := s.upgrader()
	ws, err := up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// The client never sends; reading only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	for cycle := uint64(1); ; cycle++ {
		msg := api.StreamMessage{Cycle: cycle}
		records, err := s.neighbors(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			msg.Error = err.Error()
		}
		msg.Neighbors = records
		if msg.Neighbors == nil {
			msg.Neighbors = []model.NeighborRecord{}
		}

		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(msg); err != nil {
			s.log.Debug("websocket closed", zap.Error(err))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
