package notifyapi

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// StreamConfig tunes the websocket stream. Zero values use the defaults.
type StreamConfig struct {
	// AllowedOrigins lists accepted Origin headers. Empty means same origin only.
	AllowedOrigins []string
	PongWait       time.Duration // default 60s
	WriteWait      time.Duration // default 10s
}

type streamHandler struct {
	stream     Streamer
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
	logger     *slog.Logger
}

func newStreamHandler(stream Streamer, cfg StreamConfig, log *slog.Logger) *streamHandler {
	h := &streamHandler{
		stream:    stream,
		pongWait:  60 * time.Second,
		writeWait: 10 * time.Second,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if cfg.PongWait > 0 {
		h.pongWait = cfg.PongWait
	}
	if cfg.WriteWait > 0 {
		h.writeWait = cfg.WriteWait
	}
	h.pingPeriod = h.pongWait * 9 / 10
	if len(cfg.AllowedOrigins) > 0 {
		origins := slices.Clone(cfg.AllowedOrigins)
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}
	return h
}

// ServeHTTP upgrades the request and writes the user's events as JSON
// text frames until the client leaves or the server shuts down.
func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	// Subscribe before the handshake completes so no event published after
	// the client connects is missed.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := h.stream.Subscribe(ctx, userID)
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "websocket upgrade failed",
			logger.Component("stream"),
			logger.UserID(userID),
			logger.Error(err),
		)
		return
	}
	defer conn.Close()

	h.logger.LogAttrs(ctx, slog.LevelDebug, "stream opened",
		logger.Component("stream"),
		logger.UserID(userID),
	)

	go h.readPump(conn, cancel)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Receive():
			if !ok {
				h.close(conn, websocket.CloseGoingAway, "stream closed")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(msg.Data); err != nil {
				h.logger.LogAttrs(ctx, slog.LevelDebug, "stream write failed",
					logger.Component("stream"),
					logger.UserID(userID),
					logger.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			h.close(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// readPump discards client frames and keeps the read deadline fresh on
// pongs. It cancels the stream when the connection drops.
func (h *streamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *streamHandler) close(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeWait))
}
