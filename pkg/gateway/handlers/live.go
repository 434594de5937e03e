package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ruralmed/ruralmed/pkg/gateway/config"
	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/lifecycle"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/protocol"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/session"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/sessions"
	"github.com/ruralmed/ruralmed/pkg/gateway/metrics"
	"github.com/ruralmed/ruralmed/pkg/gateway/mw"
)

// LiveHandler upgrades /ws/live-consultation connections and runs one
// consultation session per connection.
type LiveHandler struct {
	Config       config.Config
	Connector    extraction.Connector
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, reqID, http.StatusMethodNotAllowed, "invalid_request_error", "method_not_allowed", "method not allowed", "")
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeErrorJSON(w, reqID, http.StatusServiceUnavailable, "overloaded_error", "draining", "gateway is draining", "")
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, reqID, http.StatusForbidden, "permission_error", "origin_forbidden", "origin is not allowed", "Origin")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		wsConn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}
	if h.Config.LiveWSReadTimeout > 0 {
		_ = wsConn.SetReadDeadline(time.Now().Add(h.Config.LiveWSReadTimeout))
		wsConn.SetPongHandler(func(string) error {
			return wsConn.SetReadDeadline(time.Now().Add(h.Config.LiveWSReadTimeout))
		})
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionID := uuid.NewString()
	conn := &liveConn{ws: wsConn, writeTimeout: h.Config.LiveWSWriteTimeout}

	s, err := session.New(session.Dependencies{
		ID:                 sessionID,
		Conn:               conn,
		Connector:          h.Connector,
		Logger:             logger,
		Metrics:            h.Metrics,
		MaxAudioFrameBytes: h.Config.LiveMaxAudioFrameBytes,
		MaxDuration:        h.Config.LiveMaxSessionDuration,
		HandshakeTimeout:   h.Config.HandshakeTimeout,
	})
	if err != nil {
		logger.Error("build consultation session", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.Config.LiveWSPingInterval > 0 {
		go conn.pingLoop(ctx, h.Config.LiveWSPingInterval)
	}
	if h.LiveSessions != nil {
		unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
			Cancel: func() {
				cancel()
				_ = conn.Close()
			},
			Notify: func(message string) error {
				return conn.WriteJSON(protocol.NewContent(message))
			},
		})
		defer unregister()
	}

	if err := s.Run(ctx); err != nil {
		logger.Warn("consultation session failed", "session_id", sessionID, "error", err)
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.Config.CORSAllowedOrigins["*"]; ok {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// liveConn adapts a gorilla connection to the session's ClientConn. Writes
// are serialized so shutdown notices never interleave with the outbound
// pump's frames.
type liveConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func (c *liveConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *liveConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteJSON(v)
}

func (c *liveConn) Close() error {
	return c.ws.Close()
}

// pingLoop keeps NAT/proxy paths alive during long silent stretches. Control
// frames may be written concurrently with data frames, so no mutex is needed.
func (c *liveConn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(interval)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
