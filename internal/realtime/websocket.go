package realtime

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// Clients never send anything meaningful; keep frames tiny.
	maxMessageSize = 512
)

// Handler upgrades HTTP requests to websocket connections and streams hub
// events to them. The channel is server-to-client only: anything a client
// sends is read and discarded.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds the /socket endpoint. allowedOrigins follows CORS_ORIGIN;
// "*" or an empty list accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	h := &Handler{hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.hub.Subscribe()
	if err != nil {
		http.Error(w, "real-time channel unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.hub.Unsubscribe(sub)
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.logger.Info("client connected", slog.String("remoteAddr", r.RemoteAddr))

	done := make(chan struct{})
	var closeOnce sync.Once
	stop := func() { closeOnce.Do(func() { close(done) }) }

	go h.writeLoop(conn, sub, done, stop)
	h.readLoop(conn, stop)

	h.hub.Unsubscribe(sub)
	conn.Close()
	h.logger.Info("client disconnected", slog.String("remoteAddr", r.RemoteAddr))
}

// readLoop keeps the read deadline alive through pongs and returns when the
// peer goes away or the writer gives up.
func (h *Handler) readLoop(conn *websocket.Conn, stop func()) {
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only goroutine that writes data frames to conn.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}, stop func()) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer stop()

	for {
		select {
		case frame, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed: tell the client politely, then the read loop
				// sees the close and returns.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
