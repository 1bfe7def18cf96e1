package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/refreshkit/types"
)

// wsClient is one WebSocket subscriber. Its send queue decouples the
// refresh loop from the connection: Record enqueues without blocking and
// the writer goroutine drains at whatever pace the peer can take.
type wsClient struct {
	conn        *websocket.Conn
	send        chan types.Update
	done        chan struct{}
	connectedAt time.Time
	closeOnce   sync.Once
}

// handleWS upgrades the connection, replays the current snapshot into the
// client's queue, and hands the connection to its reader and writer.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		s.logger.Debug("WebSocket upgrade rejected",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}

	// Registration and the snapshot read share one critical section, so the
	// replay and the live stream line up with no gap and no duplicate.
	s.stateMu.Lock()
	if s.closing {
		s.stateMu.Unlock()
		_ = conn.Close()
		return
	}
	replay := make([]types.Update, 0, len(s.snapshot))
	for _, update := range s.snapshot {
		replay = append(replay, update)
	}
	c := &wsClient{
		conn: conn,
		// Sized so the replay always fits, with the configured headroom
		// for live updates on top
		send:        make(chan types.Update, len(replay)+s.cfg.sendBuffer()),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	for _, update := range replay {
		c.send <- update
	}
	s.clients[c] = struct{}{}
	clientCount := len(s.clients)
	shutdown := s.shutdown
	runCtx := s.runCtx
	s.wg.Add(2)
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.recordConnection(clientCount)
	}
	s.logger.Debug("WebSocket client connected",
		"remote", conn.RemoteAddr(),
		"replayed", len(replay),
		"clients", clientCount)

	go s.writePump(runCtx, c, shutdown)
	go s.readPump(c)
}

// writePump owns the connection's write side: queued updates, keepalive
// pings, and the close frame all leave through here.
func (s *Server) writePump(ctx context.Context, c *wsClient, shutdown <-chan struct{}) {
	defer s.wg.Done()
	defer s.unregister(c)

	ticker := time.NewTicker(s.cfg.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case update := <-c.send:
			data, err := json.Marshal(update)
			if err != nil {
				s.logger.Error("Failed to encode update",
					"tier", update.Tier,
					"target", update.Target,
					"error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		case <-shutdown:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
			return
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains and discards client frames. The read loop is what
// surfaces pongs, close frames, and dead peers; its exit tears the
// client down.
func (s *Server) readPump(c *wsClient) {
	defer s.wg.Done()
	defer s.unregister(c)

	// A client that misses two consecutive pings is considered gone
	pongWait := 2 * s.cfg.pingInterval()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// unregister removes one client exactly once, whatever path got it there:
// peer close, write failure, keepalive timeout, or server stop.
func (s *Server) unregister(c *wsClient) {
	c.closeOnce.Do(func() {
		s.stateMu.Lock()
		delete(s.clients, c)
		clientCount := len(s.clients)
		s.stateMu.Unlock()

		close(c.done)
		_ = c.conn.Close()

		if s.metrics != nil {
			s.metrics.recordDisconnection(clientCount)
		}
		s.logger.Debug("WebSocket client disconnected",
			"remote", c.conn.RemoteAddr(),
			"connected_for", time.Since(c.connectedAt))
	})
}

// checkOrigin is the upgrade origin policy: non-browser clients (no Origin
// header) and same-host browsers are always allowed; anything else must
// appear in AllowedOrigins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return s.originAllowed(origin)
}

// originAllowed reports whether an origin is in the configured allowlist.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
