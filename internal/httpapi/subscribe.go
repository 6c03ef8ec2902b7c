package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/internal/tenant"
)

// pingInterval keeps the websocket connection alive through intermediate
// proxies; writeWait bounds how long a single write may block.
const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// defaultInitialLimit and the [1, 200] clamp on initial_limit match the
// subscriber query parameters (spec §6).
const (
	defaultInitialLimit = 50
	minInitialLimit     = 1
	maxInitialLimit     = 200
)

// snapshotFrame is the initial frame sent after upgrade: the newest
// initial_limit alerts for the organization (spec §4.7).
type snapshotFrame struct {
	Type  string                 `json:"type"`
	Items []domain.SecurityAlert `json:"items"`
}

// parseInitialLimit reads the initial_limit query parameter, defaulting and
// clamping it to [1, 200] (spec §6). A missing or unparseable value falls
// back to the default rather than failing the upgrade.
func parseInitialLimit(r *http.Request) int {
	raw := r.URL.Query().Get("initial_limit")
	if raw == "" {
		return defaultInitialLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultInitialLimit
	}
	if n < minInitialLimit {
		return minInitialLimit
	}
	if n > maxInitialLimit {
		return maxInitialLimit
	}
	return n
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin upgrades are expected: the subscriber dashboard is served
	// from a different origin than this API (spec §6 CORS section already
	// allows it for plain HTTP; the check here mirrors that decision).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSubscribe upgrades the authenticated request to a websocket and
// streams the organization's alerts as they are published, grounded on
// socket_manager.py's per-connection send loop: one goroutine per
// subscriber, the broadcaster handles fan-out and dead-peer eviction.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	orgID := tenant.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("subscribe: websocket upgrade failed", "organization_id", orgID, "error", err)
		return
	}
	defer conn.Close()

	sub := s.Broadcast.Subscribe(orgID)
	defer s.Broadcast.Unsubscribe(orgID, sub)

	limit := parseInitialLimit(r)
	recent, err := s.Alerts.ListRecent(r.Context(), orgID, limit)
	if err != nil {
		s.Logger.Error("subscribe: listing recent alerts for snapshot", "organization_id", orgID, "error", err)
		return
	}
	if recent == nil {
		recent = []domain.SecurityAlert{}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshotFrame{Type: "snapshot", Items: recent}); err != nil {
		s.Logger.Debug("subscribe: snapshot write failed, closing", "organization_id", orgID, "error", err)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	// Discard any client-sent frames; the feed is push-only. Exits as soon
	// as the client closes or the connection errors.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case alert, ok := <-sub.Alerts():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(alert); err != nil {
				s.Logger.Debug("subscribe: write failed, closing", "organization_id", orgID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}
