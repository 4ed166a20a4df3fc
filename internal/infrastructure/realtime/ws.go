package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PresenceHandler receives connection lifecycle changes for a match the
// player is attached to. The match service implements it.
type PresenceHandler interface {
	HandleDisconnect(ctx context.Context, matchID, playerID uuid.UUID) error
	HandleReconnect(ctx context.Context, matchID, playerID uuid.UUID) error
}

// WSHandler upgrades client connections and feeds hub events to them.
// Actions travel over the HTTP API; the socket is the push channel and the
// presence signal.
type WSHandler struct {
	hub      *Hub
	presence PresenceHandler
	logger   zerolog.Logger
}

func NewWSHandler(hub *Hub, presence PresenceHandler, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		presence: presence,
		logger:   logger.With().Str("service", "realtime").Logger(),
	}
}

// ServeHTTP handles GET /ws?playerId=...&matchId=...
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(r.URL.Query().Get("playerId"))
	if err != nil {
		http.Error(w, "missing or invalid playerId", http.StatusBadRequest)
		return
	}
	var matchID uuid.UUID
	if raw := r.URL.Query().Get("matchId"); raw != "" {
		matchID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid matchId", http.StatusBadRequest)
			return
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := NewClient(playerID)
	h.hub.Register(client)

	if matchID != uuid.Nil {
		if err := h.presence.HandleReconnect(r.Context(), matchID, playerID); err != nil {
			h.logger.Warn().Err(err).
				Str("match_id", matchID.String()).
				Str("player_id", playerID.String()).
				Msg("reconnect handling failed")
		}
	}

	go h.writeLoop(ws, client)
	h.readLoop(ws)

	h.hub.Unregister(client.ClientID)
	_ = ws.Close()

	// Another tab may still be attached; only a fully absent player
	// counts as disconnected.
	if matchID != uuid.Nil && !h.hub.IsConnected(playerID) {
		if err := h.presence.HandleDisconnect(context.Background(), matchID, playerID); err != nil {
			h.logger.Warn().Err(err).
				Str("match_id", matchID.String()).
				Str("player_id", playerID.String()).
				Msg("disconnect handling failed")
		}
	}
}

func (h *WSHandler) writeLoop(ws *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}
