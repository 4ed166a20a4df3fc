package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// Client is one connected player. A player may hold several connections
// (phone plus spectating tab); each gets its own send queue.
type Client struct {
	ClientID uuid.UUID
	PlayerID uuid.UUID
	Send     chan []byte

	closeOnce sync.Once
}

// NewClient creates a client with a buffered send queue.
func NewClient(playerID uuid.UUID) *Client {
	return &Client{
		ClientID: uuid.New(),
		PlayerID: playerID,
		Send:     make(chan []byte, 64),
	}
}

// Close closes the send queue exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Hub tracks connected clients and fans events out to them. It implements
// notify.Gateway: publishing never blocks, a slow client's full queue drops
// the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ClientID] = c
}

func (h *Hub) Unregister(clientID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

// IsConnected reports whether playerID has at least one live connection.
func (h *Hub) IsConnected(playerID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.PlayerID == playerID {
			return true
		}
	}
	return false
}

// PublishToPlayer delivers ev to every connection of playerID.
func (h *Hub) PublishToPlayer(playerID uuid.UUID, ev *notify.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.PlayerID != playerID {
			continue
		}
		select {
		case c.Send <- b:
		default:
			// Slow consumer; the client re-syncs via the read endpoints.
		}
	}
}

// Stop closes every connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
