package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message tells the devices of one scope that something changed and they
// should reload. It carries no data beyond what changed.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

func NewMessage(entity, action, id string) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
	}
}

// Hub tracks connected clients by scope key and fans messages out to one
// scope at a time.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.key]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.key] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.key]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.key)
	}
}

// Disconnect drops userID's clients from scopeKey, e.g. after the user left
// or was removed from a household. Messages already queued are still
// delivered before the connection closes. It returns how many were dropped.
func (h *Hub) Disconnect(scopeKey, userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients[scopeKey] {
		if c.user == userID {
			h.remove(c)
			n++
		}
	}
	if n > 0 {
		h.logger.Info("disconnected clients", "scope", scopeKey, "user_id", userID, "count", n)
	}
	return n
}

// Broadcast sends msg to every client of scopeKey. A client whose buffer is
// full misses the message.
func (h *Hub) Broadcast(scopeKey string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[scopeKey] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, dropping message", "scope", scopeKey, "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
