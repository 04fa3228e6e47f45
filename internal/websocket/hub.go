package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Ledger event entities and actions.
const (
	EntityEarning    = "earning"
	EntityRedemption = "redemption"

	ActionSubmitted = "submitted"
	ActionRequested = "requested"
	ActionApproved  = "approved"
)

// Message is a ledger event pushed to subscribed clients.
type Message struct {
	Type      string         `json:"type"`
	Entity    string         `json:"entity"`
	Action    string         `json:"action"`
	AccountID int64          `json:"account_id"`
	ID        int64          `json:"id,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, accountID, id int64, extra map[string]any) Message {
	return Message{
		Type:      fmt.Sprintf("%s_%s", entity, action),
		Entity:    entity,
		Action:    action,
		AccountID: accountID,
		ID:        id,
		Extra:     extra,
	}
}

// Hub tracks connected clients and routes each event to the account it
// concerns and to every admin.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// DisconnectSession drops every client opened with sessionID. Their
// connections are closed by the write pump. It returns how many were dropped.
func (h *Hub) DisconnectSession(sessionID int64) int {
	return h.drop(func(c *Client) bool { return c.sessionID == sessionID })
}

// DisconnectAccount drops every client of accountID, whatever session opened it.
func (h *Hub) DisconnectAccount(accountID int64) int {
	return h.drop(func(c *Client) bool { return c.accountID == accountID })
}

func (h *Hub) drop(match func(*Client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if match(c) {
			delete(h.clients, c)
			close(c.send)
			n++
		}
	}
	return n
}

// Publish delivers msg to the clients of msg.AccountID and to admin clients.
func (h *Hub) Publish(msg Message) {
	h.send(msg, func(c *Client) bool {
		return c.admin || c.accountID == msg.AccountID
	})
}

func (h *Hub) send(msg Message, want func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal event", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !want(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping event", "account_id", c.accountID, "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
