package ws

import (
	"context"
	"encoding/json"
	"sync"

	"feeportal/internal/models"
)

// Client is one websocket subscription to a single order's status.
type Client struct {
	OrderID string
	UserID  uint
	Send    chan []byte
	Hub     *Hub
	mu      sync.Mutex
	closed  bool
}

func NewClient(orderID string, userID uint) *Client {
	return &Client{OrderID: orderID, UserID: userID, Send: make(chan []byte, 16)}
}

// trySend queues data unless the client is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
}

// Hub fans status updates out to the clients watching each order.
type Hub struct {
	mu      sync.RWMutex
	byOrder map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byOrder: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byOrder[c.OrderID] == nil {
		h.byOrder[c.OrderID] = make(map[*Client]struct{})
	}
	h.byOrder[c.OrderID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byOrder[c.OrderID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byOrder, c.OrderID)
		}
	}
}

func (h *Hub) clients(orderID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := h.byOrder[orderID]
	out := make([]*Client, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// StatusMessage is the frame pushed to subscribers.
type StatusMessage struct {
	Type        string                 `json:"type"`
	Transaction models.OrderWithStatus `json:"transaction"`
}

func encodeStatus(view models.OrderWithStatus) []byte {
	data, _ := json.Marshal(StatusMessage{Type: "status", Transaction: view})
	return data
}

// StatusChanged pushes view to every subscriber of the order. Subscribers
// are closed once the order reaches a terminal status.
func (h *Hub) StatusChanged(_ context.Context, view models.OrderWithStatus) {
	data := encodeStatus(view)
	for _, c := range h.clients(view.OrderID) {
		c.trySend(data)
		if view.Status.IsTerminal() {
			c.Close()
		}
	}
}

func (h *Hub) SubscriberCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byOrder[orderID])
}
