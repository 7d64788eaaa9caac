// Package ws streams committed step summaries to websocket observers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/gorilla/websocket"

	"aitown/internal/app/ports"
)

const (
	writeWait   = 5 * time.Second
	readWait    = 60 * time.Second
	clientQueue = 64
)

// SubscribeMsg narrows a client to one world. Clients that never send one
// receive every world.
type SubscribeMsg struct {
	Type    string `json:"type"`
	WorldID string `json:"world_id"`
}

type StepMsg struct {
	Type string            `json:"type"`
	Step ports.StepSummary `json:"step"`
}

type client struct {
	id    string
	out   chan []byte
	world atomic.Value
}

func (c *client) wants(worldID string) bool {
	w, _ := c.world.Load().(string)
	return w == "" || w == worldID
}

type Hub struct {
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[string]*client{},
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StepCommitted never blocks the engine: a client whose queue is full misses
// the step.
func (h *Hub) StepCommitted(ctx context.Context, s ports.StepSummary) {
	b, err := json.Marshal(StepMsg{Type: "STEP", Step: s})
	if err != nil {
		hlog.CtxWarnf(ctx, "ws: encode step: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(s.WorldID) {
			continue
		}
		select {
		case c.out <- b:
		default:
		}
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{id: fmt.Sprintf("O%d", h.nextID.Add(1)), out: make(chan []byte, clientQueue)}
		c.world.Store(r.URL.Query().Get("world_id"))
		h.mu.Lock()
		h.clients[c.id] = c
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, c.id)
			h.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "SUBSCRIBE" {
				continue
			}
			c.world.Store(sub.WorldID)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}
