package app

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"scribe/api/internal/workspace"
)

// Hub fans workspace events out to connected websocket clients so the UI can
// follow mutations live.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan workspace.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan workspace.Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			var dead []*websocket.Conn
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("ws: write error: %v", err)
					dead = append(dead, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range dead {
				h.Unregister(conn)
			}
		}
	}
}

// Stop shuts the hub down and closes all client connections.
func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast queues an event for delivery. Drops the event if the buffer is
// full rather than blocking a store commit.
func (h *Hub) Broadcast(event workspace.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("ws: dropping event %s, broadcast buffer full", event)
	}
}

func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// HandleConnection drains client messages until the peer disconnects.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	defer h.Unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
