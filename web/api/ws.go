package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowsmith/flowsmith/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same host; other origins are fine for a
	// read-only event stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub manages WebSocket connections and fans pipeline events out to them
type WSHub struct {
	clients    map[*websocket.Conn]chan domain.Event
	broadcast  chan domain.Event
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan domain.Event
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]chan domain.Event),
		broadcast:  make(chan domain.Event),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub loop
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c.send
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if send, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for conn, send := range h.clients {
				select {
				case send <- ev:
				default:
					delete(h.clients, conn)
					close(send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *WSHub) Broadcast(ev domain.Event) {
	h.broadcast <- ev
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("api: websocket upgrade: %v", err)
			return
		}

		client := &wsClient{conn: conn, send: make(chan domain.Event, 16)}
		s.wsHub.register <- client

		// Reader: we never expect client messages, but reading surfaces
		// close frames.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					s.wsHub.unregister <- conn
					conn.Close()
					return
				}
			}
		}()

		go func() {
			for ev := range client.send {
				if err := conn.WriteJSON(ev); err != nil {
					s.wsHub.unregister <- conn
					conn.Close()
					return
				}
			}
			conn.Close()
		}()
	}
}
