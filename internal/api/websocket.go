package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS layer
		return true
	},
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientSendSize = 256
)

// wsMessage is the envelope every stream frame uses
type wsMessage struct {
	Type    string      `json:"type"` // "state" or "log"
	Payload interface{} `json:"payload"`
	Time    time.Time   `json:"time"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans state and log frames out to every connected client
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

// NewWSHub creates the hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run processes hub events until the context is cancelled
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client, drop the frame rather than stall
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastJSON queues one typed frame for every client. Never blocks.
func (h *WSHub) BroadcastJSON(msgType string, payload interface{}) {
	data, err := json.Marshal(wsMessage{Type: msgType, Payload: payload, Time: time.Now().UTC()})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientSendSize)}
	s.hub.register <- client

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection; the stream is one-way, reads only
// exist to detect disconnects.
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
