package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Update is one snapshot of a single torrent's download progress, broadcast
// to every connected UI client as JSON (spec.md supplemented feature: a
// progress callback surfaced over a small local websocket hub, mirroring
// the way the corpus exposes live status to a UI layer).
type Update struct {
	InfoHash       string `json:"info_hash"`
	PiecesDone     int    `json:"pieces_done"`
	PiecesTotal    int    `json:"pieces_total"`
	DownloadedByte int64  `json:"downloaded_bytes"`
	Peers          int    `json:"peers"`
	Complete       bool   `json:"complete"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub fans progress updates out to every connected websocket client. It has
// no concept of torrents or pieces itself; callers push Update values and
// the hub only serialises and broadcasts them.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates a Hub. Call Run in its own goroutine before serving HTTP.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop rather than block the whole hub.
				}
			}
			h.mu.RUnlock()
		case <-stop:
			return
		}
	}
}

// Publish serialises an Update and broadcasts it to every connected client.
func (h *Hub) Publish(u Update) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Printf("progress: marshalling update: %s", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("progress: broadcast channel full, dropping update")
	}
}

// ServeHTTP upgrades the request to a websocket and streams every
// subsequent Publish call to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("progress: upgrade failed: %s", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, 16)}
	h.register <- c
	go h.writePump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister <- c
			return
		}
	}
}
