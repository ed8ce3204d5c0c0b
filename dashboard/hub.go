package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fkdmshk/agv-simulation/logging"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub fans simulation frames out to every connected dashboard.
type Hub struct {
	Log logging.Logger

	// OnClients, when set, is called with the client count after every
	// connect and disconnect.
	OnClients func(n int)

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{Log: log, clients: map[*websocket.Conn]bool{}}
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	h.add(conn)

	go func() {
		defer h.remove(conn)
		// the dashboard never sends; reading detects the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast writes v as JSON to every client. Clients whose write fails are
// dropped.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	var dropped int
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(v); err != nil {
			h.Log.Debug(context.Background(), "dropping websocket client", logging.Err(err))
			c.Close()
			delete(h.clients, c)
			dropped++
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		h.notify(n)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	h.notify(0)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.notify(n)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if ok {
		h.notify(n)
	}
}

func (h *Hub) notify(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}
