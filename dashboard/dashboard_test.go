package dashboard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeDashboard(t *testing.T) {
	mux := http.NewServeMux()
	SetupHandlers(mux, NewHub(nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/charts/factory.png")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type counter struct {
	mu sync.Mutex
	n  []int
}

func (c *counter) record(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = append(c.n, n)
}

func (c *counter) seen(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.n {
		if v == n {
			return true
		}
	}
	return false
}

func (c *counter) last() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.n) == 0 {
		return -1
	}
	return c.n[len(c.n)-1]
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	c := &counter{}
	hub.OnClients = c.record

	mux := http.NewServeMux()
	SetupHandlers(mux, hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.seen(2) }, time.Second, 10*time.Millisecond)

	hub.Broadcast(map[string]any{"step": 3, "phase": "factory"})

	for _, conn := range []*websocket.Conn{a, b} {
		var got map[string]any
		conn.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, float64(3), got["step"])
		assert.Equal(t, "factory", got["phase"])
	}

	a.Close()
	require.Eventually(t, func() bool { return c.last() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Clients())

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
	assert.Equal(t, 0, c.last())
}

func TestHubDropsClientWhenWriteFails(t *testing.T) {
	hub := NewHub(nil)
	c := &counter{}
	hub.OnClients = c.record

	// registered without a read loop, so only Broadcast can notice the dead socket
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.add(conn)
		conns <- conn
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var server *websocket.Conn
	select {
	case server = <-conns:
	case <-time.After(time.Second):
		t.Fatal("client was not registered")
	}
	require.Equal(t, 1, hub.Clients())
	require.Equal(t, 1, c.last())

	require.NoError(t, server.NetConn().Close())
	hub.Broadcast(map[string]any{"step": 1})

	assert.Equal(t, 0, hub.Clients())
	assert.Equal(t, 0, c.last())
}
