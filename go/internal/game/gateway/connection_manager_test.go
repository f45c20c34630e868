package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(cm *ConnectionManager, code string, queueSize int) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		SessionCode: code,
		Send:        make(chan []byte, queueSize),
		Manager:     cm,
	}
}

func TestBroadcastConcurrentWithDisconnect(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClock())

	const connCount = 1000
	conns := make([]*Connection, connCount)
	for i := range conns {
		conns[i] = newTestConnection(cm, "GAME42", 64)
		cm.registerConnection(conns[i])
	}

	event := &events.GameEvent{
		ID:          uuid.New().String(),
		SessionCode: "GAME42",
		Type:        events.EventTypeRoundOpened,
		Timestamp:   time.Now(),
		Data:        []byte(`{}`),
	}

	// Fan-out and client disconnects race in production: writePump and
	// readPump unregister on any error while Run keeps broadcasting. A send
	// on a closed Send channel would panic and take the whole host down.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 32; i++ {
			cm.handleBroadcast(BroadcastMessage{SessionCode: "GAME42", Event: event})
		}
	}()
	go func() {
		defer wg.Done()
		for _, conn := range conns {
			cm.unregisterConnection(conn)
		}
	}()
	wg.Wait()

	// Unregistering again must not double-close either.
	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}

	stats := cm.GetConnectionStats()
	assert.Equal(t, 0, stats["total_connections"])
}

// serverSideConn dials a throwaway echo endpoint and hands back the
// server-side websocket, so overflow paths can close a real socket.
func serverSideConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server side of websocket never arrived")
		return nil
	}
}

func TestSlowConnectionDroppedWithoutBlocking(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClock())

	slow := newTestConnection(cm, "GAME42", 1)
	slow.Conn = serverSideConn(t)
	fast := newTestConnection(cm, "GAME42", 64)
	cm.registerConnection(slow)
	cm.registerConnection(fast)

	event := &events.GameEvent{
		ID:          uuid.New().String(),
		SessionCode: "GAME42",
		Type:        events.EventTypeRoundOpened,
		Timestamp:   time.Now(),
		Data:        []byte(`{}`),
	}

	// Second frame overflows the slow queue; it gets dropped, not waited on.
	cm.handleBroadcast(BroadcastMessage{SessionCode: "GAME42", Event: event})
	cm.handleBroadcast(BroadcastMessage{SessionCode: "GAME42", Event: event})

	assert.Len(t, fast.Send, 2)
	stats := cm.GetConnectionStats()
	assert.Equal(t, 1, stats["total_connections"])
}
