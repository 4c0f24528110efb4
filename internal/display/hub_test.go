package display

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/testutil"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsLatestOnConnect(t *testing.T) {
	testutil.CaptureLogs(t)

	latest := &watercolumn.Snapshot{Seq: 9, EnsembleNumber: 90}
	hub := NewHub(func() *watercolumn.Snapshot { return latest })
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, 90, msg.Data.EnsembleNumber)
}

func TestHubBroadcast(t *testing.T) {
	testutil.CaptureLogs(t)

	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	snap := &watercolumn.Snapshot{
		Seq:     1,
		Record:  "$RTIAWC,5,0.5,10,0.7,0,4,1\n",
		Average: watercolumn.Average{AvgVel: 0.5, AvgDir: 10, MaxVel: 0.7, MaxBin: 4},
	}
	require.NoError(t, hub.Emit(context.Background(), snap))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, snap.Record, msg.Data.Record)
		assert.Equal(t, snap.Average, msg.Data.Average)
	}
}

func TestHubRemovesClosedClients(t *testing.T) {
	testutil.CaptureLogs(t)

	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// emitting with no clients is fine
	assert.NoError(t, hub.Emit(context.Background(), &watercolumn.Snapshot{Seq: 2}))
}

func TestHubDropsSlowClient(t *testing.T) {
	testutil.CaptureLogs(t)

	hub := NewHub(nil)
	// a registered client with no write pump never drains its buffer
	c := &client{id: "stuck", send: make(chan []byte, 1)}
	hub.clients[c.id] = c

	ctx := context.Background()
	require.NoError(t, hub.Emit(ctx, &watercolumn.Snapshot{Seq: 1}))
	assert.Equal(t, 1, hub.ClientCount())
	require.NoError(t, hub.Emit(ctx, &watercolumn.Snapshot{Seq: 2}))
	assert.Equal(t, 0, hub.ClientCount())

	_, ok := <-c.send
	assert.True(t, ok, "buffered message survives")
	_, ok = <-c.send
	assert.False(t, ok, "channel closed after removal")
}
