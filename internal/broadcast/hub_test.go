package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, snapshots SnapshotSource) (*Hub, string) {
	t.Helper()

	hub := NewHub(snapshots)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	return message
}

func TestMarshalEnvelope(t *testing.T) {
	payload, err := Marshal(EventStatsUpdate, map[string]string{"team_id": "alpha"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stats_update","data":{"team_id":"alpha"}}`, string(payload))
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := startHub(t, nil)

	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	message, err := Marshal(EventStatsUpdate, map[string]string{"team_id": "alpha"})
	require.NoError(t, err)
	hub.Broadcast(message)

	assert.Equal(t, message, readMessage(t, first))
	assert.Equal(t, message, readMessage(t, second))
}

func TestSnapshotReplayPrecedesLiveUpdates(t *testing.T) {
	snapshotA, err := Marshal(EventStatsUpdate, map[string]string{"team_id": "alpha"})
	require.NoError(t, err)
	snapshotB, err := Marshal(EventStatsUpdate, map[string]string{"team_id": "beta"})
	require.NoError(t, err)

	hub, url := startHub(t, func() [][]byte {
		return [][]byte{snapshotA, snapshotB}
	})

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	live, err := Marshal(EventStatsUpdate, map[string]string{"team_id": "gamma"})
	require.NoError(t, err)
	hub.Broadcast(live)

	assert.Equal(t, snapshotA, readMessage(t, conn))
	assert.Equal(t, snapshotB, readMessage(t, conn))
	assert.Equal(t, live, readMessage(t, conn))
}

func TestDisconnectedClientIsForgotten(t *testing.T) {
	hub, url := startHub(t, nil)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Broadcasting into an empty hub is a no-op, not an error.
	hub.Broadcast([]byte(`{"event":"stats_update","data":null}`))
}

func TestConnectAfterShutdownDoesNotHang(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	// The surviving client's connection gets closed rather than leaving its
	// read loop parked on the unregister channel.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// A late connection must be turned away instead of blocking the handler.
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { late.Close() })
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	// No Run loop draining the queue; once it fills, further updates must be
	// dropped rather than stall the caller.
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast([]byte("update"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
}
