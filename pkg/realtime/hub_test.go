package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.Serve(w, r, "user-1"))
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubCoalescesEvents(t *testing.T) {
	var count atomic.Int32
	hub := NewHub(HubConfig{Debounce: 20 * time.Millisecond, OnClientCount: func(n int) { count.Store(int32(n)) }})
	defer hub.Close()

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), count.Load())

	publisher := NewLocalPublisher(hub)
	require.NoError(t, publisher.Publish(context.Background(), ChangeEvent{Table: TableDetails, Action: "INSERT"}))
	require.NoError(t, publisher.Publish(context.Background(), ChangeEvent{Table: TableRecords, Action: "UPDATE"}))
	require.NoError(t, publisher.Publish(context.Background(), ChangeEvent{Table: TableDetails, Action: "INSERT"}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "sync", frame.Type)
	assert.Equal(t, []string{TableDetails, TableRecords}, frame.Tables)
}

func TestHubDebounceWaitsForQuietPeriod(t *testing.T) {
	hub := NewHub(HubConfig{Debounce: 50 * time.Millisecond})
	defer hub.Close()
	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	frames := make(chan Frame, 16)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if json.Unmarshal(raw, &frame) == nil {
				frames <- frame
			}
		}
	}()

	burstEnd := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(burstEnd) {
		hub.Notify(ChangeEvent{Table: TableDetails, Action: "INSERT"})
		time.Sleep(20 * time.Millisecond)
	}
	assert.Empty(t, frames, "no frame while events keep arriving")

	select {
	case frame := <-frames:
		assert.Equal(t, []string{TableDetails}, frame.Tables)
	case <-time.After(time.Second):
		t.Fatal("expected a trailing sync frame")
	}
	select {
	case <-frames:
		t.Fatal("expected exactly one frame after the burst")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHubIgnoresEventsWithoutTable(t *testing.T) {
	hub := NewHub(HubConfig{Debounce: time.Millisecond})
	defer hub.Close()
	hub.Notify(ChangeEvent{})
	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Nil(t, hub.timer)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ams.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "/ws/sync", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://ams.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
