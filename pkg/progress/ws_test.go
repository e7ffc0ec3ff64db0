package progress

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialGateway(t *testing.T, bus *Bus) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(NewGateway(bus, nil))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestJoinReceivesEvents(t *testing.T) {
	bus := NewBus(nil)
	conn := dialGateway(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "join:conversation",
		"data": map[string]any{"conversationId": "conv-1", "username": "alice"},
	}))

	joined := readJSON(t, conn)
	assert.Equal(t, "joined", joined["type"])
	data := joined["data"].(map[string]any)
	assert.Equal(t, "conv-1", data["conversationId"])
	assert.NotEmpty(t, data["timestamp"])

	// The subscription is registered once joined acks.
	require.Eventually(t, func() bool {
		return bus.SubscriberCount("conv-1") == 1
	}, time.Second, 10*time.Millisecond)

	bus.Publish(Event{
		Type:           EventQueryProgress,
		ConversationID: "conv-1",
		QueryID:        "q-1",
		Data:           map[string]any{"progress": 42},
	})

	event := readJSON(t, conn)
	assert.Equal(t, EventQueryProgress, event["type"])
	assert.Equal(t, "conv-1", event["conversationId"])
	assert.Equal(t, "q-1", event["queryId"])
}

func TestLeaveStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	conn := dialGateway(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "join:conversation",
		"data": map[string]any{"conversationId": "conv-1"},
	}))
	readJSON(t, conn) // joined

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "leave:conversation",
		"data": map[string]any{"conversationId": "conv-1"},
	}))

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("conv-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestJoinWithoutConversationID(t *testing.T) {
	bus := NewBus(nil)
	conn := dialGateway(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "join:conversation",
		"data": map[string]any{},
	}))

	msg := readJSON(t, conn)
	assert.Equal(t, EventError, msg["type"])
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	bus := NewBus(nil)
	conn := dialGateway(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "join:conversation",
		"data": map[string]any{"conversationId": "conv-1"},
	}))
	readJSON(t, conn)
	require.Eventually(t, func() bool {
		return bus.SubscriberCount("conv-1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("conv-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
