package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/service"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn).Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForRoom(t *testing.T, hub *Hub, room string, members int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.rooms[room])
		hub.mu.Unlock()
		if n == members {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members", room, members)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubDeliversToQueueRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := newTestServer(t, hub)

	viewer := dial(t, srv)
	require.NoError(t, viewer.WriteJSON(map[string]interface{}{"action": "joinQueueRoom", "queueId": 7}))
	waitForRoom(t, hub, QueueRoom(7), 1)

	hub.Emit(QueueRoom(7), EventQueueUpdated, map[string]string{"name": "Dinner"})

	env := readEnvelope(t, viewer)
	assert.Equal(t, EventQueueUpdated, env.Event)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Dinner", data["name"])
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := newTestServer(t, hub)

	inRoom := dial(t, srv)
	outside := dial(t, srv)
	require.NoError(t, inRoom.WriteJSON(map[string]interface{}{"action": "joinQueueRoom", "queueId": 1}))
	require.NoError(t, outside.WriteJSON(map[string]interface{}{"action": "joinQueueRoom", "queueId": 2}))
	waitForRoom(t, hub, QueueRoom(1), 1)
	waitForRoom(t, hub, QueueRoom(2), 1)

	hub.Emit(QueueRoom(1), EventQueueUpdated, map[string]string{"name": "Lunch"})

	env := readEnvelope(t, inRoom)
	assert.Equal(t, EventQueueUpdated, env.Event)

	outside.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := outside.ReadMessage()
	assert.Error(t, err, "client in another room must not receive the event")
}

func TestHubLeaveRoomStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := newTestServer(t, hub)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "joinUserRoom", "userId": 42}))
	waitForRoom(t, hub, UserRoom(42), 1)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "leaveUserRoom", "userId": 42}))
	waitForRoom(t, hub, UserRoom(42), 0)

	hub.Emit(UserRoom(42), EventUserCalled, UserCalledPayload{EntryID: 1, QueueID: 1, Position: 3})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestQueueDeletedUserVariant(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := newTestServer(t, hub)

	viewer := dial(t, srv)
	require.NoError(t, viewer.WriteJSON(map[string]interface{}{"action": "joinQueueRoom", "queueId": 3}))
	waitForRoom(t, hub, QueueRoom(3), 1)

	queued := dial(t, srv)
	require.NoError(t, queued.WriteJSON(map[string]interface{}{"action": "joinUserRoom", "userId": 100}))
	waitForRoom(t, hub, UserRoom(100), 1)

	NewNotifier(hub).QueueDeleted(service.DeletedQueue{
		Queue:         model.Queue{ID: 3, Name: "Dinner"},
		Restaurant:    model.Restaurant{Name: "Mama Rosa"},
		ActiveUserIDs: []uint64{100},
	})

	roomEnv := readEnvelope(t, viewer)
	assert.Equal(t, EventQueueDeleted, roomEnv.Event)
	roomMsg := roomEnv.Data.(map[string]interface{})["message"].(string)
	assert.Equal(t, `The queue "Dinner" at Mama Rosa has been closed.`, roomMsg)

	userEnv := readEnvelope(t, queued)
	assert.Equal(t, EventQueueDeleted, userEnv.Event)
	userMsg := userEnv.Data.(map[string]interface{})["message"].(string)
	assert.Equal(t, roomMsg+" You have been removed from the queue.", userMsg)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := newTestServer(t, hub)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "joinQueueRoom", "queueId": 5}))
	waitForRoom(t, hub, QueueRoom(5), 1)

	conn.Close()
	waitForRoom(t, hub, QueueRoom(5), 0)
}
