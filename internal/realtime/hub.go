// Package realtime pushes queue state to connected browsers over
// WebSocket. Clients subscribe to rooms (one per queue, one per user)
// and the HTTP handlers broadcast already-computed payloads after each
// successful mutation.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// roomMessage is a serialized event addressed to every client in a
// room.
type roomMessage struct {
	room string
	data []byte
}

// Hub tracks connected clients and their room memberships. Register,
// unregister and broadcast flow through channels processed by Run;
// room membership is guarded by the mutex because clients join and
// leave rooms from their read pumps.
type Hub struct {
	clients map[*Client]bool

	rooms map[string]map[*Client]bool

	register chan *Client

	unregister chan *Client

	broadcast chan roomMessage

	mu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage),
	}
}

// QueueRoom is the room every viewer of a queue page joins.
func QueueRoom(queueID uint64) string {
	return fmt.Sprintf("queue-%d", queueID)
}

// UserRoom is the room a signed-in user joins for personal
// notifications.
func UserRoom(userID uint64) string {
	return fmt.Sprintf("user-%d", userID)
}

// JoinRoom adds the client to a room, creating the room on first use.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

// LeaveRoom removes the client from a room. Empty rooms are dropped.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit marshals an event envelope and queues it for every client in
// the room. Marshal failures are logged and dropped; a push that
// cannot be serialized must never fail the mutation that triggered it.
func (h *Hub) Emit(room, event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("realtime: marshal %s event: %v", event, err)
		return
	}
	h.broadcast <- roomMessage{room: room, data: data}
}

// envelope is the wire shape of every server-to-client event.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Run processes hub traffic until the process exits. Clients whose
// send buffer is full are disconnected rather than blocking the
// broadcast loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				h.mu.Lock()
				for room, clients := range h.rooms {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, room)
					}
				}
				h.mu.Unlock()
			}
		case message := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[message.room]
			for client := range clients {
				select {
				case client.send <- message.data:
				default:
					close(client.send)
					delete(clients, client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}
