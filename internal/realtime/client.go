package realtime

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 512
)

// Client is one WebSocket connection. Outbound messages are buffered
// on send and drained by writePump; readPump handles the room
// subscription commands the browser sends.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
}

// Start registers the client and runs the pumps. Blocks until the
// connection drops; the caller owns the HTTP handler goroutine.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

// clientCommand is what browsers send to manage their subscriptions.
type clientCommand struct {
	Action  string `json:"action"`
	QueueID uint64 `json:"queueId,omitempty"`
	UserID  uint64 `json:"userId,omitempty"`
}

// readPump consumes subscription commands until the connection drops,
// then unregisters the client. Unknown actions are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read: %v", err)
			}
			break
		}
		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "joinQueueRoom":
			c.hub.JoinRoom(c, QueueRoom(cmd.QueueID))
		case "leaveQueueRoom":
			c.hub.LeaveRoom(c, QueueRoom(cmd.QueueID))
		case "joinUserRoom":
			c.hub.JoinRoom(c, UserRoom(cmd.UserID))
		case "leaveUserRoom":
			c.hub.LeaveRoom(c, UserRoom(cmd.UserID))
		}
	}
}

// writePump forwards queued messages to the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
