package relay

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/andrefsp/video-democry/internal/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// SDP with many candidates can get large.
	maxMessageSize = 256 * 1024

	sendBufferSize = 256
)

// Client is one WebSocket connection to the relay.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	roomID string

	// send is owned by the hub, which closes it on unregister.
	send chan []byte

	// user is set by in/join and only touched by the hub.
	user *room.User
}

func newClient(hub *Hub, conn *websocket.Conn, roomID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		roomID: roomID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// readPump pumps frames from the connection to the hub. It runs in its own
// goroutine and is the only reader of the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("read error", "room", c.roomID, "remote", c.conn.RemoteAddr().String(), "err", err)
			}
			return
		}
		if !c.hub.dispatch(inbound{client: c, data: data}) {
			return
		}
	}
}

// writePump pumps frames from the hub to the connection and keeps it alive
// with WebSocket pings. It is the only writer of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("write error", "room", c.roomID, "err", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
