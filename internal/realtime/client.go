package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan Frame
	userID  int64
	isAdmin bool

	// subs and pending are guarded by hub.mu. pending holds events for
	// channels whose snapshot is still being read.
	subs    map[string]struct{}
	pending map[string][]Frame
}

// enqueue drops the frame when the send queue is full. Callers hold hub.mu.
func (c *client) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	pongWait := c.hub.opts.PingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("websocket read ended")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.hub.sendTo(c, Frame{Type: TypeError, Message: "malformed command"})
			continue
		}

		switch cmd.Action {
		case ActionSubscribe:
			c.hub.subscribe(c, cmd.Channel)
		case ActionUnsubscribe:
			c.hub.unsubscribe(c, cmd.Channel)
		default:
			c.hub.sendTo(c, Frame{Type: TypeError, Channel: cmd.Channel, Message: "unknown action"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
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
