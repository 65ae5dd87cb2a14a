package hub

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection tuning, shared by every client.
const (
	writeWait      = 10 * time.Second     // time allowed to write a message to the peer
	pongWait       = 60 * time.Second     // time allowed to read the next pong
	pingInterval   = (pongWait * 9) / 10  // ping period, must be shorter than pongWait
	maxMessageSize = 4 * 1024             // inbound frames are control-only on push channels
	sendBufSize    = 256                  // per-connection outbound buffer
)

// Client is one authenticated websocket connection bound to a logical
// channel. The hub writes pre-encoded events into egress; the write pump
// drains it in order.
type Client struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	channel Channel

	conn   *websocket.Conn
	hub    *Hub
	egress chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// Attach registers a freshly upgraded connection with the hub and starts its
// pumps. The caller keeps no reference; the client lives until the
// connection drops or the hub shuts down.
func (h *Hub) Attach(userID uuid.UUID, channel Channel, conn *websocket.Conn) *Client {
	c := &Client{
		ID:      uuid.New(),
		UserID:  userID,
		channel: channel,
		conn:    conn,
		hub:     h,
		egress:  make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
	}

	h.register <- c
	go c.readPump()
	go c.writePump()
	return c
}

// send enqueues a pre-encoded event, reporting false when the buffer is
// full. Never blocks the routing loop.
func (c *Client) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.egress <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump consumes inbound frames. Push channels carry no application
// traffic from the client, so everything except control frames is
// discarded; its real job is liveness via the pong deadline.
func (c *Client) readPump() {
	defer func() {
		// Skip unregistering when the hub already dropped us.
		select {
		case c.hub.unregister <- c:
		case <-c.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
					c.hub.logger.Debug("client read error", "user_id", c.UserID.String(), "error", err.Error())
				}
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.egress:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
