package client

import (
	"game-soul-technology/joker/joker-match-queue-server/pkg/msg"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	userId queue.UserId

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	sendWsMessage chan *msg.WsMessage

	// Inbound requests, handled one at a time in read order. Closed by
	// readPump.
	requests chan *msg.WsMessage

	// Closed when the client should close.
	done      chan struct{}
	closeOnce sync.Once

	// Send pings to peer with this period.
	pingPeriod time.Duration

	hub *Hub
}

func NewClient(userId queue.UserId, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		userId:        userId,
		conn:          conn,
		sendWsMessage: make(chan *msg.WsMessage, 64),
		requests:      make(chan *msg.WsMessage, 16),
		done:          make(chan struct{}),
		pingPeriod:    hub.config.PingInterval(),
		hub:           hub,
	}
}

// Run registers the client and starts its pumps. Allow collection of
// memory referenced by the caller by doing all work in new goroutines.
func (c *Client) Run() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
	go c.requestPump()
}

// Send queues wsMessage for the peer. Dropped if the client is closed or
// too slow.
func (c *Client) Send(wsMessage *msg.WsMessage) {
	select {
	case <-c.done:
	case c.sendWsMessage <- wsMessage:
	default:
		c.hub.logger.Warnf("userId[%v] send buffer full, dropped eventCode[%v]", c.userId, wsMessage.EventCode)
	}
}

// TryClose tells the pumps to close the connection. Safe to call many
// times.
func (c *Client) TryClose() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		close(c.requests)
		c.TryClose()
		c.conn.Close()
	}()

	// Time allowed to read the next pong message from the peer.
	pongWait := c.pingPeriod * 5 / 2

	c.conn.SetReadLimit(maxMessageSize)

	// Heartbeat. Close connection if client does not respond to ping for
	// too long. A pong also keeps the presence of the user alive.
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.heartbeat(c)
		return nil
	})

	for {
		wsMessage := &msg.WsMessage{}
		if err := c.conn.ReadJSON(wsMessage); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Errorf("userId[%v] read failed %v", c.userId, err)
			} else {
				c.hub.logger.Debugf("userId[%v] read closing %v", c.userId, err)
			}
			return
		}

		c.requests <- wsMessage
	}
}

// requestPump runs the requests of the client in the order they were
// read. The hub hears of the disconnect only after the last request
// finished, so a stop or leave never overtakes the search it cancels.
func (c *Client) requestPump() {
	for wsMessage := range c.requests {
		c.hub.handleRequest(c, wsMessage)
	}
	c.hub.unregister <- c
}

func (c *Client) writePump() {
	pingTicker := time.NewTicker(c.pingPeriod)

	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case wsMessage := <-c.sendWsMessage:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(wsMessage); err != nil {
				c.hub.logger.Errorf("userId[%v] write failed %v", c.userId, err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Errorf("userId[%v] ping failed %v", c.userId, err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
