package peer

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/replica"
)

// WebSocket timing constants.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Snapshots of large books can be big; cap well above typical updates.
	maxMessageSize = 8 * 1024 * 1024
)

// Client is one peer connection, inbound or dialed. Reads are fed to the
// hub's handler; writes are pumped from the buffered send channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *zap.Logger

	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	peerID string
}

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// PeerID returns the remote peer's self-reported id, empty before hello.
func (c *Client) PeerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

func (c *Client) setPeerID(id string) {
	c.mu.Lock()
	c.peerID = id
	c.mu.Unlock()
}

// RemoteAddr returns the remote network address for logging.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SendSnapshot queues a full snapshot message to this peer.
func (c *Client) SendSnapshot(snap *replica.Snapshot) {
	data, err := encodeMessage(&Message{
		Type:     MsgSnapshot,
		PeerID:   c.hub.handler.PeerID(),
		Snapshot: snap,
	})
	if err != nil {
		c.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if c.hub.metrics != nil {
		c.hub.metrics.PeerMessagesOut.WithLabelValues(string(MsgSnapshot)).Inc()
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

// sendMessage queues one encoded message.
func (c *Client) sendMessage(msg *Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if c.hub.metrics != nil {
		c.hub.metrics.PeerMessagesOut.WithLabelValues(string(msg.Type)).Inc()
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
	return nil
}

// ReadPump pumps messages from the connection to the hub's handler.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("peer connection closed unexpectedly", zap.Error(err))
			}
			break
		}

		msg, err := decodeMessage(data)
		if err != nil {
			c.logger.Warn("invalid gossip message",
				zap.String("remote", c.RemoteAddr()),
				zap.Error(err))
			continue
		}
		c.hub.handleMessage(c, msg)
	}
}

// WritePump pumps queued messages to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
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

		case <-c.done:
			return
		}
	}
}
