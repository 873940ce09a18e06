package peer

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peer identity is established by the hello/snapshot exchange, not by
	// origin; gossip payloads are merge-safe regardless of sender.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes the gossip endpoint and peer statistics over HTTP.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// HandleUpgrade upgrades an inbound peer connection.
// Path: /peers/ws
func (h *Handler) HandleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("peer upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	// Introduce ourselves and push our state for the initial merge.
	client.sendMessage(&Message{Type: MsgHello, PeerID: h.hub.handler.PeerID()})
	client.SendSnapshot(h.hub.handler.Snapshot())
}

// HandleStats returns gossip connection statistics.
func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peer_id": h.hub.handler.PeerID(),
		"peers":   h.hub.PeerCount(),
	})
}

// Dial connects out to a seed peer and joins it to the hub. The initial
// hello/snapshot exchange runs in both directions so either side can be the
// stale one.
func Dial(hub *Hub, url string, logger *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	client := newClient(hub, conn, logger)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	client.sendMessage(&Message{Type: MsgHello, PeerID: hub.handler.PeerID()})
	client.SendSnapshot(hub.handler.Snapshot())
	return client, nil
}
