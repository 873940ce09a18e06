package peer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/metrics"
	"github.com/darkswapfoundation/darkswap-sub008/internal/replica"
)

// SyncHandler is the node-side surface the gossip layer drives: it supplies
// the local snapshot and absorbs remote updates and snapshots.
type SyncHandler interface {
	PeerID() string
	Snapshot() *replica.Snapshot
	HandleUpdate(replica.Update) error
	HandleSnapshot(peerID string, snap *replica.Snapshot)
}

// Hub maintains the set of connected peers and fans replica updates out to
// them. It implements the node's Broadcaster.
//
// Delivery is at-least-once: a peer that reconnects receives a full
// snapshot, so updates dropped while it was away are recovered by merge.
type Hub struct {
	handler SyncHandler
	logger  *zap.Logger
	metrics *metrics.Metrics

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stop       chan struct{}
	mu         sync.RWMutex
}

func NewHub(handler SyncHandler, logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		handler:    handler,
		logger:     logger,
		metrics:    m,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		stop:       make(chan struct{}),
	}
}

// Run drives the hub's event loop until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.logger.Info("gossip hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("peer connected",
				zap.String("remote", client.RemoteAddr()),
				zap.Int("peers", count))
			if h.metrics != nil {
				h.metrics.PeerConnections.Set(float64(count))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("peer disconnected",
				zap.String("remote", client.RemoteAddr()),
				zap.Int("peers", count))
			if h.metrics != nil {
				h.metrics.PeerConnections.Set(float64(count))
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("peer send buffer full, dropping message",
						zap.String("remote", client.RemoteAddr()))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	close(h.stop)
}

// BroadcastUpdate gossips one replica update to every connected peer.
func (h *Hub) BroadcastUpdate(u replica.Update) {
	data, err := encodeMessage(&Message{
		Type:   MsgUpdate,
		PeerID: h.handler.PeerID(),
		Update: &u,
	})
	if err != nil {
		h.logger.Error("failed to encode update", zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordUpdateBroadcast(string(u.Type))
	}
	select {
	case h.broadcast <- data:
	case <-h.stop:
	}
}

// Register adds a connected peer to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a peer from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleMessage dispatches one decoded gossip message from a peer.
func (h *Hub) handleMessage(client *Client, msg *Message) {
	if h.metrics != nil {
		h.metrics.PeerMessagesIn.WithLabelValues(string(msg.Type)).Inc()
	}

	switch msg.Type {
	case MsgHello:
		client.setPeerID(msg.PeerID)

	case MsgUpdate:
		if err := h.handler.HandleUpdate(*msg.Update); err != nil {
			h.logger.Warn("rejected peer update",
				zap.String("peer_id", msg.PeerID),
				zap.Error(err))
		}

	case MsgSnapshot:
		h.handler.HandleSnapshot(msg.PeerID, msg.Snapshot)

	case MsgSnapshotRequest:
		go client.SendSnapshot(h.handler.Snapshot())
	}
}
