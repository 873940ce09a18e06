package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/darkswapfoundation/darkswap-sub008/internal/cache"
	"github.com/darkswapfoundation/darkswap-sub008/internal/node"
	"github.com/darkswapfoundation/darkswap-sub008/internal/peer"
)

// AdminHandler provides operational endpoints for a running node.
type AdminHandler struct {
	node  *node.Node
	hub   *peer.Hub
	cache *cache.ReplicaCache
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(n *node.Node, hub *peer.Hub, c *cache.ReplicaCache) *AdminHandler {
	return &AdminHandler{
		node:  n,
		hub:   hub,
		cache: c,
	}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.Engine) {
	admin := r.Group("/admin")
	{
		admin.GET("/health", h.Health)
		admin.GET("/node", h.NodeStats)
		admin.GET("/book", h.BookStats)
	}
}

// AdminHealthResponse represents health check response for admin.
type AdminHealthResponse struct {
	Status    string            `json:"status"`
	PeerID    string            `json:"peer_id"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    time.Duration     `json:"uptime"`
	Services  map[string]string `json:"services"`
	System    SystemInfo        `json:"system"`
}

// SystemInfo contains system information.
type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	GoRoutines int     `json:"goroutines"`
	MemoryMB   float64 `json:"memory_mb"`
}

// Health returns the health status of the node.
func (h *AdminHandler) Health(c *gin.Context) {
	services := make(map[string]string)

	if h.cache != nil {
		services["redis"] = "healthy"
	} else {
		services["redis"] = "not configured"
	}

	if h.hub != nil {
		if h.hub.PeerCount() > 0 {
			services["gossip"] = "healthy"
		} else {
			services["gossip"] = "no peers"
		}
	} else {
		services["gossip"] = "not configured"
	}

	status := "healthy"
	for _, v := range services {
		if v != "healthy" && v != "no peers" && v != "not configured" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, AdminHealthResponse{
		Status:    status,
		PeerID:    h.node.PeerID(),
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime),
		Services:  services,
		System: SystemInfo{
			GoVersion:  runtime.Version(),
			GoRoutines: runtime.NumGoroutine(),
			MemoryMB:   float64(getMemoryUsage()) / 1024 / 1024,
		},
	})
}

// NodeStats returns replica and gossip statistics.
func (h *AdminHandler) NodeStats(c *gin.Context) {
	openOrders := 0
	for _, o := range h.node.Orders() {
		if !o.Status.IsTerminal() {
			openOrders++
		}
	}

	peers := 0
	if h.hub != nil {
		peers = h.hub.PeerCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"peer_id":     h.node.PeerID(),
		"version":     h.node.Version(),
		"orders":      len(h.node.Orders()),
		"open_orders": openOrders,
		"peers":       peers,
	})
}

// PairStats represents statistics for a trading pair.
type PairStats struct {
	Pair       string          `json:"pair"`
	OrderCount int             `json:"order_count"`
	BestBid    decimal.Decimal `json:"best_bid"`
	BestBidOk  bool            `json:"best_bid_ok"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	BestAskOk  bool            `json:"best_ask_ok"`
	Spread     decimal.Decimal `json:"spread"`
	BidLevels  int             `json:"bid_levels"`
	AskLevels  int             `json:"ask_levels"`
}

// BookStats returns per-pair order book statistics.
func (h *AdminHandler) BookStats(c *gin.Context) {
	m := h.node.Matcher()
	pairs := m.Pairs()
	pairStats := make([]PairStats, 0, len(pairs))

	for _, pair := range pairs {
		bid, bidOk := m.BestBid(pair)
		ask, askOk := m.BestAsk(pair)

		stats := PairStats{
			Pair:       pair,
			OrderCount: m.OrderCount(pair),
			BestBid:    bid,
			BestBidOk:  bidOk,
			BestAsk:    ask,
			BestAskOk:  askOk,
		}

		if bids, asks, err := m.Depth(pair, 100); err == nil {
			stats.BidLevels = len(bids)
			stats.AskLevels = len(asks)
		}

		if spread, ok := m.Spread(pair); ok {
			stats.Spread = spread
		}

		pairStats = append(pairStats, stats)
	}

	c.JSON(http.StatusOK, gin.H{
		"pairs":       pairStats,
		"total_pairs": len(pairs),
	})
}

// Global start time for uptime calculation
var startTime = time.Now()

// getMemoryUsage returns current memory usage in bytes.
func getMemoryUsage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}
