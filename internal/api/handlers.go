package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/cache"
	"github.com/darkswapfoundation/darkswap-sub008/internal/middleware"
	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
	"github.com/darkswapfoundation/darkswap-sub008/internal/node"
)

type Handler struct {
	node   *node.Node
	cache  *cache.ReplicaCache
	logger *zap.Logger
}

func NewHandler(n *node.Node, c *cache.ReplicaCache, logger *zap.Logger) *Handler {
	return &Handler{
		node:   n,
		cache:  c,
		logger: logger,
	}
}

// AssetRequest describes one side of a trade in a place-order request.
type AssetRequest struct {
	Kind   string          `json:"kind" binding:"required,oneof=btc rune alkane"`
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// PlaceOrderRequest is the payload for POST /api/orders.
type PlaceOrderRequest struct {
	Side       string          `json:"side" binding:"required,oneof=buy sell"`
	BaseAsset  AssetRequest    `json:"base_asset" binding:"required"`
	QuoteAsset AssetRequest    `json:"quote_asset" binding:"required"`
	Price      decimal.Decimal `json:"price" binding:"required"`
	Address    string          `json:"address"`
	ExpiresAt  *time.Time      `json:"expires_at"`
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	creatorID, _ := middleware.GetCreatorID(c)
	address := req.Address
	if address == "" {
		if claims, ok := middleware.GetClaims(c); ok {
			address = claims.Address
		}
	}

	order := &models.Order{
		ID:   uuid.New(),
		Side: models.Side(req.Side),
		BaseAsset: models.Asset{
			Kind:   models.AssetKind(req.BaseAsset.Kind),
			ID:     req.BaseAsset.ID,
			Amount: req.BaseAsset.Amount,
		},
		QuoteAsset: models.Asset{
			Kind:   models.AssetKind(req.QuoteAsset.Kind),
			ID:     req.QuoteAsset.ID,
			Amount: req.QuoteAsset.Amount,
		},
		Price:          req.Price,
		CreatorID:      creatorID,
		CreatorAddress: address,
		ExpiresAt:      req.ExpiresAt,
		Status:         models.Open,
	}

	result, err := h.node.Submit(order)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":  order,
		"fills":  result.Fills,
		"status": order.Status,
	})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	order, ok := h.node.Get(orderID)
	if !ok {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}

	// Only the creator may cancel.
	if creatorID, authed := middleware.GetCreatorID(c); authed && order.CreatorID != creatorID {
		AbortWithError(c, http.StatusForbidden, ErrCodeForbidden, "order belongs to another creator")
		return
	}

	cancelled, err := h.node.Cancel(orderID)
	if err != nil {
		switch {
		case errors.Is(err, node.ErrOrderNotFound):
			AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		case errors.Is(err, node.ErrOrderNotOpen):
			AbortWithError(c, http.StatusConflict, ErrCodeOrderCannotCancel, "order is not open")
		default:
			AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order cancelled",
		"order":   cancelled,
	})
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	order, ok := h.node.Get(orderID)
	if !ok {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	creatorID := c.Query("creator_id")
	status := c.Query("status")
	pair := c.Query("pair")

	orders := h.node.Orders()
	filtered := orders[:0]
	for _, o := range orders {
		if creatorID != "" && o.CreatorID != creatorID {
			continue
		}
		if status != "" && string(o.Status) != status {
			continue
		}
		if pair != "" && o.Pair() != pair {
			continue
		}
		filtered = append(filtered, o)
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": filtered,
		"count":  len(filtered),
	})
}

func (h *Handler) GetOrderBook(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "pair query parameter is required")
		return
	}

	levels := 10
	if levelsStr := c.Query("levels"); levelsStr != "" {
		if l, err := strconv.Atoi(levelsStr); err == nil && l > 0 && l <= 100 {
			levels = l
		}
	}

	bids, asks, err := h.node.Matcher().Depth(pair, levels)
	if err != nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeInvalidPair, "unknown pair")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pair": pair,
		"bids": bids,
		"asks": asks,
	})
}

func (h *Handler) GetTicker(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "pair query parameter is required")
		return
	}

	m := h.node.Matcher()
	bid, bidOk := m.BestBid(pair)
	ask, askOk := m.BestAsk(pair)
	spread, spreadOk := m.Spread(pair)
	mid, midOk := m.MidPrice(pair)

	resp := gin.H{
		"pair":   pair,
		"bid_ok": bidOk,
		"ask_ok": askOk,
	}
	if bidOk {
		resp["bid"] = bid
	}
	if askOk {
		resp["ask"] = ask
	}
	if spreadOk {
		resp["spread"] = spread
	}
	if midOk {
		resp["mid"] = mid
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPairs(c *gin.Context) {
	pairs := h.node.Matcher().Pairs()
	c.JSON(http.StatusOK, gin.H{
		"pairs": pairs,
		"count": len(pairs),
	})
}

func (h *Handler) GetSnapshot(c *gin.Context) {
	snap := h.node.Snapshot()
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peer_id": h.node.PeerID(),
		"version": h.node.Version(),
	})
}

func (h *Handler) RecentTrades(c *gin.Context) {
	if h.cache == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "trade history not configured")
		return
	}

	pair := c.Query("pair")
	if pair == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "pair query parameter is required")
		return
	}

	limit := int64(50)
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.ParseInt(limitStr, 10, 64); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	trades, err := h.cache.RecentTrades(pair, limit)
	if err != nil {
		h.logger.Error("recent trades lookup failed", zap.String("pair", pair), zap.Error(err))
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to load trades")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":   pair,
		"trades": trades,
		"count":  len(trades),
	})
}
