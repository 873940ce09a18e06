package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/cache"
	"github.com/darkswapfoundation/darkswap-sub008/internal/config"
	"github.com/darkswapfoundation/darkswap-sub008/internal/metrics"
	"github.com/darkswapfoundation/darkswap-sub008/internal/middleware"
	"github.com/darkswapfoundation/darkswap-sub008/internal/node"
	"github.com/darkswapfoundation/darkswap-sub008/internal/peer"
)

func RegisterRoutes(r *gin.Engine, cfg *config.Config, n *node.Node, hub *peer.Hub, replicaCache *cache.ReplicaCache, m *metrics.Metrics, logger *zap.Logger) {
	authMiddleware := middleware.NewAuthMiddleware(middleware.DefaultAuthConfig(cfg.JWTSecret))
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.Burst = cfg.RateLimitBurst
	}
	rateLimiter := middleware.NewRateLimiter(rateLimitCfg)

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	if m != nil {
		r.Use(middleware.MetricsMiddleware(m))
	}

	h := NewHandler(n, replicaCache, logger)
	adminHandler := NewAdminHandler(n, hub, replicaCache)
	adminHandler.RegisterRoutes(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/pairs", h.ListPairs)
		api.GET("/book", h.GetOrderBook)
		api.GET("/ticker", h.GetTicker)
		api.GET("/trades", h.RecentTrades)
		api.GET("/snapshot", h.GetSnapshot)
		api.GET("/version", h.GetVersion)
		api.GET("/orders/:id", h.GetOrder)

		protected := api.Group("")
		protected.Use(authMiddleware.GinMiddleware())
		protected.Use(rateLimiter.GinMiddleware())
		{
			protected.POST("/orders", h.PlaceOrder)
			protected.GET("/orders", h.ListOrders)
			protected.DELETE("/orders/:id", h.CancelOrder)
		}
	}

	if hub != nil {
		peerHandler := peer.NewHandler(hub, logger)
		r.GET("/peers/ws", peerHandler.HandleUpgrade)
		r.GET("/peers/stats", peerHandler.HandleStats)
	}
}
