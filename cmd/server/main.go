package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/api"
	"github.com/darkswapfoundation/darkswap-sub008/internal/cache"
	"github.com/darkswapfoundation/darkswap-sub008/internal/config"
	"github.com/darkswapfoundation/darkswap-sub008/internal/messaging"
	"github.com/darkswapfoundation/darkswap-sub008/internal/metrics"
	"github.com/darkswapfoundation/darkswap-sub008/internal/node"
	"github.com/darkswapfoundation/darkswap-sub008/internal/peer"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	appMetrics := metrics.New()

	var replicaCache *cache.ReplicaCache
	if cfg.RedisEnabled {
		replicaCache, err = cache.NewReplicaCache(cfg)
		if err != nil {
			logger.Warn("redis cache not available", zap.Error(err))
			replicaCache = nil
		} else {
			logger.Info("redis cache connected", zap.String("addr", cfg.GetRedisAddr()))
		}
	}
	defer func() {
		if replicaCache != nil {
			replicaCache.Close()
		}
	}()

	var publisher *messaging.Publisher
	if cfg.RabbitMQEnabled {
		publisher, err = messaging.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger, appMetrics)
		if err != nil {
			logger.Warn("rabbitmq publisher not available", zap.Error(err))
			publisher = nil
		} else {
			logger.Info("rabbitmq publisher connected", zap.String("exchange", cfg.RabbitMQExchange))
			defer publisher.Close()
		}
	}

	opts := []node.Option{
		node.WithMetrics(appMetrics),
		node.WithSweepInterval(cfg.SweepInterval),
		node.WithPruneAfter(cfg.PruneAfter),
	}
	if publisher != nil {
		opts = append(opts, node.WithPublisher(publisher))
	}
	if replicaCache != nil {
		opts = append(opts, node.WithTradeRecorder(replicaCache))
	}

	n := node.New(cfg.PeerID, logger, opts...)

	hub := peer.NewHub(n, logger, appMetrics)
	n.SetBroadcaster(hub)
	go hub.Run()
	logger.Info("gossip hub started", zap.String("peer_id", cfg.PeerID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recoveryManager *cache.RecoveryManager
	if replicaCache != nil {
		recoveryManager = cache.NewRecoveryManager(replicaCache, nil, logger, appMetrics)

		recovered, err := recoveryManager.Recover(ctx, n)
		if err != nil {
			logger.Warn("snapshot recovery failed", zap.Error(err))
		} else if recovered > 0 {
			logger.Info("recovered orders from snapshot", zap.Int("orders", recovered))
		}

		go recoveryManager.StartAutoSnapshot(n)
		defer recoveryManager.Stop()
	}

	for _, url := range cfg.PeerURLs {
		if _, err := peer.Dial(hub, url, logger); err != nil {
			logger.Warn("seed peer dial failed", zap.String("url", url), zap.Error(err))
		} else {
			logger.Info("connected to seed peer", zap.String("url", url))
		}
	}

	go n.Run(ctx)

	router := gin.New()
	api.RegisterRoutes(router, cfg, n, hub, replicaCache, appMetrics, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down")
		cancel()
		hub.Stop()
		os.Exit(0)
	}()

	logger.Info("darkswap node listening", zap.String("addr", cfg.ServerPort))
	if err := router.Run(cfg.ServerPort); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
