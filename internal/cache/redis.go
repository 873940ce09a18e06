package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darkswapfoundation/darkswap-sub008/internal/config"
	"github.com/darkswapfoundation/darkswap-sub008/internal/engine"
	"github.com/darkswapfoundation/darkswap-sub008/internal/replica"
)

const (
	snapshotKey      = "replica:snapshot"
	recentTradesKey  = "trades:recent:"
	recentTradesMax  = 100
	recentTradesTTL  = 24 * time.Hour
	operationTimeout = 5 * time.Second
)

// ReplicaCache persists the replica snapshot and a recent-trade feed in
// Redis so a restarted peer can warm-start instead of waiting for a full
// gossip sync.
type ReplicaCache struct {
	client *redis.Client
}

func NewReplicaCache(cfg *config.Config) (*ReplicaCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &ReplicaCache{client: client}, nil
}

// SaveSnapshot persists the full replica snapshot.
func (c *ReplicaCache) SaveSnapshot(ctx context.Context, snap *replica.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey, data, 0).Err()
}

// LoadSnapshot returns the last persisted snapshot, or nil if none exists.
func (c *ReplicaCache) LoadSnapshot(ctx context.Context) (*replica.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := replica.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecordTrade prepends a trade to the pair's recent-trade feed, trimming it
// to the last recentTradesMax entries.
func (c *ReplicaCache) RecordTrade(pair string, trade engine.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	key := recentTradesKey + pair
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, recentTradesMax-1)
	pipe.Expire(ctx, key, recentTradesTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentTrades returns up to n of the pair's most recent trades, newest
// first.
func (c *ReplicaCache) RecentTrades(pair string, n int64) ([]engine.Trade, error) {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	items, err := c.client.LRange(ctx, recentTradesKey+pair, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	trades := make([]engine.Trade, 0, len(items))
	for _, item := range items {
		var t engine.Trade
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close shuts down the Redis connection.
func (c *ReplicaCache) Close() error {
	return c.client.Close()
}
