package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/engine"
	"github.com/darkswapfoundation/darkswap-sub008/internal/metrics"
	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
	"github.com/darkswapfoundation/darkswap-sub008/internal/replica"
)

var (
	// ErrOrderNotFound is returned for operations on unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotOpen is returned when cancelling an order already terminal.
	ErrOrderNotOpen = errors.New("order is not open")
)

// Broadcaster sends replica updates to connected peers. Implemented by the
// gossip hub; delivery is at-least-once and may reorder.
type Broadcaster interface {
	BroadcastUpdate(replica.Update)
}

// EventPublisher pushes domain events to the message broker for
// notification/analytics consumers.
type EventPublisher interface {
	Publish(routingKey string, payload interface{}) error
}

// TradeRecorder keeps a feed of recent trades (e.g. in Redis) for API and
// UI consumers.
type TradeRecorder interface {
	RecordTrade(pair string, trade engine.Trade) error
}

// Node is the serialization point of one peer: every order mutation, local
// or remote, flows through it into the matcher and the replica. Mutations
// for one pair run under that pair's lock, held from the match through the
// fill application, so concurrent submitters cannot interleave their writes
// to a shared maker.
type Node struct {
	logger  *zap.Logger
	matcher *engine.Matcher
	rep     *replica.Replica

	gossip    Broadcaster
	publisher EventPublisher
	trades    TradeRecorder
	metrics   *metrics.Metrics

	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex

	sweepInterval time.Duration
	pruneAfter    time.Duration
}

// Option configures optional collaborators on a Node.
type Option func(*Node)

func WithBroadcaster(b Broadcaster) Option     { return func(n *Node) { n.gossip = b } }
func WithPublisher(p EventPublisher) Option    { return func(n *Node) { n.publisher = p } }
func WithTradeRecorder(r TradeRecorder) Option { return func(n *Node) { n.trades = r } }
func WithMetrics(m *metrics.Metrics) Option    { return func(n *Node) { n.metrics = m } }
func WithSweepInterval(d time.Duration) Option { return func(n *Node) { n.sweepInterval = d } }
func WithPruneAfter(d time.Duration) Option    { return func(n *Node) { n.pruneAfter = d } }

func New(peerID string, logger *zap.Logger, opts ...Option) *Node {
	n := &Node{
		logger:        logger,
		matcher:       engine.NewMatcher(),
		rep:           replica.NewReplica(peerID),
		pairLocks:     make(map[string]*sync.Mutex),
		sweepInterval: 30 * time.Second,
		pruneAfter:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetBroadcaster wires the gossip hub after construction. The hub needs the
// node as its sync handler, so the two cannot be built in one step.
func (n *Node) SetBroadcaster(b Broadcaster) { n.gossip = b }

// PeerID reports the replica identity this node gossips under.
func (n *Node) PeerID() string { return n.rep.PeerID() }

// Matcher exposes the matching engine for read-side queries.
func (n *Node) Matcher() *engine.Matcher { return n.matcher }

// SubmitResult is what a local submitter gets back: the taker-side fills and
// the residual resting order, nil when fully filled.
type SubmitResult struct {
	Fills     []models.Fill `json:"fills"`
	Remaining *models.Order `json:"remaining_order"`
}

// Submit matches a locally-created order, applies the resulting fills to
// both maker and taker order entities, records every change in the replica,
// and gossips the deltas.
func (n *Node) Submit(order *models.Order) (*SubmitResult, error) {
	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	if order.Status == "" {
		order.Status = models.Open
	}

	// The matcher's own mutex only covers book state. Hold the pair lock
	// across match plus fill application so the read-modify-write on each
	// maker's fill history is serialized with other submitters.
	lock := n.pairLock(order.Pair())
	lock.Lock()
	result, err := n.matcher.Submit(order)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	takerFills := n.applyTrades(order, result)

	order.UpdatedAt = time.Now().UTC()
	if result.Remaining == nil && len(result.Trades) > 0 {
		order.Status = models.Filled
	}
	n.broadcast(n.rep.ApplyLocalChange(order))
	lock.Unlock()

	n.publish("order.placed", order)

	if n.metrics != nil {
		n.metrics.RecordOrderPlaced(order.Pair())
	}
	return &SubmitResult{Fills: takerFills, Remaining: result.Remaining}, nil
}

// applyTrades appends fill records to the maker orders and returns the
// taker-side fills for the incoming order.
func (n *Node) applyTrades(taker *models.Order, result *engine.MatchResult) []models.Fill {
	var takerFills []models.Fill
	for _, trade := range result.Trades {
		maker, ok := n.rep.Get(trade.MakerOrderID)
		if !ok {
			// A maker resting in the book but missing from the replica is a
			// bookkeeping bug; surface it loudly and keep going.
			n.logger.Error("maker order missing from replica",
				zap.String("order_id", trade.MakerOrderID.String()),
				zap.String("pair", trade.Pair))
			continue
		}

		maker.Fills = append(maker.Fills, models.Fill{
			ID:                  uuid.New(),
			OrderID:             maker.ID,
			CounterpartyID:      taker.CreatorID,
			CounterpartyAddress: taker.CreatorAddress,
			Amount:              trade.Amount,
			Price:               trade.Price,
			Timestamp:           trade.Timestamp,
		})
		taker.Fills = append(taker.Fills, models.Fill{
			ID:                  uuid.New(),
			OrderID:             taker.ID,
			CounterpartyID:      maker.CreatorID,
			CounterpartyAddress: maker.CreatorAddress,
			Amount:              trade.Amount,
			Price:               trade.Price,
			Timestamp:           trade.Timestamp,
		})
		takerFills = append(takerFills, taker.Fills[len(taker.Fills)-1])

		maker.UpdatedAt = trade.Timestamp
		if maker.RemainingAmount().IsZero() {
			maker.Status = models.Filled
			n.publish("order.filled", maker)
			if n.metrics != nil {
				n.metrics.RecordOrderFilled(trade.Pair)
			}
		}
		n.broadcast(n.rep.ApplyLocalChange(maker))

		n.publish("trade.executed", trade)
		if n.trades != nil {
			if err := n.trades.RecordTrade(trade.Pair, trade); err != nil {
				n.logger.Warn("failed to record trade", zap.Error(err))
			}
		}
		if n.metrics != nil {
			n.metrics.RecordTrade(trade.Pair, trade.Amount, trade.Amount.Mul(trade.Price))
		}
	}
	return takerFills
}

// Cancel transitions a local order to Cancelled and removes it from the
// book. Unknown ids and already-terminal orders are reported, not fatal.
func (n *Node) Cancel(orderID uuid.UUID) (*models.Order, error) {
	order, ok := n.rep.Get(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}

	lock := n.pairLock(order.Pair())
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the pair lock: a concurrent fill may have closed the
	// order or grown its fill history since the first read.
	order, ok = n.rep.Get(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return nil, ErrOrderNotOpen
	}

	n.matcher.Cancel(order.Pair(), orderID)
	order.Status = models.Cancelled
	order.UpdatedAt = time.Now().UTC()
	n.broadcast(n.rep.ApplyLocalChange(order))
	n.publish("order.cancelled", order)
	if n.metrics != nil {
		n.metrics.RecordOrderCancelled(order.Pair())
	}
	return order, nil
}

// Get returns a copy of an order by id.
func (n *Node) Get(orderID uuid.UUID) (*models.Order, bool) {
	return n.rep.Get(orderID)
}

// Orders returns copies of all orders this peer knows about.
func (n *Node) Orders() []*models.Order {
	return n.rep.Orders()
}

// Snapshot returns a deep copy of the replica for one-shot peer sync.
func (n *Node) Snapshot() *replica.Snapshot {
	return n.rep.Snapshot()
}

// Version returns the replica's local version counter.
func (n *Node) Version() int64 {
	return n.rep.Version()
}

// HandleUpdate folds one gossip event from a peer into the replica and
// reconciles the local book with whatever the merge accepted. Duplicate
// deliveries are no-ops.
func (n *Node) HandleUpdate(u replica.Update) error {
	changed, conflict, err := n.rep.ApplyUpdate(u)
	if err != nil {
		return err
	}
	n.reportConflict(u.OriginPeerID, conflict)
	if changed != nil {
		n.reconcile(changed)
	}
	if n.metrics != nil {
		n.metrics.RecordUpdateReceived(string(u.Type))
	}
	return nil
}

// HandleSnapshot merges a full remote snapshot (peer reconnect) and
// reconciles every order the merge accepted.
func (n *Node) HandleSnapshot(peerID string, snap *replica.Snapshot) {
	changed, conflicts := n.rep.Merge(snap)
	n.reportConflicts(peerID, conflicts...)
	for _, order := range changed {
		n.reconcile(order)
	}
	if n.metrics != nil {
		n.metrics.RecordMerge(len(changed))
	}
	if len(changed) > 0 {
		n.publish("replica.merged", map[string]interface{}{
			"peer_id": peerID,
			"changed": len(changed),
			"version": n.rep.Version(),
		})
	}
	n.logger.Info("merged peer snapshot",
		zap.String("peer_id", peerID),
		zap.Int("orders", snap.Len()),
		zap.Int("changed", len(changed)),
		zap.Int("conflicts", len(conflicts)))
}

// reconcile aligns the book with the post-merge state of one order: terminal
// orders leave the book, open orders are matched against it so fills hiding
// in the local book are discovered.
func (n *Node) reconcile(order *models.Order) {
	pair := order.Pair()
	lock := n.pairLock(pair)
	lock.Lock()
	defer lock.Unlock()

	if order.Status != models.Open || order.IsExpired(time.Now().UTC()) {
		n.matcher.Remove(pair, order.ID)
		return
	}

	if _, resting := n.matcher.Resting(pair, order.ID); resting {
		n.matcher.UpdateRemaining(pair, order.ID, order.RemainingAmount())
		return
	}

	result, err := n.matcher.Submit(order)
	if err != nil {
		n.logger.Warn("merged order rejected by matcher",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return
	}
	if len(result.Trades) == 0 {
		return
	}

	// The remote order matched against our book: those fills are local
	// mutations and gossip back out like any other.
	n.applyTrades(order, result)
	order.UpdatedAt = time.Now().UTC()
	if result.Remaining == nil {
		order.Status = models.Filled
	}
	n.broadcast(n.rep.ApplyLocalChange(order))
}

// SweepExpired expires overdue open orders, removes them from the book, and
// gossips the transitions.
func (n *Node) SweepExpired(now time.Time) int {
	expired := n.rep.SweepExpired(now)
	for _, order := range expired {
		n.matcher.Remove(order.Pair(), order.ID)
		n.broadcast(replica.Update{
			Type:         replica.UpdateUpdate,
			Order:        order,
			Timestamp:    now,
			OriginPeerID: n.rep.PeerID(),
		})
		n.publish("order.expired", order)
		if n.metrics != nil {
			n.metrics.RecordOrderExpired(order.Pair())
		}
	}
	if len(expired) > 0 {
		n.logger.Info("expired orders swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run drives the periodic expiry sweep and terminal-order pruning until the
// context is cancelled.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(n.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n.SweepExpired(now.UTC())
			for _, u := range n.rep.PruneTerminal(now.UTC().Add(-n.pruneAfter)) {
				n.broadcast(u)
			}
		}
	}
}

func (n *Node) reportConflicts(peerID string, conflicts ...replica.Conflict) {
	for _, c := range conflicts {
		n.logger.Warn("merge conflict: divergent terminal states",
			zap.String("order_id", c.OrderID.String()),
			zap.String("local", string(c.Local)),
			zap.String("remote", string(c.Remote)),
			zap.String("resolved", string(c.Resolved)),
			zap.String("peer_id", peerID))
		if n.metrics != nil {
			n.metrics.RecordMergeConflict()
		}
		n.publish("replica.conflict", c)
	}
}

func (n *Node) reportConflict(peerID string, c *replica.Conflict) {
	if c != nil {
		n.reportConflicts(peerID, *c)
	}
}

// pairLock returns the serialization lock for one trading pair, creating it
// on first use.
func (n *Node) pairLock(pair string) *sync.Mutex {
	n.pairMu.Lock()
	defer n.pairMu.Unlock()
	lock, ok := n.pairLocks[pair]
	if !ok {
		lock = &sync.Mutex{}
		n.pairLocks[pair] = lock
	}
	return lock
}

func (n *Node) broadcast(u replica.Update) {
	if n.gossip != nil {
		n.gossip.BroadcastUpdate(u)
	}
}

func (n *Node) publish(key string, payload interface{}) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(key, payload); err != nil {
		n.logger.Warn("event publish failed", zap.String("routing_key", key), zap.Error(err))
	}
}
