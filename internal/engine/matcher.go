package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/darkswapfoundation/darkswap-sub008/internal/book"
	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

var (
	// ErrInvalidOrder rejects orders that fail validation. Nothing rests.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotOpen rejects submission of orders already in a terminal state.
	ErrOrderNotOpen = errors.New("order is not open")
	// ErrUnknownPair is returned by pair-scoped queries for pairs with no book.
	ErrUnknownPair = errors.New("unknown trading pair")
)

// Matcher owns one order book per trading pair and runs price-time-priority
// matching for every submitted order.
//
// THREAD SAFETY:
//   - Each pair's book is guarded by its own mutex: submits to different
//     pairs run in parallel, submits to the same pair never interleave.
//   - The pair map itself is guarded by a read-write mutex with
//     double-checked creation.
//
// The matcher mutates only book state (resting entries and their remaining
// amounts). Order entities are updated by the caller from the returned
// match result.
type Matcher struct {
	mu    sync.RWMutex
	books map[string]*pairBook
}

type pairBook struct {
	mu   sync.Mutex
	book *book.OrderBook
}

func NewMatcher() *Matcher {
	return &Matcher{books: make(map[string]*pairBook)}
}

// Trade is one execution between an incoming (taker) order and a resting
// (maker) order. Price is always the maker's price.
type Trade struct {
	MakerOrderID uuid.UUID       `json:"maker_order_id"`
	TakerOrderID uuid.UUID       `json:"taker_order_id"`
	Pair         string          `json:"pair"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

// MatchResult is the outcome of one submission: zero or more trades plus the
// residual resting order, or nil if the incoming order fully filled.
type MatchResult struct {
	Trades    []Trade
	Remaining *models.Order
}

// Submit matches the order against the opposite side of its pair's book.
// Non-crossing orders rest immediately. Crossing orders walk the opposite
// side best price first, FIFO within a level, executing at each maker's
// price until the order is exhausted, the book side is exhausted, or the
// next candidate's price is no longer acceptable. Any leftover rests at the
// incoming order's own price.
func (m *Matcher) Submit(order *models.Order) (*MatchResult, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if order.Status != models.Open {
		return nil, ErrOrderNotOpen
	}

	pb := m.getOrCreate(order)
	pb.mu.Lock()
	defer pb.mu.Unlock()

	ob := pb.book
	result := &MatchResult{}

	if !ob.Crosses(order) {
		if err := ob.AddOrder(order); err != nil {
			return nil, err
		}
		result.Remaining = order
		return result, nil
	}

	opposite := ob.OppositeSide(order.Side)
	remaining := order.RemainingAmount()
	now := time.Now().UTC()

	// Plan the debits first, then execute. The plan comes back in matching
	// priority order, so the incoming price may only partially overlap it:
	// the first unacceptable maker price ends the match.
	for _, take := range opposite.TakeLiquidity(remaining) {
		if !priceAcceptable(order.Side, order.Price, take.Price) {
			break
		}

		result.Trades = append(result.Trades, Trade{
			MakerOrderID: take.OrderID,
			TakerOrderID: order.ID,
			Pair:         ob.Pair(),
			Price:        take.Price,
			Amount:       take.Amount,
			Timestamp:    now,
		})
		remaining = remaining.Sub(take.Amount)

		entry, ok := opposite.Entry(take.OrderID)
		if !ok {
			continue
		}
		makerLeft := entry.Remaining.Sub(take.Amount)
		if makerLeft.IsZero() {
			opposite.Remove(take.OrderID)
		} else {
			opposite.UpdateRemaining(take.OrderID, makerLeft)
		}
	}

	if remaining.GreaterThan(decimal.Zero) {
		// Rest the leftover at the order's own price. Insert derives the
		// entry's amount from the order's fills, which the caller has not
		// applied yet, so correct it to the post-match remainder.
		if err := ob.AddOrder(order); err != nil {
			return nil, err
		}
		ob.Side(order.Side).UpdateRemaining(order.ID, remaining)
		result.Remaining = order
	}
	return result, nil
}

func priceAcceptable(side models.Side, limit, makerPrice decimal.Decimal) bool {
	if side == models.Buy {
		return makerPrice.LessThanOrEqual(limit)
	}
	return makerPrice.GreaterThanOrEqual(limit)
}

// Cancel removes a resting order from its pair's book. Unknown pairs and
// unknown order ids are reported no-ops.
func (m *Matcher) Cancel(pair string, orderID uuid.UUID) bool {
	return m.Remove(pair, orderID)
}

// Remove drops a resting order without touching the order entity.
func (m *Matcher) Remove(pair string, orderID uuid.UUID) bool {
	pb, ok := m.get(pair)
	if !ok {
		return false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.RemoveOrder(orderID)
}

// UpdateRemaining adjusts a resting order's remaining amount, e.g. after a
// remote fill arrived via merge. Zero behaves like Remove.
func (m *Matcher) UpdateRemaining(pair string, orderID uuid.UUID, remaining decimal.Decimal) bool {
	pb, ok := m.get(pair)
	if !ok {
		return false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if bs := pb.book.Side(models.Buy); bs.UpdateRemaining(orderID, remaining) {
		return true
	}
	return pb.book.Side(models.Sell).UpdateRemaining(orderID, remaining)
}

// Resting reports whether the order currently rests in its pair's book and,
// if so, its remaining amount.
func (m *Matcher) Resting(pair string, orderID uuid.UUID) (decimal.Decimal, bool) {
	pb, ok := m.get(pair)
	if !ok {
		return decimal.Zero, false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	entry, ok := pb.book.GetEntry(orderID)
	if !ok {
		return decimal.Zero, false
	}
	return entry.Remaining, true
}

// BestBid returns the highest resting buy price for a pair.
func (m *Matcher) BestBid(pair string) (decimal.Decimal, bool) {
	pb, ok := m.get(pair)
	if !ok {
		return decimal.Zero, false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.BestBid()
}

// BestAsk returns the lowest resting sell price for a pair.
func (m *Matcher) BestAsk(pair string) (decimal.Decimal, bool) {
	pb, ok := m.get(pair)
	if !ok {
		return decimal.Zero, false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.BestAsk()
}

// Spread returns bestAsk - bestBid for a pair when both sides are non-empty.
func (m *Matcher) Spread(pair string) (decimal.Decimal, bool) {
	pb, ok := m.get(pair)
	if !ok {
		return decimal.Zero, false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.Spread()
}

// MidPrice returns the bid/ask midpoint for a pair when both sides are
// non-empty.
func (m *Matcher) MidPrice(pair string) (decimal.Decimal, bool) {
	pb, ok := m.get(pair)
	if !ok {
		return decimal.Zero, false
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.MidPrice()
}

// Depth returns up to n aggregated levels per side for a pair.
func (m *Matcher) Depth(pair string, n int) (bids, asks []book.Level, err error) {
	pb, ok := m.get(pair)
	if !ok {
		return nil, nil, ErrUnknownPair
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	bids, asks = pb.book.Depth(n)
	return bids, asks, nil
}

// OrderCount returns the number of resting orders for a pair.
func (m *Matcher) OrderCount(pair string) int {
	pb, ok := m.get(pair)
	if !ok {
		return 0
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.OrderCount()
}

// Pairs lists all pairs with an order book.
func (m *Matcher) Pairs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pairs := make([]string, 0, len(m.books))
	for pair := range m.books {
		pairs = append(pairs, pair)
	}
	return pairs
}

func (m *Matcher) get(pair string) (*pairBook, bool) {
	m.mu.RLock()
	pb, ok := m.books[pair]
	m.mu.RUnlock()
	return pb, ok
}

func (m *Matcher) getOrCreate(order *models.Order) *pairBook {
	pair := order.Pair()
	m.mu.RLock()
	pb, ok := m.books[pair]
	m.mu.RUnlock()
	if ok {
		return pb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check again after acquiring the write lock.
	if pb, ok = m.books[pair]; ok {
		return pb
	}
	pb = &pairBook{book: book.NewOrderBook(order.BaseAsset, order.QuoteAsset)}
	m.books[pair] = pb
	return pb
}
