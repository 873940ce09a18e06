package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// Helper to create a test order with an explicit creation time.
func createTestOrder(side models.Side, price, amount string, createdAt time.Time) *models.Order {
	return &models.Order{
		ID:   uuid.New(),
		Side: side,
		BaseAsset: models.Asset{
			Kind:   models.AssetBitcoin,
			Amount: decimal.RequireFromString(amount),
		},
		QuoteAsset: models.Asset{
			Kind:   models.AssetRune,
			ID:     "UNCOMMON",
			Amount: decimal.RequireFromString(amount),
		},
		Price:     decimal.RequireFromString(price),
		CreatorID: "alice",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Status:    models.Open,
	}
}

const testPair = "btc/rune:UNCOMMON"

// TestMatcher_Submit_EmptyBookRests: a buy into an empty book produces no
// trades and rests at its limit price.
func TestMatcher_Submit_EmptyBookRests(t *testing.T) {
	m := NewMatcher()
	buy := createTestOrder(models.Buy, "100", "1", time.Now())

	result, err := m.Submit(buy)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(result.Trades))
	}
	if result.Remaining == nil || result.Remaining.ID != buy.ID {
		t.Error("Expected the order itself to rest")
	}

	best, ok := m.BestBid(testPair)
	if !ok || !best.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected bestBid 100, got %s (ok=%v)", best, ok)
	}
}

// TestMatcher_Submit_PartialFill: resting sell 0.6@100, incoming buy 1.0@100
// fills 0.6 at 100 and rests the leftover 0.4 as a bid.
func TestMatcher_Submit_PartialFill(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	sell := createTestOrder(models.Sell, "100", "0.6", now)
	if _, err := m.Submit(sell); err != nil {
		t.Fatalf("Submit sell failed: %v", err)
	}

	buy := createTestOrder(models.Buy, "100", "1", now.Add(time.Second))
	result, err := m.Submit(buy)
	if err != nil {
		t.Fatalf("Submit buy failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if !trade.Amount.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("Expected fill 0.6, got %s", trade.Amount)
	}
	if !trade.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected maker price 100, got %s", trade.Price)
	}
	if trade.MakerOrderID != sell.ID || trade.TakerOrderID != buy.ID {
		t.Error("Trade maker/taker ids are wrong")
	}

	if result.Remaining == nil {
		t.Fatal("Expected leftover to rest")
	}
	remaining, ok := m.Resting(testPair, buy.ID)
	if !ok || !remaining.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("Expected resting 0.4, got %s (ok=%v)", remaining, ok)
	}

	// The maker is fully consumed and gone from the book.
	if _, ok := m.Resting(testPair, sell.ID); ok {
		t.Error("Filled maker should not be resting")
	}
	best, ok := m.BestBid(testPair)
	if !ok || !best.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected leftover as bestBid 100, got %s", best)
	}
}

// TestMatcher_Submit_NoCross: buy 1.0@99 against ask at 100 does not cross
// and rests at 99.
func TestMatcher_Submit_NoCross(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	m.Submit(createTestOrder(models.Sell, "100", "0.6", now))

	buy := createTestOrder(models.Buy, "99", "1", now.Add(time.Second))
	result, err := m.Submit(buy)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(result.Trades))
	}

	best, ok := m.BestBid(testPair)
	if !ok || !best.Equal(decimal.NewFromInt(99)) {
		t.Errorf("Expected bestBid 99, got %s", best)
	}
	ask, ok := m.BestAsk(testPair)
	if !ok || !ask.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected bestAsk 100 untouched, got %s", ask)
	}
}

// TestMatcher_Submit_PriceTimePriority: better prices fill first, FIFO within
// a level, always executing at the maker's price.
func TestMatcher_Submit_PriceTimePriority(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	cheap := createTestOrder(models.Sell, "99", "0.5", now.Add(2*time.Second))
	older := createTestOrder(models.Sell, "100", "0.5", now)
	newer := createTestOrder(models.Sell, "100", "0.5", now.Add(time.Second))
	m.Submit(newer)
	m.Submit(older)
	m.Submit(cheap)

	buy := createTestOrder(models.Buy, "100", "1.2", now.Add(3*time.Second))
	result, err := m.Submit(buy)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(result.Trades) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(result.Trades))
	}

	// Best price first even though it arrived last.
	if result.Trades[0].MakerOrderID != cheap.ID || !result.Trades[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Error("First trade must hit the 99 ask")
	}
	// Then FIFO within the 100 level.
	if result.Trades[1].MakerOrderID != older.ID {
		t.Error("Second trade must hit the older 100 ask")
	}
	if result.Trades[2].MakerOrderID != newer.ID {
		t.Error("Third trade must hit the newer 100 ask")
	}
	if !result.Trades[2].Amount.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("Expected final partial fill 0.2, got %s", result.Trades[2].Amount)
	}

	// Taker is exhausted, the last maker keeps 0.3.
	if result.Remaining != nil {
		t.Error("Taker should be fully filled")
	}
	left, ok := m.Resting(testPair, newer.ID)
	if !ok || !left.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("Expected maker remainder 0.3, got %s", left)
	}
}

// TestMatcher_Submit_Conservation: total traded plus residual equals the
// incoming amount, and both sides of every trade agree on the amount.
func TestMatcher_Submit_Conservation(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	amounts := []string{"0.3", "0.25", "0.7", "0.15"}
	for i, a := range amounts {
		m.Submit(createTestOrder(models.Sell, "100", a, now.Add(time.Duration(i)*time.Second)))
	}

	buy := createTestOrder(models.Buy, "100", "1", now.Add(time.Minute))
	result, err := m.Submit(buy)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	traded := decimal.Zero
	for _, trade := range result.Trades {
		traded = traded.Add(trade.Amount)
		if trade.Amount.LessThanOrEqual(decimal.Zero) {
			t.Error("Zero-amount trade emitted")
		}
	}

	residual := decimal.Zero
	if result.Remaining != nil {
		r, ok := m.Resting(testPair, buy.ID)
		if !ok {
			t.Fatal("Residual order not resting")
		}
		residual = r
	}

	if !traded.Add(residual).Equal(decimal.NewFromInt(1)) {
		t.Errorf("Traded %s + residual %s != 1", traded, residual)
	}
}

func TestMatcher_Submit_RejectsInvalid(t *testing.T) {
	m := NewMatcher()

	bad := createTestOrder(models.Buy, "100", "1", time.Now())
	bad.Price = decimal.Zero
	if _, err := m.Submit(bad); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Expected ErrInvalidOrder, got %v", err)
	}

	cancelled := createTestOrder(models.Buy, "100", "1", time.Now())
	cancelled.Status = models.Cancelled
	if _, err := m.Submit(cancelled); !errors.Is(err, ErrOrderNotOpen) {
		t.Errorf("Expected ErrOrderNotOpen, got %v", err)
	}

	// Nothing rested.
	if m.OrderCount(testPair) != 0 {
		t.Error("Rejected orders must not rest")
	}
}

func TestMatcher_Cancel(t *testing.T) {
	m := NewMatcher()
	order := createTestOrder(models.Buy, "100", "1", time.Now())
	m.Submit(order)

	if !m.Cancel(testPair, order.ID) {
		t.Error("Cancel of a resting order should succeed")
	}
	if m.Cancel(testPair, order.ID) {
		t.Error("Second cancel should report false")
	}
	if m.Cancel("btc/rune:RARE", uuid.New()) {
		t.Error("Cancel on an unknown pair should report false")
	}
	if m.OrderCount(testPair) != 0 {
		t.Error("Book should be empty after cancel")
	}
}

func TestMatcher_PairIsolation(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	m.Submit(createTestOrder(models.Sell, "100", "1", now))

	other := createTestOrder(models.Buy, "100", "1", now)
	other.QuoteAsset.ID = "RARE"
	result, err := m.Submit(other)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Error("Orders in different pairs must never match")
	}

	if got := len(m.Pairs()); got != 2 {
		t.Errorf("Expected 2 pairs, got %d", got)
	}
}

func TestMatcher_Depth(t *testing.T) {
	m := NewMatcher()
	now := time.Now()

	m.Submit(createTestOrder(models.Buy, "98", "1", now))
	m.Submit(createTestOrder(models.Buy, "99", "2", now))
	m.Submit(createTestOrder(models.Sell, "101", "1", now))

	bids, asks, err := m.Depth(testPair, 10)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("Expected 2 bid levels and 1 ask level, got %d/%d", len(bids), len(asks))
	}
	if !bids[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Errorf("Expected best bid level 99 first, got %s", bids[0].Price)
	}

	if _, _, err := m.Depth("btc/rune:RARE", 10); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("Expected ErrUnknownPair, got %v", err)
	}
}

// TestMatcher_ConcurrentSubmits exercises the per-pair locking with parallel
// non-crossing submissions.
func TestMatcher_ConcurrentSubmits(t *testing.T) {
	m := NewMatcher()
	now := time.Now()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			price := decimal.NewFromInt(int64(100 + i)).String()
			order := createTestOrder(models.Sell, price, "1", now)
			if _, err := m.Submit(order); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := m.OrderCount(testPair); got != n {
		t.Errorf("Expected %d resting orders, got %d", n, got)
	}
}
