package book

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// ErrWrongPair is returned when an order's assets do not match the book's
// trading pair. The book is left untouched.
var ErrWrongPair = errors.New("order assets do not match trading pair")

// OrderBook binds the two sides of one trading pair and answers pair-level
// queries. It has no locking of its own; the matcher serializes access.
type OrderBook struct {
	pair     string
	baseKey  string
	quoteKey string
	bids     *BookSide
	asks     *BookSide
}

func NewOrderBook(base, quote models.Asset) *OrderBook {
	return &OrderBook{
		pair:     base.Key() + "/" + quote.Key(),
		baseKey:  base.Key(),
		quoteKey: quote.Key(),
		bids:     NewBookSide(models.Buy),
		asks:     NewBookSide(models.Sell),
	}
}

func (ob *OrderBook) Pair() string { return ob.pair }

// Side returns the book side orders of the given side rest on.
func (ob *OrderBook) Side(side models.Side) *BookSide {
	if side == models.Buy {
		return ob.bids
	}
	return ob.asks
}

// OppositeSide returns the side an incoming order matches against.
func (ob *OrderBook) OppositeSide(side models.Side) *BookSide {
	return ob.Side(side.Opposite())
}

// AddOrder validates the order belongs to this pair and rests it on the
// correct side. No partial state is left behind on rejection.
func (ob *OrderBook) AddOrder(order *models.Order) error {
	if order.BaseAsset.Key() != ob.baseKey || order.QuoteAsset.Key() != ob.quoteKey {
		return ErrWrongPair
	}
	return ob.Side(order.Side).Insert(order)
}

// RemoveOrder drops a resting order from whichever side holds it.
func (ob *OrderBook) RemoveOrder(orderID uuid.UUID) bool {
	return ob.bids.Remove(orderID) || ob.asks.Remove(orderID)
}

// GetEntry finds the resting entry for orderID on either side.
func (ob *OrderBook) GetEntry(orderID uuid.UUID) (*Entry, bool) {
	if entry, ok := ob.bids.Entry(orderID); ok {
		return entry, ok
	}
	return ob.asks.Entry(orderID)
}

func (ob *OrderBook) BestBid() (decimal.Decimal, bool) { return ob.bids.BestPrice() }
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) { return ob.asks.BestPrice() }

// Crosses reports whether the incoming order's price is aggressive enough to
// match the best price on the opposite side. Orders that do not cross rest.
func (ob *OrderBook) Crosses(order *models.Order) bool {
	if order.Side == models.Buy {
		ask, ok := ob.BestAsk()
		return ok && order.Price.GreaterThanOrEqual(ask)
	}
	bid, ok := ob.BestBid()
	return ok && order.Price.LessThanOrEqual(bid)
}

// Spread is bestAsk - bestBid; defined only when both sides are non-empty.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, bidOK := ob.BestBid()
	ask, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// MidPrice is the average of best bid and ask; defined only when both sides
// are non-empty.
func (ob *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, bidOK := ob.BestBid()
	ask, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return decimal.Zero, false
	}
	return bid.Add(ask).DivRound(decimal.NewFromInt(2), 18), true
}

// Depth returns up to n aggregated levels per side in priority order.
func (ob *OrderBook) Depth(n int) (bids, asks []Level) {
	return ob.bids.Depth(n), ob.asks.Depth(n)
}

// OrderCount is the number of resting orders across both sides.
func (ob *OrderBook) OrderCount() int {
	return ob.bids.Len() + ob.asks.Len()
}
