package book

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

var (
	// ErrWrongSide is returned when an order is inserted into the side it
	// does not belong to. The side is left untouched.
	ErrWrongSide = errors.New("order side does not match book side")
	// ErrDuplicateOrder is returned when the order id is already resting.
	ErrDuplicateOrder = errors.New("order already resting on this side")
)

// BookSide is one side of a pair's order book: a B-tree of price levels plus
// an id index for O(1) entry lookup. Bids match highest price first, asks
// lowest first.
type BookSide struct {
	side   models.Side
	levels *btree.BTreeG[*PriceLevel]
	byID   map[uuid.UUID]*Entry
}

func NewBookSide(side models.Side) *BookSide {
	return &BookSide{
		side: side,
		levels: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
		byID: make(map[uuid.UUID]*Entry),
	}
}

func (bs *BookSide) Side() models.Side { return bs.side }

// Insert rests the order on this side at its limit price. The entry carries
// the order's current remaining amount, so partially-filled orders arriving
// from a peer rest with only what is left.
func (bs *BookSide) Insert(order *models.Order) error {
	if order.Side != bs.side {
		return ErrWrongSide
	}
	if _, exists := bs.byID[order.ID]; exists {
		return ErrDuplicateOrder
	}

	level := bs.findOrCreateLevel(order.Price)
	entry := &Entry{
		Order:     order,
		Remaining: order.RemainingAmount(),
		Timestamp: order.CreatedAt,
	}
	level.insert(entry)
	bs.byID[order.ID] = entry
	return nil
}

// Remove drops the resting entry for orderID, deleting its price level if it
// was the last entry there. Reports whether anything was removed.
func (bs *BookSide) Remove(orderID uuid.UUID) bool {
	entry, ok := bs.byID[orderID]
	if !ok {
		return false
	}
	level := entry.level
	level.remove(entry)
	delete(bs.byID, orderID)
	if level.Len() == 0 {
		bs.levels.Delete(level)
	}
	return true
}

// UpdateRemaining sets a resting entry's remaining amount, adjusting the
// level volume by the delta. A zero remaining behaves like Remove.
func (bs *BookSide) UpdateRemaining(orderID uuid.UUID, newRemaining decimal.Decimal) bool {
	entry, ok := bs.byID[orderID]
	if !ok {
		return false
	}
	if newRemaining.LessThanOrEqual(decimal.Zero) {
		return bs.Remove(orderID)
	}
	entry.level.adjust(entry, newRemaining)
	return true
}

// Entry returns the resting entry for orderID, if any.
func (bs *BookSide) Entry(orderID uuid.UUID) (*Entry, bool) {
	entry, ok := bs.byID[orderID]
	return entry, ok
}

// BestPrice is the highest price for bids, lowest for asks.
func (bs *BookSide) BestPrice() (decimal.Decimal, bool) {
	var level *PriceLevel
	var ok bool
	if bs.side == models.Buy {
		level, ok = bs.levels.Max()
	} else {
		level, ok = bs.levels.Min()
	}
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// walk visits levels in matching priority order (best price first) until fn
// returns false.
func (bs *BookSide) walk(fn func(*PriceLevel) bool) {
	if bs.side == models.Buy {
		bs.levels.Reverse(fn)
	} else {
		bs.levels.Scan(fn)
	}
}

// First returns the highest-priority entry on this side: the oldest entry at
// the best price.
func (bs *BookSide) First() (*Entry, bool) {
	var first *Entry
	bs.walk(func(level *PriceLevel) bool {
		if level.Len() > 0 {
			first = level.entries[0]
		}
		return false
	})
	return first, first != nil
}

// Taken is one planned debit produced by TakeLiquidity.
type Taken struct {
	OrderID uuid.UUID
	Price   decimal.Decimal
	Amount  decimal.Decimal
}

// TakeLiquidity walks levels in priority order, FIFO within each level,
// accumulating entries until target is covered or the side is exhausted.
// It is a pure query: the matcher performs the actual debits after deciding
// how much of the plan to consume.
func (bs *BookSide) TakeLiquidity(target decimal.Decimal) []Taken {
	var plan []Taken
	left := target
	bs.walk(func(level *PriceLevel) bool {
		for _, entry := range level.entries {
			take := decimal.Min(left, entry.Remaining)
			plan = append(plan, Taken{
				OrderID: entry.Order.ID,
				Price:   level.Price,
				Amount:  take,
			})
			left = left.Sub(take)
			if left.LessThanOrEqual(decimal.Zero) {
				return false
			}
		}
		return true
	})
	return plan
}

// Len returns the number of resting orders on this side.
func (bs *BookSide) Len() int {
	return len(bs.byID)
}

// LevelCount returns the number of distinct price levels.
func (bs *BookSide) LevelCount() int {
	return bs.levels.Len()
}

// Volume is the total remaining amount resting on this side.
func (bs *BookSide) Volume() decimal.Decimal {
	total := decimal.Zero
	bs.walk(func(level *PriceLevel) bool {
		total = total.Add(level.volume)
		return true
	})
	return total
}

// Level describes one aggregated price level for depth queries.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
	Count  int             `json:"count"`
}

// Depth returns up to n levels in priority order.
func (bs *BookSide) Depth(n int) []Level {
	out := make([]Level, 0, n)
	bs.walk(func(level *PriceLevel) bool {
		out = append(out, Level{
			Price:  level.Price,
			Volume: level.volume,
			Count:  level.Len(),
		})
		return len(out) < n
	})
	return out
}

func (bs *BookSide) findOrCreateLevel(price decimal.Decimal) *PriceLevel {
	probe := &PriceLevel{Price: price}
	if level, ok := bs.levels.Get(probe); ok {
		return level
	}
	level := newPriceLevel(price)
	bs.levels.Set(level)
	return level
}
