package book

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// Entry is the matching-time view of a resting order: the order itself plus
// the amount still available at this level. Timestamp is the order's original
// creation time, which drives FIFO priority; it never changes on updates.
type Entry struct {
	Order     *models.Order
	Remaining decimal.Decimal
	Timestamp time.Time

	level *PriceLevel
}

// PriceLevel holds all resting entries at one exact price, oldest first.
// volume is kept equal to the sum of entry remainders at all times.
type PriceLevel struct {
	Price   decimal.Decimal
	entries []*Entry
	volume  decimal.Decimal
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, volume: decimal.Zero}
}

// insert places the entry in timestamp order. Entries with equal timestamps
// keep arrival order, so a walk of the level is always price-time fair.
func (pl *PriceLevel) insert(e *Entry) {
	e.level = pl
	i := len(pl.entries)
	for i > 0 && pl.entries[i-1].Timestamp.After(e.Timestamp) {
		i--
	}
	pl.entries = append(pl.entries, nil)
	copy(pl.entries[i+1:], pl.entries[i:])
	pl.entries[i] = e
	pl.volume = pl.volume.Add(e.Remaining)
}

// remove drops the entry for orderID and returns it.
func (pl *PriceLevel) remove(e *Entry) {
	for i, cur := range pl.entries {
		if cur == e {
			pl.entries = append(pl.entries[:i], pl.entries[i+1:]...)
			pl.volume = pl.volume.Sub(e.Remaining)
			e.level = nil
			return
		}
	}
}

// adjust changes an entry's remaining amount, keeping volume consistent.
func (pl *PriceLevel) adjust(e *Entry, newRemaining decimal.Decimal) {
	pl.volume = pl.volume.Add(newRemaining.Sub(e.Remaining))
	e.Remaining = newRemaining
}

// Volume is the sum of remaining amounts across all entries at this price.
func (pl *PriceLevel) Volume() decimal.Decimal {
	return pl.volume
}

// Len returns the number of resting entries at this price.
func (pl *PriceLevel) Len() int {
	return len(pl.entries)
}

// Entries returns the level's entries in priority order. The slice is a copy;
// the entries are live book state and must not be mutated by callers.
func (pl *PriceLevel) Entries() []*Entry {
	out := make([]*Entry, len(pl.entries))
	copy(out, pl.entries)
	return out
}
