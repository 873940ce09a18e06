package replica

import (
	"time"

	"github.com/google/uuid"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// Snapshot is one peer's versioned view of every order it knows about.
// Version is per-replica and monotonically increasing; it is never compared
// across peers. Only the order set and each order's UpdatedAt carry
// cross-replica truth.
type Snapshot struct {
	Orders      map[uuid.UUID]*models.Order `json:"orders"`
	Version     int64                       `json:"version"`
	LastUpdated time.Time                   `json:"last_updated"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{Orders: make(map[uuid.UUID]*models.Order)}
}

// Clone deep-copies the snapshot so the caller can hand it to a peer without
// aliasing live state.
func (s *Snapshot) Clone() *Snapshot {
	cp := &Snapshot{
		Orders:      make(map[uuid.UUID]*models.Order, len(s.Orders)),
		Version:     s.Version,
		LastUpdated: s.LastUpdated,
	}
	for id, order := range s.Orders {
		cp.Orders[id] = order.Clone()
	}
	return cp
}

// Get returns the order with the given id, if present.
func (s *Snapshot) Get(id uuid.UUID) (*models.Order, bool) {
	order, ok := s.Orders[id]
	return order, ok
}

// OpenOrders returns every order still in the Open state.
func (s *Snapshot) OpenOrders() []*models.Order {
	var open []*models.Order
	for _, order := range s.Orders {
		if order.Status == models.Open {
			open = append(open, order)
		}
	}
	return open
}

// Len returns the number of orders in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Orders)
}
