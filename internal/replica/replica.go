package replica

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// Replica is one peer's live order set. All mutations pass through it so the
// version counter and LastUpdated stay consistent; orders handed out or
// taken in are always deep copies.
type Replica struct {
	mu     sync.RWMutex
	peerID string
	snap   *Snapshot
}

func NewReplica(peerID string) *Replica {
	return &Replica{peerID: peerID, snap: NewSnapshot()}
}

func (r *Replica) PeerID() string { return r.peerID }

// Version returns the local version counter.
func (r *Replica) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Version
}

// Snapshot returns a deep copy of the current state for one-shot peer sync.
func (r *Replica) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Clone()
}

// Get returns a copy of the order with the given id.
func (r *Replica) Get(id uuid.UUID) (*models.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.snap.Get(id)
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

// Orders returns copies of every order in the replica.
func (r *Replica) Orders() []*models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Order, 0, len(r.snap.Orders))
	for _, order := range r.snap.Orders {
		out = append(out, order.Clone())
	}
	return out
}

// ApplyLocalChange upserts a locally-mutated order, bumps the version, and
// returns the outbound gossip event for the transport to broadcast.
func (r *Replica) ApplyLocalChange(order *models.Order) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.snap.Get(order.ID)
	r.upsertLocked(order.Clone())

	kind := UpdateAdd
	if existed {
		kind = UpdateUpdate
	}
	return Update{
		Type:         kind,
		Order:        order.Clone(),
		Timestamp:    time.Now().UTC(),
		OriginPeerID: r.peerID,
	}
}

// RemoveLocal prunes an order from the replica and returns the remove event
// for gossip. Unknown ids return ok=false and no event.
func (r *Replica) RemoveLocal(orderID uuid.UUID) (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.snap.Get(orderID)
	if !ok {
		return Update{}, false
	}
	delete(r.snap.Orders, orderID)
	r.bumpLocked()
	return Update{
		Type:         UpdateRemove,
		Order:        order.Clone(),
		Timestamp:    time.Now().UTC(),
		OriginPeerID: r.peerID,
	}, true
}

// ApplyUpdate folds a single remote event into the replica. It is equivalent
// to merging a one-order snapshot and safe to apply any number of times:
// duplicate deliveries change nothing after the first.
//
// Removes carry no tombstone: a stale add or update for the same id arriving
// after the remove resurrects the order until the next prune. Last-writer-wins
// on wall clock accepts this window.
//
// The returned order is the post-merge copy when the update changed local
// state, nil otherwise.
func (r *Replica) ApplyUpdate(u Update) (*models.Order, *Conflict, error) {
	if err := u.Validate(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Type == UpdateRemove {
		if _, ok := r.snap.Get(u.Order.ID); !ok {
			return nil, nil, nil
		}
		delete(r.snap.Orders, u.Order.ID)
		r.bumpLocked()
		return nil, nil, nil
	}

	local, _ := r.snap.Get(u.Order.ID)
	winner, conflict := resolve(local, u.Order)
	if winner == local {
		return nil, conflict, nil
	}
	r.upsertLocked(winner.Clone())
	return winner.Clone(), conflict, nil
}

// Merge folds a remote snapshot into the replica and returns copies of every
// order whose local value changed, so the caller can re-feed still-open ones
// to the matcher.
func (r *Replica) Merge(remote *Snapshot) ([]*models.Order, []Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.snap.Orders
	merged, conflicts := MergeSnapshots(r.snap, remote)

	var changed []*models.Order
	for id, order := range merged.Orders {
		if before[id] != order {
			cp := order.Clone()
			merged.Orders[id] = cp
			changed = append(changed, cp.Clone())
		}
	}
	r.snap = merged
	return changed, conflicts
}

// SweepExpired transitions every Open order whose expiry has passed to
// Expired and returns copies of them for gossip. The transition is
// monotonic; terminal orders are never touched.
func (r *Replica) SweepExpired(now time.Time) []*models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*models.Order
	for _, order := range r.snap.Orders {
		if order.Status == models.Open && order.IsExpired(now) {
			order.Status = models.Expired
			order.UpdatedAt = now
			r.bumpLocked()
			expired = append(expired, order.Clone())
		}
	}
	return expired
}

// PruneTerminal removes terminal orders last updated before the cutoff and
// returns remove events for gossip.
func (r *Replica) PruneTerminal(cutoff time.Time) []Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Update
	now := time.Now().UTC()
	for id, order := range r.snap.Orders {
		if order.Status.IsTerminal() && order.UpdatedAt.Before(cutoff) {
			delete(r.snap.Orders, id)
			r.bumpLocked()
			removed = append(removed, Update{
				Type:         UpdateRemove,
				Order:        order,
				Timestamp:    now,
				OriginPeerID: r.peerID,
			})
		}
	}
	return removed
}

func (r *Replica) upsertLocked(order *models.Order) {
	r.snap.Orders[order.ID] = order
	r.bumpLocked()
}

func (r *Replica) bumpLocked() {
	r.snap.Version++
	r.snap.LastUpdated = time.Now().UTC()
}
