package replica

import (
	"github.com/google/uuid"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// Conflict records two divergent terminal states seen for the same order id
// at the same UpdatedAt. It indicates a protocol or clock-skew problem
// upstream and must be surfaced by the caller, never dropped.
type Conflict struct {
	OrderID  uuid.UUID     `json:"order_id"`
	Local    models.Status `json:"local"`
	Remote   models.Status `json:"remote"`
	Resolved models.Status `json:"resolved"`
}

// statusRank is the fixed tie-break priority for divergent terminal states
// at equal UpdatedAt: Filled > Cancelled > Expired > Open.
func statusRank(st models.Status) int {
	switch st {
	case models.Filled:
		return 3
	case models.Cancelled:
		return 2
	case models.Expired:
		return 1
	default:
		return 0
	}
}

// resolve picks the winning copy of one order by last-writer-wins on
// UpdatedAt. Ties are broken by status priority, then by fill count, so the
// outcome is independent of argument order. The returned pointer is one of
// the two inputs, never a copy.
func resolve(a, b *models.Order) (*models.Order, *Conflict) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.UpdatedAt.After(b.UpdatedAt) {
		return a, nil
	}
	if b.UpdatedAt.After(a.UpdatedAt) {
		return b, nil
	}

	// Equal UpdatedAt. Two divergent terminal states here violate the
	// forward-only lifecycle and are flagged as a merge conflict.
	var conflict *Conflict
	if a.Status != b.Status && a.Status.IsTerminal() && b.Status.IsTerminal() {
		conflict = &Conflict{OrderID: a.ID, Local: a.Status, Remote: b.Status}
	}

	winner := a
	if statusRank(b.Status) > statusRank(a.Status) {
		winner = b
	} else if statusRank(b.Status) == statusRank(a.Status) && len(b.Fills) > len(a.Fills) {
		winner = b
	}
	if conflict != nil {
		conflict.Resolved = winner.Status
	}
	return winner, conflict
}

// MergeSnapshots reconciles two snapshots into a new one whose order set is
// the union of both, resolved per-order by last-writer-wins on UpdatedAt.
// The merge is idempotent and commutative on the order set; the scalar
// version is local bookkeeping and advances to max(a, b)+1.
func MergeSnapshots(a, b *Snapshot) (*Snapshot, []Conflict) {
	merged := NewSnapshot()
	var conflicts []Conflict

	for id, order := range a.Orders {
		merged.Orders[id] = order
	}
	for id, order := range b.Orders {
		winner, conflict := resolve(merged.Orders[id], order)
		merged.Orders[id] = winner
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	merged.Version = a.Version + 1
	if b.Version >= a.Version {
		merged.Version = b.Version + 1
	}
	merged.LastUpdated = a.LastUpdated
	if b.LastUpdated.After(a.LastUpdated) {
		merged.LastUpdated = b.LastUpdated
	}
	return merged, conflicts
}
