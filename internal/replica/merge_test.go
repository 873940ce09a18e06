package replica

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

func makeOrder(id uuid.UUID, status models.Status, updatedAt time.Time) *models.Order {
	return &models.Order{
		ID:   id,
		Side: models.Buy,
		BaseAsset: models.Asset{
			Kind:   models.AssetBitcoin,
			Amount: decimal.NewFromInt(1),
		},
		QuoteAsset: models.Asset{
			Kind:   models.AssetRune,
			ID:     "UNCOMMON",
			Amount: decimal.NewFromInt(100),
		},
		Price:     decimal.NewFromInt(100),
		CreatorID: "alice",
		CreatedAt: updatedAt.Add(-time.Minute),
		UpdatedAt: updatedAt,
		Status:    status,
	}
}

func snapshotWith(version int64, orders ...*models.Order) *Snapshot {
	snap := NewSnapshot()
	snap.Version = version
	for _, o := range orders {
		snap.Orders[o.ID] = o
		if o.UpdatedAt.After(snap.LastUpdated) {
			snap.LastUpdated = o.UpdatedAt
		}
	}
	return snap
}

func TestMergeSnapshots_Union(t *testing.T) {
	now := time.Now().UTC()
	a := snapshotWith(3, makeOrder(uuid.New(), models.Open, now))
	b := snapshotWith(5, makeOrder(uuid.New(), models.Open, now))

	merged, conflicts := MergeSnapshots(a, b)
	assert.Empty(t, conflicts)
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, int64(6), merged.Version)
}

func TestMergeSnapshots_LastWriterWins(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	older := makeOrder(id, models.Open, now)
	newer := makeOrder(id, models.Cancelled, now.Add(time.Second))

	merged, conflicts := MergeSnapshots(snapshotWith(1, older), snapshotWith(1, newer))
	assert.Empty(t, conflicts)

	got, ok := merged.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.Cancelled, got.Status)
}

// Wall-clock UpdatedAt decides even when the fresher-looking copy carries a
// skewed, earlier timestamp: the clock wins, not the causal history.
func TestMergeSnapshots_ClockSkew(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	// A peer with a slow clock cancelled the order "in the past".
	skewedCancel := makeOrder(id, models.Cancelled, now.Add(-time.Hour))
	liveOpen := makeOrder(id, models.Open, now)

	merged, _ := MergeSnapshots(snapshotWith(1, skewedCancel), snapshotWith(1, liveOpen))
	got, _ := merged.Get(id)
	assert.Equal(t, models.Open, got.Status)
}

func TestMergeSnapshots_Commutative(t *testing.T) {
	now := time.Now().UTC()
	shared := uuid.New()

	a := snapshotWith(2,
		makeOrder(uuid.New(), models.Open, now),
		makeOrder(shared, models.Filled, now),
	)
	b := snapshotWith(7,
		makeOrder(uuid.New(), models.Open, now),
		makeOrder(shared, models.Cancelled, now.Add(time.Second)),
	)

	ab, _ := MergeSnapshots(a, b)
	ba, _ := MergeSnapshots(b, a)

	require.Equal(t, ab.Len(), ba.Len())
	for id, order := range ab.Orders {
		other, ok := ba.Get(id)
		require.True(t, ok)
		assert.Equal(t, order.Status, other.Status)
		assert.True(t, order.UpdatedAt.Equal(other.UpdatedAt))
	}
	assert.Equal(t, ab.Version, ba.Version)
}

func TestMergeSnapshots_Idempotent(t *testing.T) {
	now := time.Now().UTC()
	a := snapshotWith(2, makeOrder(uuid.New(), models.Open, now), makeOrder(uuid.New(), models.Filled, now))

	once, _ := MergeSnapshots(a, a)
	twice, _ := MergeSnapshots(once, a)

	require.Equal(t, once.Len(), twice.Len())
	for id, order := range once.Orders {
		other, ok := twice.Get(id)
		require.True(t, ok)
		assert.Equal(t, order.Status, other.Status)
	}
}

// Divergent terminal states at the same UpdatedAt resolve by the fixed
// priority Filled > Cancelled > Expired and surface a conflict.
func TestMergeSnapshots_TerminalConflict(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	filled := makeOrder(id, models.Filled, now)
	cancelled := makeOrder(id, models.Cancelled, now)

	merged, conflicts := MergeSnapshots(snapshotWith(1, cancelled), snapshotWith(1, filled))

	require.Len(t, conflicts, 1)
	assert.Equal(t, id, conflicts[0].OrderID)
	assert.Equal(t, models.Filled, conflicts[0].Resolved)

	got, _ := merged.Get(id)
	assert.Equal(t, models.Filled, got.Status)

	// Same outcome with the arguments swapped.
	merged2, conflicts2 := MergeSnapshots(snapshotWith(1, filled), snapshotWith(1, cancelled))
	require.Len(t, conflicts2, 1)
	got2, _ := merged2.Get(id)
	assert.Equal(t, models.Filled, got2.Status)
}

func TestMergeSnapshots_TerminalPriorityOrder(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		a, b, want models.Status
	}{
		{models.Filled, models.Cancelled, models.Filled},
		{models.Cancelled, models.Expired, models.Cancelled},
		{models.Filled, models.Expired, models.Filled},
	}

	for _, tc := range cases {
		id := uuid.New()
		merged, conflicts := MergeSnapshots(
			snapshotWith(1, makeOrder(id, tc.a, now)),
			snapshotWith(1, makeOrder(id, tc.b, now)),
		)
		require.Len(t, conflicts, 1, "%s vs %s", tc.a, tc.b)
		got, _ := merged.Get(id)
		assert.Equal(t, tc.want, got.Status, "%s vs %s", tc.a, tc.b)
	}
}

// Terminal beats Open at equal timestamps without raising a conflict; only
// two divergent terminal states are a protocol violation.
func TestMergeSnapshots_TerminalBeatsOpen(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	merged, conflicts := MergeSnapshots(
		snapshotWith(1, makeOrder(id, models.Open, now)),
		snapshotWith(1, makeOrder(id, models.Expired, now)),
	)
	assert.Empty(t, conflicts)
	got, _ := merged.Get(id)
	assert.Equal(t, models.Expired, got.Status)
}

// At equal timestamp and status, the copy with more recorded fills wins so a
// partially-synced fill history is never lost.
func TestMergeSnapshots_MoreFillsWins(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	sparse := makeOrder(id, models.Open, now)
	rich := makeOrder(id, models.Open, now)
	rich.Fills = []models.Fill{{
		ID:             uuid.New(),
		OrderID:        id,
		CounterpartyID: "bob",
		Amount:         decimal.RequireFromString("0.2"),
		Price:          rich.Price,
		Timestamp:      now,
	}}

	merged, conflicts := MergeSnapshots(snapshotWith(1, sparse), snapshotWith(1, rich))
	assert.Empty(t, conflicts)
	got, _ := merged.Get(id)
	assert.Len(t, got.Fills, 1)
}
