package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Helper to create a valid test order.
func createTestOrder(side Side, price, amount string) *Order {
	return &Order{
		ID:   uuid.New(),
		Side: side,
		BaseAsset: Asset{
			Kind:   AssetBitcoin,
			Amount: decimal.RequireFromString(amount),
		},
		QuoteAsset: Asset{
			Kind:   AssetRune,
			ID:     "UNCOMMON",
			Amount: decimal.RequireFromString(amount),
		},
		Price:     decimal.RequireFromString(price),
		CreatorID: "alice",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Status:    Open,
	}
}

func TestOrder_Validate(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")
	if err := order.Validate(); err != nil {
		t.Errorf("Expected valid order, got %v", err)
	}
}

func TestOrder_Validate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Order)
	}{
		{"nil_id", func(o *Order) { o.ID = uuid.Nil }},
		{"bad_side", func(o *Order) { o.Side = "hold" }},
		{"zero_price", func(o *Order) { o.Price = decimal.Zero }},
		{"negative_price", func(o *Order) { o.Price = decimal.NewFromInt(-1) }},
		{"zero_amount", func(o *Order) { o.BaseAsset.Amount = decimal.Zero }},
		{"missing_creator", func(o *Order) { o.CreatorID = "" }},
		{"bad_status", func(o *Order) { o.Status = "pending" }},
		{"zero_created_at", func(o *Order) { o.CreatedAt = time.Time{} }},
		{"rune_without_id", func(o *Order) { o.QuoteAsset.ID = "" }},
		{"btc_with_id", func(o *Order) { o.BaseAsset.ID = "extra" }},
		{"same_assets", func(o *Order) { o.QuoteAsset = o.BaseAsset }},
		{"overfilled", func(o *Order) {
			o.Fills = []Fill{{
				ID:             uuid.New(),
				OrderID:        o.ID,
				CounterpartyID: "bob",
				Amount:         decimal.NewFromInt(2),
				Price:          o.Price,
				Timestamp:      time.Now(),
			}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := createTestOrder(Buy, "100", "1")
			tt.mutate(order)
			if err := order.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestOrder_Pair(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")
	if got := order.Pair(); got != "btc/rune:UNCOMMON" {
		t.Errorf("Expected pair btc/rune:UNCOMMON, got %s", got)
	}

	order.QuoteAsset = Asset{Kind: AssetAlkane, ID: "2:0", Amount: decimal.NewFromInt(5)}
	if got := order.Pair(); got != "btc/alkane:2:0" {
		t.Errorf("Expected pair btc/alkane:2:0, got %s", got)
	}
}

func TestOrder_RemainingAmount(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")
	if !order.RemainingAmount().Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected remaining 1, got %s", order.RemainingAmount())
	}

	order.Fills = append(order.Fills, Fill{
		ID:             uuid.New(),
		OrderID:        order.ID,
		CounterpartyID: "bob",
		Amount:         decimal.RequireFromString("0.6"),
		Price:          order.Price,
		Timestamp:      time.Now(),
	})

	if !order.FilledAmount().Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("Expected filled 0.6, got %s", order.FilledAmount())
	}
	if !order.RemainingAmount().Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("Expected remaining 0.4, got %s", order.RemainingAmount())
	}
}

func TestOrder_IsExpired(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")
	now := time.Now()

	if order.IsExpired(now) {
		t.Error("Order without expiry must never expire")
	}

	past := now.Add(-time.Minute)
	order.ExpiresAt = &past
	if !order.IsExpired(now) {
		t.Error("Order past its expiry must be expired")
	}

	future := now.Add(time.Minute)
	order.ExpiresAt = &future
	if order.IsExpired(now) {
		t.Error("Order before its expiry must not be expired")
	}
}

func TestOrder_CanTransition(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")

	for _, to := range []Status{Filled, Cancelled, Expired} {
		if !order.CanTransition(to) {
			t.Errorf("Open order should transition to %s", to)
		}
	}

	for _, terminal := range []Status{Filled, Cancelled, Expired} {
		order.Status = terminal
		if order.CanTransition(Open) {
			t.Errorf("%s order must not reopen", terminal)
		}
		if order.CanTransition(Cancelled) {
			t.Errorf("%s order must not transition again", terminal)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if Open.IsTerminal() {
		t.Error("Open must not be terminal")
	}
	for _, st := range []Status{Filled, Cancelled, Expired} {
		if !st.IsTerminal() {
			t.Errorf("%s must be terminal", st)
		}
	}
}

func TestSide_Opposite(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite sides are wrong")
	}
}

func TestOrder_Clone_Independence(t *testing.T) {
	order := createTestOrder(Buy, "100", "1")
	exp := time.Now().Add(time.Hour)
	order.ExpiresAt = &exp
	order.Fills = []Fill{{
		ID:             uuid.New(),
		OrderID:        order.ID,
		CounterpartyID: "bob",
		Amount:         decimal.RequireFromString("0.5"),
		Price:          order.Price,
		Timestamp:      time.Now(),
	}}

	cp := order.Clone()
	cp.Status = Cancelled
	cp.Fills[0].Amount = decimal.NewFromInt(9)
	*cp.ExpiresAt = cp.ExpiresAt.Add(time.Hour)

	if order.Status != Open {
		t.Error("Mutating the clone changed the original status")
	}
	if !order.Fills[0].Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Error("Mutating the clone changed the original fills")
	}
	if !order.ExpiresAt.Equal(exp) {
		t.Error("Mutating the clone changed the original expiry")
	}
}

func TestAsset_Key(t *testing.T) {
	btc := Asset{Kind: AssetBitcoin, Amount: decimal.NewFromInt(1)}
	if btc.Key() != "btc" {
		t.Errorf("Expected key btc, got %s", btc.Key())
	}

	runeAsset := Asset{Kind: AssetRune, ID: "UNCOMMON•GOODS", Amount: decimal.NewFromInt(1)}
	if runeAsset.Key() != "rune:UNCOMMON•GOODS" {
		t.Errorf("Expected rune key, got %s", runeAsset.Key())
	}
}
