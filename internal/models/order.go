package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side a matching counterparty order must have.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Status string

const (
	Open      Status = "open"
	Filled    Status = "filled"
	Cancelled Status = "cancelled"
	Expired   Status = "expired"
)

func (st Status) IsValid() bool {
	return st == Open || st == Filled || st == Cancelled || st == Expired
}

// IsTerminal reports whether the status is final. Terminal orders never
// transition again; a replica merge must not reopen them.
func (st Status) IsTerminal() bool {
	return st == Filled || st == Cancelled || st == Expired
}

// Order is a limit order for BaseAsset priced in QuoteAsset per unit.
// Identity fields never change after creation; Status, UpdatedAt and Fills
// are the only mutable state and only move forward.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	Side           Side            `json:"side"`
	BaseAsset      Asset           `json:"base_asset"`
	QuoteAsset     Asset           `json:"quote_asset"`
	Price          decimal.Decimal `json:"price"`
	CreatorID      string          `json:"creator_id"`
	CreatorAddress string          `json:"creator_address"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	Status         Status          `json:"status"`
	Fills          []Fill          `json:"fills,omitempty"`
}

// Pair returns the trading-pair key this order belongs to,
// e.g. "rune:UNCOMMON•GOODS/btc".
func (o *Order) Pair() string {
	return o.BaseAsset.Key() + "/" + o.QuoteAsset.Key()
}

// FilledAmount is the total base amount executed so far.
func (o *Order) FilledAmount() decimal.Decimal {
	total := decimal.Zero
	for _, f := range o.Fills {
		total = total.Add(f.Amount)
	}
	return total
}

// RemainingAmount is the unexecuted base amount.
func (o *Order) RemainingAmount() decimal.Decimal {
	return o.BaseAsset.Amount.Sub(o.FilledAmount())
}

// IsExpired reports whether the order's optional expiry has passed.
func (o *Order) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}

// CanTransition reports whether moving to the given status is a legal
// forward transition. Terminal states never transition.
func (o *Order) CanTransition(to Status) bool {
	if o.Status.IsTerminal() {
		return false
	}
	return to.IsValid()
}

// Clone returns a deep copy. Replicas exchange clones so that a remote
// snapshot can never alias an order owned by the local matcher.
func (o *Order) Clone() *Order {
	cp := *o
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		cp.ExpiresAt = &t
	}
	if len(o.Fills) > 0 {
		cp.Fills = make([]Fill, len(o.Fills))
		copy(cp.Fills, o.Fills)
	}
	return &cp
}

func (o *Order) Validate() error {
	if o.ID == uuid.Nil {
		return errors.New("order id is required")
	}
	if !o.Side.IsValid() {
		return errors.New("side must be 'buy' or 'sell'")
	}
	if err := o.BaseAsset.Validate(); err != nil {
		return err
	}
	if err := o.QuoteAsset.Validate(); err != nil {
		return err
	}
	if o.BaseAsset.SameAsset(o.QuoteAsset) {
		return errors.New("base and quote asset must differ")
	}
	if o.Price.LessThanOrEqual(decimal.Zero) {
		return errors.New("price must be greater than 0")
	}
	if o.CreatorID == "" {
		return errors.New("creator_id is required")
	}
	if !o.Status.IsValid() {
		return errors.New("invalid status")
	}
	if o.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	if filled := o.FilledAmount(); filled.GreaterThan(o.BaseAsset.Amount) {
		return errors.New("filled amount cannot exceed order amount")
	}
	return nil
}
