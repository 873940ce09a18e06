package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fill records a partial or complete execution against an order.
// Fills are append-only: once recorded they are never mutated or removed.
// Price is always the resting (maker) order's price.
type Fill struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	CounterpartyID      string          `json:"counterparty_id"`
	CounterpartyAddress string          `json:"counterparty_address,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Price               decimal.Decimal `json:"price"`
	TxID                string          `json:"txid,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
}

func (f *Fill) Validate() error {
	if f.ID == uuid.Nil {
		return errors.New("fill id is required")
	}
	if f.OrderID == uuid.Nil {
		return errors.New("fill order_id is required")
	}
	if f.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("fill amount must be greater than 0")
	}
	if f.Price.LessThanOrEqual(decimal.Zero) {
		return errors.New("fill price must be greater than 0")
	}
	if f.Timestamp.IsZero() {
		return errors.New("fill timestamp is required")
	}
	return nil
}
