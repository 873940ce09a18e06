package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// AssetKind identifies the protocol an asset lives on.
type AssetKind string

const (
	AssetBitcoin AssetKind = "btc"
	AssetRune    AssetKind = "rune"
	AssetAlkane  AssetKind = "alkane"
)

func (k AssetKind) IsValid() bool {
	return k == AssetBitcoin || k == AssetRune || k == AssetAlkane
}

// Asset is an amount of Bitcoin, a Rune, or an Alkane token.
// ID carries the rune name or alkane id and is empty for plain Bitcoin.
type Asset struct {
	Kind   AssetKind       `json:"kind"`
	ID     string          `json:"id,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Key returns the identity of the asset type without its amount,
// e.g. "btc", "rune:UNCOMMON•GOODS", "alkane:2:0".
func (a Asset) Key() string {
	if a.Kind == AssetBitcoin {
		return string(AssetBitcoin)
	}
	return string(a.Kind) + ":" + a.ID
}

// SameAsset reports whether two assets are the same type, ignoring amounts.
func (a Asset) SameAsset(b Asset) bool {
	return a.Kind == b.Kind && a.ID == b.ID
}

func (a Asset) Validate() error {
	if !a.Kind.IsValid() {
		return errors.New("asset kind must be 'btc', 'rune' or 'alkane'")
	}
	if a.Kind == AssetBitcoin && a.ID != "" {
		return errors.New("bitcoin asset must not have an id")
	}
	if a.Kind != AssetBitcoin && a.ID == "" {
		return errors.New("rune and alkane assets require an id")
	}
	if a.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("asset amount must be greater than 0")
	}
	return nil
}
