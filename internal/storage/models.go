package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one persisted price observation. Samples are append-only
// and within a symbol they are ordered by non-decreasing timestamp.
type PriceSample struct {
	ID        int64
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Alert is a user-created target-price watch. Triggered flips false to true
// exactly once and never reverts.
type Alert struct {
	ID          int64
	Symbol      string
	TargetPrice decimal.Decimal
	Email       string
	Triggered   bool
	CreatedAt   time.Time
}
