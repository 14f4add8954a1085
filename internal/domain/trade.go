package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutedTrade records a single match between an aggressor order and
// one resting order it consumed. The primary key is (FilledOrderID,
// FillerOrderID): one aggressor can generate many trades, one per
// resting order it walks through.
type ExecutedTrade struct {
	ID            string
	Symbol        string
	Side          Side // side of the aggressor
	Price         decimal.Decimal
	FilledOrderID int64
	FilledUserID  int64
	FillerOrderID int64
	FillerUserID  int64
	Quantity      decimal.Decimal
	ExecutedAt    time.Time
}
