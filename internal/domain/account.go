package domain

import "time"

// Account is identity for authorization and attribution; the core
// never destroys an Account once created.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	RegisteredAt time.Time
}

// ExchangeStats is the single-row counter that mints order ids.
type ExchangeStats struct {
	TotalOrders int64
}
