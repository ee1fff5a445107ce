package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the part of a customer or seller record orders depend on
type Account struct {
	ID        uint
	IsActive  bool
	DeletedAt *time.Time
}

// Usable reports whether orders may reference the account
func (a *Account) Usable() bool {
	return a != nil && a.IsActive && a.DeletedAt == nil
}

// DiscountReason is a named justification for a manual discount
type DiscountReason struct {
	ID                 uint
	Name               string
	IsActive           bool
	UsageCount         int
	TotalDiscountGiven decimal.Decimal
	Version            int
}

// IncrementUsage records one more discount granted under this reason
func (r *DiscountReason) IncrementUsage(amount decimal.Decimal) {
	r.UsageCount++
	r.TotalDiscountGiven = r.TotalDiscountGiven.Add(RoundMoney(amount))
}
