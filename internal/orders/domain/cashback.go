package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashbackTransactionType tags a ledger entry
type CashbackTransactionType string

const (
	CashbackTypeEarned CashbackTransactionType = "earned"
	CashbackTypeUsed   CashbackTransactionType = "used"
)

// CashbackTransaction is an append-only ledger entry. Only the used flag
// and its timestamp ever change after creation.
type CashbackTransaction struct {
	ID         uint
	CustomerID uint
	OrderID    uint
	Amount     decimal.Decimal // positive = earned, negative = used
	Type       CashbackTransactionType
	ExpiryDate *time.Time
	IsUsed     bool
	UsedDate   *time.Time
	Version    int
	CreatedAt  time.Time
}

// IsExpired reports whether the entry has an expiry date at or before now
func (c *CashbackTransaction) IsExpired(now time.Time) bool {
	return c.ExpiryDate != nil && !c.ExpiryDate.After(now)
}

// CanBeUsed reports whether the entry still counts towards the spendable balance
func (c *CashbackTransaction) CanBeUsed(now time.Time) bool {
	return c.Type == CashbackTypeEarned && !c.IsUsed && !c.IsExpired(now)
}

// MarkAsUsed permanently removes the entry from the available balance
func (c *CashbackTransaction) MarkAsUsed(now time.Time) error {
	if !c.CanBeUsed(now) {
		return ErrCashbackNotUsable
	}
	c.IsUsed = true
	c.UsedDate = &now
	return nil
}

// NewEarnedCashback creates an earned ledger entry
func NewEarnedCashback(customerID, orderID uint, amount decimal.Decimal, expiry *time.Time, now time.Time) CashbackTransaction {
	return CashbackTransaction{
		CustomerID: customerID,
		OrderID:    orderID,
		Amount:     RoundMoney(amount),
		Type:       CashbackTypeEarned,
		ExpiryDate: expiry,
		CreatedAt:  now,
	}
}

// NewUsedCashback creates a negative ledger entry recording consumption
func NewUsedCashback(customerID, orderID uint, amount decimal.Decimal, now time.Time) CashbackTransaction {
	return CashbackTransaction{
		CustomerID: customerID,
		OrderID:    orderID,
		Amount:     RoundMoney(amount).Neg(),
		Type:       CashbackTypeUsed,
		CreatedAt:  now,
	}
}

// CashbackSetting is the global cashback policy. One active row is expected.
type CashbackSetting struct {
	ID                 uint
	Percentage         decimal.Decimal
	ValidityPeriodDays int
	MinimumOrderAmount decimal.Decimal
	IsActive           bool
}

// DefaultCashbackSetting mirrors the policy shipped with the marketplace
func DefaultCashbackSetting() CashbackSetting {
	return CashbackSetting{
		Percentage:         decimal.NewFromInt(2),
		ValidityPeriodDays: 30,
		MinimumOrderAmount: decimal.Zero,
		IsActive:           true,
	}
}

// Validate checks the policy bounds
func (s *CashbackSetting) Validate() error {
	if s.Percentage.IsNegative() || s.Percentage.GreaterThan(hundred) {
		return ErrInvalidCashbackSetting
	}
	if s.ValidityPeriodDays < 0 || s.MinimumOrderAmount.IsNegative() {
		return ErrInvalidCashbackSetting
	}
	return nil
}

// CalculateCashback returns the accrual for an order amount. Zero when the
// policy is inactive or the amount is below the minimum.
func (s *CashbackSetting) CalculateCashback(orderAmount decimal.Decimal) decimal.Decimal {
	if s == nil || !s.IsActive || orderAmount.LessThan(s.MinimumOrderAmount) {
		return decimal.Zero
	}
	return Percent(orderAmount, s.Percentage)
}

// ExpiryDate returns when cashback earned at now lapses. A zero validity
// period means earned cashback never expires.
func (s *CashbackSetting) ExpiryDate(now time.Time) *time.Time {
	if s.ValidityPeriodDays <= 0 {
		return nil
	}
	exp := now.AddDate(0, 0, s.ValidityPeriodDays)
	return &exp
}

// Clone returns a copy that shares no pointers with c
func (c CashbackTransaction) Clone() CashbackTransaction {
	c.ExpiryDate = clonePtr(c.ExpiryDate)
	c.UsedDate = clonePtr(c.UsedDate)
	return c
}
