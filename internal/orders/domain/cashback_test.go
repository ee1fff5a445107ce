package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashbackSetting_CalculateCashback(t *testing.T) {
	s := DefaultCashbackSetting()
	s.MinimumOrderAmount = dec("10000")

	assert.True(t, s.CalculateCashback(dec("100000")).Equal(dec("2000")))
	assert.True(t, s.CalculateCashback(dec("10000")).Equal(dec("200")))
	assert.True(t, s.CalculateCashback(dec("9999.99")).IsZero())
	assert.True(t, s.CalculateCashback(dec("12345.67")).Equal(dec("246.91")))

	s.IsActive = false
	assert.True(t, s.CalculateCashback(dec("100000")).IsZero())
}

func TestCashbackSetting_Validate(t *testing.T) {
	s := DefaultCashbackSetting()
	require.NoError(t, s.Validate())

	s.Percentage = dec("100.5")
	assert.ErrorIs(t, s.Validate(), ErrInvalidCashbackSetting)

	s = DefaultCashbackSetting()
	s.ValidityPeriodDays = -1
	assert.ErrorIs(t, s.Validate(), ErrInvalidCashbackSetting)
}

func TestCashbackTransaction_MarkAsUsedOnce(t *testing.T) {
	tx := NewEarnedCashback(1, 1, dec("10"), nil, testNow)

	require.NoError(t, tx.MarkAsUsed(testNow))
	assert.True(t, tx.IsUsed)
	assert.ErrorIs(t, tx.MarkAsUsed(testNow), ErrCashbackNotUsable)
}

func TestCashbackTransaction_ExpiredCannotBeUsed(t *testing.T) {
	exp := testNow.Add(-time.Minute)
	tx := NewEarnedCashback(1, 1, dec("10"), &exp, testNow.Add(-time.Hour))

	assert.True(t, tx.IsExpired(testNow))
	assert.ErrorIs(t, tx.MarkAsUsed(testNow), ErrCashbackNotUsable)
}

func TestNewUsedCashback_IsNegative(t *testing.T) {
	tx := NewUsedCashback(1, 2, dec("12.345"), testNow)

	assert.Equal(t, CashbackTypeUsed, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("-12.35")))
	assert.False(t, tx.CanBeUsed(testNow))
}

func TestDiscountReason_IncrementUsage(t *testing.T) {
	r := &DiscountReason{ID: 1, Name: "loyalty", IsActive: true}

	r.IncrementUsage(dec("100"))
	r.IncrementUsage(dec("50.5"))

	assert.Equal(t, 2, r.UsageCount)
	assert.True(t, r.TotalDiscountGiven.Equal(dec("150.5")))
}

func TestAccount_Usable(t *testing.T) {
	deleted := testNow
	assert.True(t, (&Account{ID: 1, IsActive: true}).Usable())
	assert.False(t, (&Account{ID: 1}).Usable())
	assert.False(t, (&Account{ID: 1, IsActive: true, DeletedAt: &deleted}).Usable())

	var missing *Account
	assert.False(t, missing.Usable())
}

func TestOrderItem_DiscountPercentage(t *testing.T) {
	it := newOrderItem(1, 4, dec("250"))
	require.NoError(t, it.ApplyDiscount(dec("250")))

	assert.True(t, it.DiscountPercentage().Equal(dec("25")))
	assert.ErrorIs(t, it.ApplyDiscount(dec("1000.01")), ErrInvalidDiscount)
	assert.ErrorIs(t, it.UpdateQuantity(0), ErrInvalidQuantity)
}
