package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for money values
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds d to MoneyScale fractional digits
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Percent returns pct percent of amount, rounded to money scale
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}
