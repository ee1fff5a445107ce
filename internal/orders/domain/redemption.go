package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/pkg/errors"
)

// GetAvailable filters the spendable earned entries and orders them so the
// soonest expiry is consumed first. Entries without expiry go last.
func GetAvailable(txs []CashbackTransaction, now time.Time) []CashbackTransaction {
	out := make([]CashbackTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.CanBeUsed(now) {
			out = append(out, tx)
		}
	}
	sortFIFO(out)
	return out
}

// AvailableBalance sums the spendable entries
func AvailableBalance(txs []CashbackTransaction, now time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		if tx.CanBeUsed(now) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

func sortFIFO(txs []CashbackTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i].ExpiryDate, txs[j].ExpiryDate
		switch {
		case a == nil && b == nil:
			return txs[i].ID < txs[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return txs[i].ID < txs[j].ID
	})
}

// RedemptionLine is the part of one ledger entry a plan consumes
type RedemptionLine struct {
	TransactionID uint
	Consumed      decimal.Decimal
}

// RedemptionPlan is the outcome of planning a redemption. Every line's
// transaction is consumed whole; Remainder is the unspent part of the last
// one and is re-issued with RemainderExpiry.
type RedemptionPlan struct {
	CustomerID      uint
	Requested       decimal.Decimal
	Lines           []RedemptionLine
	Remainder       decimal.Decimal
	RemainderExpiry *time.Time
}

// PlanRedemption decides which entries cover requested. It does not modify
// its input.
func PlanRedemption(available []CashbackTransaction, requested decimal.Decimal) (RedemptionPlan, error) {
	requested = RoundMoney(requested)
	if !requested.IsPositive() {
		return RedemptionPlan{}, ErrInvalidCashbackUse
	}

	ordered := append([]CashbackTransaction(nil), available...)
	sortFIFO(ordered)

	total := decimal.Zero
	for _, tx := range ordered {
		total = total.Add(tx.Amount)
	}
	if requested.GreaterThan(total) {
		return RedemptionPlan{}, ErrInsufficientCashback.WithDetails(map[string]string{
			"requested": requested.StringFixed(MoneyScale),
			"available": total.StringFixed(MoneyScale),
		})
	}

	plan := RedemptionPlan{Requested: requested, Remainder: decimal.Zero}
	remaining := requested
	for _, tx := range ordered {
		if !remaining.IsPositive() {
			break
		}
		plan.CustomerID = tx.CustomerID
		used := decimal.Min(tx.Amount, remaining)
		plan.Lines = append(plan.Lines, RedemptionLine{TransactionID: tx.ID, Consumed: used})
		remaining = remaining.Sub(used)
		if left := tx.Amount.Sub(used); left.IsPositive() {
			plan.Remainder = left
			plan.RemainderExpiry = clonePtr(tx.ExpiryDate)
		}
	}
	return plan, nil
}

// RedemptionResult holds the ledger changes of an applied plan
type RedemptionResult struct {
	Updated []CashbackTransaction
	Created []CashbackTransaction
	Events  []Event
}

// Apply consumes the planned entries out of ledger for orderID. ledger must
// contain every planned entry in a usable state.
func (p RedemptionPlan) Apply(ledger []CashbackTransaction, orderID uint, now time.Time) (RedemptionResult, error) {
	byID := make(map[uint]CashbackTransaction, len(ledger))
	for _, tx := range ledger {
		byID[tx.ID] = tx
	}

	var res RedemptionResult
	for _, line := range p.Lines {
		tx, ok := byID[line.TransactionID]
		if !ok {
			return RedemptionResult{}, errors.Wrap(errors.NewNotFound("cashback transaction", line.TransactionID), "apply redemption")
		}
		if err := tx.MarkAsUsed(now); err != nil {
			return RedemptionResult{}, err
		}
		res.Updated = append(res.Updated, tx)
		res.Created = append(res.Created, NewUsedCashback(tx.CustomerID, orderID, line.Consumed, now))
	}
	if p.Remainder.IsPositive() {
		res.Created = append(res.Created,
			NewEarnedCashback(p.CustomerID, orderID, p.Remainder, clonePtr(p.RemainderExpiry), now))
	}
	res.Events = []Event{CashbackRedeemed{
		CustomerID: p.CustomerID,
		OrderID:    orderID,
		Amount:     p.Requested,
		At:         now,
	}}
	return res, nil
}
