package domain

import "github.com/shopspring/decimal"

// OrderItem is a line of an order. It has no identity outside its order and
// holds no reference back to it.
type OrderItem struct {
	ID              uint
	ProductID       uint
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountApplied decimal.Decimal
	TotalPrice      decimal.Decimal
}

func newOrderItem(productID uint, quantity int, unitPrice decimal.Decimal) OrderItem {
	unitPrice = RoundMoney(unitPrice)
	return OrderItem{
		ProductID:       productID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountApplied: decimal.Zero,
		TotalPrice:      unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// FinalPrice is the line total after its share of the order discount
func (i *OrderItem) FinalPrice() decimal.Decimal {
	return i.TotalPrice.Sub(i.DiscountApplied)
}

// DiscountPercentage is the discount as a percentage of the line total
func (i *OrderItem) DiscountPercentage() decimal.Decimal {
	if !i.TotalPrice.IsPositive() {
		return decimal.Zero
	}
	return RoundMoney(i.DiscountApplied.Mul(hundred).Div(i.TotalPrice))
}

// UpdateQuantity changes the quantity keeping the unit price snapshot
func (i *OrderItem) UpdateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Quantity = quantity
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return nil
}

// ApplyDiscount sets the line discount, bounded by the line total
func (i *OrderItem) ApplyDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.GreaterThan(i.TotalPrice) {
		return ErrInvalidDiscount
	}
	i.DiscountApplied = amount
	return nil
}
