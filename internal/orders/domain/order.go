package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the aggregate root for a customer purchase
type Order struct {
	ID                   uint
	CustomerID           uint
	SellerID             *uint
	OrderDate            time.Time
	TotalPrice           decimal.Decimal
	DiscountApplied      decimal.Decimal
	CashbackApplied      decimal.Decimal // part of DiscountApplied paid with cashback
	DiscountReasonID     *uint
	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	Status               OrderStatus
	DeliveryType         DeliveryType
	PickupLocation       string
	OrderSource          string
	Notes                string
	Items                []OrderItem
	StatusHistory        []OrderStatusHistory
	CashbackTransactions []CashbackTransaction
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
}

// OrderStatusHistory is an append-only record of one status transition
type OrderStatusHistory struct {
	ID          uint
	OldStatus   OrderStatus
	NewStatus   OrderStatus
	ChangedBy   ActorType
	ChangedByID uint
	Notes       string
	CreatedAt   time.Time
}

// NewOrderParams holds the header fields of a new order
type NewOrderParams struct {
	CustomerID     uint
	SellerID       *uint
	PaymentMethod  PaymentMethod
	DeliveryType   DeliveryType
	PickupLocation string
	OrderSource    string
	Notes          string
	Now            time.Time
}

// NewOrder creates an empty pending order
func NewOrder(p NewOrderParams) (*Order, error) {
	if p.CustomerID == 0 {
		return nil, ErrCustomerIDRequired
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = PaymentMethodCash
	}
	if !p.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if p.DeliveryType == "" {
		p.DeliveryType = DeliveryTypePickup
	}
	if !p.DeliveryType.Valid() {
		return nil, ErrInvalidDeliveryType
	}
	if p.PickupLocation == "" {
		p.PickupLocation = DefaultPickupLocation
	}
	if p.OrderSource == "" {
		p.OrderSource = OrderSourceMobile
	}

	return &Order{
		CustomerID:      p.CustomerID,
		SellerID:        p.SellerID,
		OrderDate:       p.Now,
		TotalPrice:      decimal.Zero,
		DiscountApplied: decimal.Zero,
		CashbackApplied: decimal.Zero,
		PaymentMethod:   p.PaymentMethod,
		PaymentStatus:   PaymentStatusPending,
		Status:          OrderStatusPending,
		DeliveryType:    p.DeliveryType,
		PickupLocation:  p.PickupLocation,
		OrderSource:     p.OrderSource,
		Notes:           p.Notes,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}, nil
}

// FinalPrice is what the customer pays after discounts
func (o *Order) FinalPrice() decimal.Decimal {
	return o.TotalPrice.Sub(o.DiscountApplied)
}

// IsOnlineOrder reports whether the order was placed without a seller
func (o *Order) IsOnlineOrder() bool {
	return o.SellerID == nil
}

// IsCompleted reports whether the order reached the customer
func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusDelivered
}

// CanBeCancelled reports whether the order has not progressed past confirmation
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// Item returns the line for productID
func (o *Order) Item(productID uint) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// AddItem adds quantity units of product, merging with an existing line.
// The product's stock is checked but not changed.
func (o *Order) AddItem(product *Product, quantity int, customPrice *decimal.Decimal) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotEditable
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if customPrice != nil && customPrice.IsNegative() {
		return ErrInvalidPrice
	}

	if item, ok := o.Item(product.ID); ok {
		newQty := item.Quantity + quantity
		if !product.CanOrder(newQty) {
			return product.insufficientStock(newQty)
		}
		if err := item.UpdateQuantity(newQty); err != nil {
			return err
		}
	} else {
		if !product.CanOrder(quantity) {
			return product.insufficientStock(quantity)
		}
		price := product.Price
		if customPrice != nil {
			price = *customPrice
		}
		o.Items = append(o.Items, newOrderItem(product.ID, quantity, price))
	}

	o.recalculate()
	return nil
}

// RemoveItem drops the line for productID. Missing lines are ignored.
func (o *Order) RemoveItem(productID uint) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotEditable
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			break
		}
	}
	o.recalculate()
	return nil
}

// ManualDiscount is the part of DiscountApplied granted on top of redeemed
// cashback
func (o *Order) ManualDiscount() decimal.Decimal {
	return o.DiscountApplied.Sub(o.CashbackApplied)
}

// ApplyDiscount replaces the manual discount. Redeemed cashback stays
// credited, and the sum of both may not exceed the order total. The result
// is spread over the lines, cheapest unit price first.
func (o *Order) ApplyDiscount(amount decimal.Decimal, reasonID *uint) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotEditable
	}
	amount = RoundMoney(amount)
	if amount.IsNegative() || o.CashbackApplied.Add(amount).GreaterThan(o.TotalPrice) {
		return ErrInvalidDiscount
	}
	o.DiscountApplied = o.CashbackApplied.Add(amount)
	o.DiscountReasonID = reasonID
	o.distributeDiscount()
	return nil
}

// RedeemCashback credits amount of redeemed cashback to the order discount,
// keeping any manual discount.
func (o *Order) RedeemCashback(amount decimal.Decimal) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotEditable
	}
	amount = RoundMoney(amount)
	manual := o.ManualDiscount()
	if amount.IsNegative() || amount.Add(manual).GreaterThan(o.TotalPrice) {
		return ErrInvalidDiscount
	}
	o.CashbackApplied = amount
	o.DiscountApplied = amount.Add(manual)
	o.distributeDiscount()
	return nil
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].TotalPrice)
	}
	o.TotalPrice = total
	if o.CashbackApplied.GreaterThan(total) {
		o.CashbackApplied = total
	}
	if o.DiscountApplied.GreaterThan(total) {
		o.DiscountApplied = total
	}
	o.distributeDiscount()
}

func (o *Order) distributeDiscount() {
	idx := make([]int, len(o.Items))
	for i := range o.Items {
		o.Items[i].DiscountApplied = decimal.Zero
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return o.Items[idx[a]].UnitPrice.LessThan(o.Items[idx[b]].UnitPrice)
	})

	remaining := o.DiscountApplied
	for _, i := range idx {
		if !remaining.IsPositive() {
			break
		}
		share := decimal.Min(remaining, o.Items[i].TotalPrice)
		o.Items[i].DiscountApplied = share
		remaining = remaining.Sub(share)
	}
}

// CanTransitionTo reports whether ChangeStatus would accept target
func (o *Order) CanTransitionTo(target OrderStatus) bool {
	from := o.Status
	if from.IsTerminal() || !target.Valid() {
		return false
	}
	if target == OrderStatusCancelled {
		return o.CanBeCancelled()
	}
	if statusRank[target] <= statusRank[from] {
		return false
	}
	switch target {
	case OrderStatusReadyForPickup:
		return o.DeliveryType == DeliveryTypePickup
	case OrderStatusShipped:
		return o.DeliveryType == DeliveryTypeDelivery
	}
	return true
}

// StatusChange describes a requested transition
type StatusChange struct {
	NewStatus OrderStatus
	Actor     Actor
	Notes     string
	At        time.Time
}

// ChangeStatus moves the order forward. Entering delivered accrues cashback
// under policy and finalizes sold counts on the catalog products.
func (o *Order) ChangeStatus(change StatusChange, policy *CashbackSetting, catalog Catalog) ([]Event, error) {
	if !change.NewStatus.Valid() {
		return nil, ErrInvalidStatus
	}
	if !change.Actor.Type.Valid() {
		return nil, ErrInvalidActor
	}
	if change.NewStatus == OrderStatusCancelled {
		return nil, ErrCancelViaStatus
	}
	if !o.CanTransitionTo(change.NewStatus) {
		return nil, NewInvalidTransition(o.Status, change.NewStatus)
	}

	var products []*Product
	if change.NewStatus == OrderStatusDelivered {
		var err error
		if products, err = catalog.require(o.Items); err != nil {
			return nil, err
		}
	}

	events := []Event{o.transition(change.NewStatus, change.Actor, change.Notes, change.At)}

	if change.NewStatus == OrderStatusDelivered {
		for i, p := range products {
			p.SoldCount += o.Items[i].Quantity
		}
		events = append(events, o.accrueCashback(policy, change.At)...)
	}
	return events, nil
}

// Cancel cancels a pending or confirmed order and returns its units to stock
func (o *Order) Cancel(actor Actor, reason string, at time.Time, catalog Catalog) ([]Event, error) {
	if !actor.Type.Valid() {
		return nil, ErrInvalidActor
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if !o.CanBeCancelled() {
		return nil, ErrOrderNotCancellable.WithDetails(map[string]string{"status": string(o.Status)})
	}
	products, err := catalog.require(o.Items)
	if err != nil {
		return nil, err
	}

	events := []Event{o.transition(OrderStatusCancelled, actor, reason, at)}
	for i, p := range products {
		events = append(events, p.UpdateStock(o.Items[i].Quantity, "order cancelled", at)...)
	}
	events = append(events, OrderCancelled{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Reason:     reason,
		At:         at,
	})
	return events, nil
}

func (o *Order) transition(to OrderStatus, actor Actor, notes string, at time.Time) Event {
	from := o.Status
	o.Status = to
	o.UpdatedAt = at
	o.StatusHistory = append(o.StatusHistory, OrderStatusHistory{
		OldStatus:   from,
		NewStatus:   to,
		ChangedBy:   actor.Type,
		ChangedByID: actor.ID,
		Notes:       notes,
		CreatedAt:   at,
	})
	return OrderStatusChanged{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		OldStatus:     from,
		NewStatus:     to,
		ChangedByID:   actor.ID,
		ChangedByType: actor.Type,
		At:            at,
	}
}

func (o *Order) accrueCashback(policy *CashbackSetting, at time.Time) []Event {
	amount := policy.CalculateCashback(o.FinalPrice())
	if !amount.IsPositive() {
		return nil
	}
	expiry := policy.ExpiryDate(at)
	o.CashbackTransactions = append(o.CashbackTransactions,
		NewEarnedCashback(o.CustomerID, o.ID, amount, expiry, at))

	ev := CashbackEarned{
		CustomerID: o.CustomerID,
		OrderID:    o.ID,
		Amount:     amount,
		At:         at,
	}
	if expiry != nil {
		ev.ExpiryDate = *expiry
	}
	return []Event{ev}
}

// Created returns the creation event for a persisted order
func (o *Order) Created() Event {
	return OrderCreated{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		TotalAmount:   o.TotalPrice,
		FinalAmount:   o.FinalPrice(),
		PaymentMethod: o.PaymentMethod,
		DeliveryType:  o.DeliveryType,
		At:            o.OrderDate,
	}
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	cp := *o
	cp.SellerID = clonePtr(o.SellerID)
	cp.DiscountReasonID = clonePtr(o.DiscountReasonID)
	cp.DeletedAt = clonePtr(o.DeletedAt)
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]OrderStatusHistory(nil), o.StatusHistory...)
	cp.CashbackTransactions = make([]CashbackTransaction, len(o.CashbackTransactions))
	for i, tx := range o.CashbackTransactions {
		cp.CashbackTransactions[i] = tx.Clone()
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
