package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/pkg/errors"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestProduct(id uint, price string, count int) *Product {
	return &Product{ID: id, Name: "book", Price: dec(price), Count: count, Status: ProductStatusActive}
}

func newTestOrder(t *testing.T, deliveryType DeliveryType) *Order {
	t.Helper()
	o, err := NewOrder(NewOrderParams{CustomerID: 7, DeliveryType: deliveryType, Now: testNow})
	require.NoError(t, err)
	return o
}

func assertOrderInvariants(t *testing.T, o *Order) {
	t.Helper()
	total, discounts := decimal.Zero, decimal.Zero
	for _, it := range o.Items {
		assert.True(t, it.TotalPrice.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))))
		assert.False(t, it.FinalPrice().IsNegative())
		total = total.Add(it.TotalPrice)
		discounts = discounts.Add(it.DiscountApplied)
	}
	assert.True(t, o.TotalPrice.Equal(total), "total %s != items %s", o.TotalPrice, total)
	assert.True(t, o.DiscountApplied.Equal(discounts), "discount %s != items %s", o.DiscountApplied, discounts)
	assert.False(t, o.DiscountApplied.IsNegative())
	assert.True(t, o.DiscountApplied.LessThanOrEqual(o.TotalPrice))
	assert.False(t, o.CashbackApplied.IsNegative())
	assert.True(t, o.CashbackApplied.LessThanOrEqual(o.DiscountApplied))
}

func TestNewOrder_Defaults(t *testing.T) {
	o, err := NewOrder(NewOrderParams{CustomerID: 1, Now: testNow})

	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Equal(t, PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, PaymentMethodCash, o.PaymentMethod)
	assert.Equal(t, DeliveryTypePickup, o.DeliveryType)
	assert.Equal(t, DefaultPickupLocation, o.PickupLocation)
	assert.Equal(t, OrderSourceMobile, o.OrderSource)
	assert.True(t, o.IsOnlineOrder())
	assert.True(t, o.TotalPrice.IsZero())
}

func TestNewOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params NewOrderParams
		want   error
	}{
		{"missing customer", NewOrderParams{}, ErrCustomerIDRequired},
		{"bad payment method", NewOrderParams{CustomerID: 1, PaymentMethod: "barter"}, ErrInvalidPaymentMethod},
		{"bad delivery type", NewOrderParams{CustomerID: 1, DeliveryType: "drone"}, ErrInvalidDeliveryType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddItem_MergesLinesAndKeepsSnapshot(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 10)

	require.NoError(t, o.AddItem(p, 2, nil))
	p.Price = dec("1500")
	require.NoError(t, o.AddItem(p, 3, nil))

	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.True(t, o.Items[0].UnitPrice.Equal(dec("1000")))
	assert.True(t, o.TotalPrice.Equal(dec("5000")))
	assert.Equal(t, 10, p.Count, "adding an item does not touch stock")
	assertOrderInvariants(t, o)
}

func TestAddItem_CustomPrice(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	price := dec("750.5")

	require.NoError(t, o.AddItem(newTestProduct(1, "1000", 5), 2, &price))

	assert.True(t, o.TotalPrice.Equal(dec("1501")))
}

func TestAddItem_Rejections(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 2)
	negative := dec("-1")

	assert.ErrorIs(t, o.AddItem(p, 0, nil), ErrInvalidQuantity)
	assert.ErrorIs(t, o.AddItem(p, 1, &negative), ErrInvalidPrice)

	err := o.AddItem(p, 3, nil)
	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))
	assert.Empty(t, o.Items)

	require.NoError(t, o.AddItem(p, 2, nil))
	err = o.AddItem(p, 1, nil)
	assert.True(t, errors.Is(err, errors.CodeInsufficientStock), "merged quantity exceeds stock")
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestApplyDiscount_GreedyCheapestFirst(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "10000", 5), 2, nil))
	require.NoError(t, o.AddItem(newTestProduct(2, "5000", 5), 1, nil))
	require.True(t, o.TotalPrice.Equal(dec("25000")))

	require.NoError(t, o.ApplyDiscount(dec("12000"), nil))

	expensive, _ := o.Item(1)
	cheap, _ := o.Item(2)
	assert.True(t, cheap.DiscountApplied.Equal(dec("5000")))
	assert.True(t, expensive.DiscountApplied.Equal(dec("7000")))
	assert.True(t, o.FinalPrice().Equal(dec("13000")))
	assertOrderInvariants(t, o)
}

func TestApplyDiscount_ReplacesPreviousDiscount(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "10000", 5), 2, nil))
	require.NoError(t, o.AddItem(newTestProduct(2, "5000", 5), 1, nil))
	require.NoError(t, o.ApplyDiscount(dec("12000"), nil))

	require.NoError(t, o.ApplyDiscount(dec("1000"), nil))

	cheap, _ := o.Item(2)
	expensive, _ := o.Item(1)
	assert.True(t, cheap.DiscountApplied.Equal(dec("1000")))
	assert.True(t, expensive.DiscountApplied.IsZero())
	assertOrderInvariants(t, o)
}

func TestApplyDiscount_KeepsRedeemedCashback(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "10000", 5), 2, nil))
	require.NoError(t, o.RedeemCashback(dec("5000")))

	require.NoError(t, o.ApplyDiscount(dec("1000"), nil))

	assert.True(t, o.CashbackApplied.Equal(dec("5000")))
	assert.True(t, o.ManualDiscount().Equal(dec("1000")))
	assert.True(t, o.DiscountApplied.Equal(dec("6000")))
	assert.True(t, o.FinalPrice().Equal(dec("14000")))
	assertOrderInvariants(t, o)

	assert.ErrorIs(t, o.ApplyDiscount(dec("15000.01"), nil), ErrInvalidDiscount, "cashback plus discount exceeds total")
	require.NoError(t, o.ApplyDiscount(decimal.Zero, nil))
	assert.True(t, o.DiscountApplied.Equal(dec("5000")), "removing the manual discount keeps the cashback")
}

func TestRedeemCashback_KeepsManualDiscount(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "10000", 2), 2, nil))
	require.NoError(t, o.ApplyDiscount(dec("3000"), nil))

	require.NoError(t, o.RedeemCashback(dec("2000")))

	assert.True(t, o.DiscountApplied.Equal(dec("5000")))
	assert.True(t, o.ManualDiscount().Equal(dec("3000")))
	assert.ErrorIs(t, o.RedeemCashback(dec("17000.01")), ErrInvalidDiscount)
	assertOrderInvariants(t, o)
}

func TestApplyDiscount_Bounds(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "100", 5), 1, nil))

	assert.ErrorIs(t, o.ApplyDiscount(dec("-1"), nil), ErrInvalidDiscount)
	assert.ErrorIs(t, o.ApplyDiscount(dec("100.01"), nil), ErrInvalidDiscount)
	require.NoError(t, o.ApplyDiscount(dec("100"), nil))
	assert.True(t, o.FinalPrice().IsZero())
	assertOrderInvariants(t, o)
}

func TestRemoveItem_ClampsDiscount(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "10000", 5), 2, nil))
	require.NoError(t, o.AddItem(newTestProduct(2, "5000", 5), 1, nil))
	require.NoError(t, o.ApplyDiscount(dec("12000"), nil))

	require.NoError(t, o.RemoveItem(1))

	assert.True(t, o.TotalPrice.Equal(dec("5000")))
	assert.True(t, o.DiscountApplied.Equal(dec("5000")))
	assertOrderInvariants(t, o)

	require.NoError(t, o.RemoveItem(99))
	assert.Len(t, o.Items, 1)
}

func TestEditsRejectedAfterPending(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "100", 5)
	require.NoError(t, o.AddItem(p, 1, nil))
	_, err := o.ChangeStatus(StatusChange{NewStatus: OrderStatusConfirmed, Actor: SystemActor, At: testNow}, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, o.AddItem(p, 1, nil), ErrOrderNotEditable)
	assert.ErrorIs(t, o.RemoveItem(1), ErrOrderNotEditable)
	assert.ErrorIs(t, o.ApplyDiscount(dec("1"), nil), ErrOrderNotEditable)
}

func TestChangeStatus_TransitionTable(t *testing.T) {
	tests := []struct {
		name     string
		delivery DeliveryType
		path     []OrderStatus
		next     OrderStatus
		allowed  bool
	}{
		{"pending to confirmed", DeliveryTypePickup, nil, OrderStatusConfirmed, true},
		{"skip ahead", DeliveryTypePickup, nil, OrderStatusPreparing, true},
		{"same status", DeliveryTypePickup, nil, OrderStatusPending, false},
		{"backwards", DeliveryTypePickup, []OrderStatus{OrderStatusConfirmed, OrderStatusPreparing}, OrderStatusConfirmed, false},
		{"pickup ready", DeliveryTypePickup, []OrderStatus{OrderStatusPreparing}, OrderStatusReadyForPickup, true},
		{"pickup cannot ship", DeliveryTypePickup, []OrderStatus{OrderStatusPreparing}, OrderStatusShipped, false},
		{"delivery ships", DeliveryTypeDelivery, []OrderStatus{OrderStatusPreparing}, OrderStatusShipped, true},
		{"delivery cannot be ready for pickup", DeliveryTypeDelivery, []OrderStatus{OrderStatusPreparing}, OrderStatusReadyForPickup, false},
		{"nothing after delivered", DeliveryTypeDelivery, []OrderStatus{OrderStatusShipped, OrderStatusDelivered}, OrderStatusShipped, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(t, tt.delivery)
			catalog := NewCatalog()
			for _, s := range tt.path {
				_, err := o.ChangeStatus(StatusChange{NewStatus: s, Actor: SystemActor, At: testNow}, nil, catalog)
				require.NoError(t, err)
			}
			before := len(o.StatusHistory)

			events, err := o.ChangeStatus(StatusChange{NewStatus: tt.next, Actor: SystemActor, At: testNow}, nil, catalog)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.next, o.Status)
				require.Len(t, o.StatusHistory, before+1)
				require.NotEmpty(t, events)
				assert.Equal(t, EventOrderStatusChanged, events[0].EventName())
			} else {
				assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "got %v", err)
				assert.Len(t, o.StatusHistory, before)
				assert.Empty(t, events)
			}
		})
	}
}

func TestChangeStatus_CancelledMustUseCancel(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)

	_, err := o.ChangeStatus(StatusChange{NewStatus: OrderStatusCancelled, Actor: SystemActor, At: testNow}, nil, nil)

	assert.ErrorIs(t, err, ErrCancelViaStatus)
	assert.Equal(t, OrderStatusPending, o.Status)
}

func TestChangeStatus_RejectsUnknownValues(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)

	_, err := o.ChangeStatus(StatusChange{NewStatus: "lost", Actor: SystemActor}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = o.ChangeStatus(StatusChange{NewStatus: OrderStatusConfirmed, Actor: Actor{Type: "robot"}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestChangeStatus_HistoryRecordsActor(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	seller := Actor{ID: 42, Type: ActorSeller}

	_, err := o.ChangeStatus(StatusChange{NewStatus: OrderStatusConfirmed, Actor: seller, Notes: "ok", At: testNow}, nil, nil)

	require.NoError(t, err)
	require.Len(t, o.StatusHistory, 1)
	h := o.StatusHistory[0]
	assert.Equal(t, OrderStatusPending, h.OldStatus)
	assert.Equal(t, OrderStatusConfirmed, h.NewStatus)
	assert.Equal(t, ActorSeller, h.ChangedBy)
	assert.Equal(t, uint(42), h.ChangedByID)
	assert.Equal(t, "ok", h.Notes)
}

func deliver(t *testing.T, o *Order, policy *CashbackSetting, catalog Catalog, at time.Time) []Event {
	t.Helper()
	events, err := o.ChangeStatus(StatusChange{NewStatus: OrderStatusDelivered, Actor: SystemActor, At: at}, policy, catalog)
	require.NoError(t, err)
	return events
}

func TestDelivered_AccruesCashback(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "50000", 5)
	require.NoError(t, o.AddItem(p, 2, nil))
	policy := &CashbackSetting{
		Percentage:         dec("2"),
		ValidityPeriodDays: 30,
		MinimumOrderAmount: dec("10000"),
		IsActive:           true,
	}
	deliveredAt := testNow.Add(48 * time.Hour)

	events := deliver(t, o, policy, NewCatalog(p), deliveredAt)

	require.Len(t, o.CashbackTransactions, 1)
	tx := o.CashbackTransactions[0]
	assert.Equal(t, CashbackTypeEarned, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("2000")))
	require.NotNil(t, tx.ExpiryDate)
	assert.True(t, tx.ExpiryDate.Equal(deliveredAt.AddDate(0, 0, 30)))
	assert.Equal(t, 2, p.SoldCount)

	require.Len(t, events, 2)
	earned, ok := events[1].(CashbackEarned)
	require.True(t, ok)
	assert.True(t, earned.Amount.Equal(dec("2000")))
}

func TestDelivered_NoAccrual(t *testing.T) {
	tests := []struct {
		name   string
		policy *CashbackSetting
	}{
		{"no policy", nil},
		{"inactive", &CashbackSetting{Percentage: dec("2"), ValidityPeriodDays: 30, IsActive: false}},
		{"below minimum", &CashbackSetting{Percentage: dec("2"), ValidityPeriodDays: 30, MinimumOrderAmount: dec("1000"), IsActive: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(t, DeliveryTypePickup)
			p := newTestProduct(1, "999.99", 5)
			require.NoError(t, o.AddItem(p, 1, nil))

			events := deliver(t, o, tt.policy, NewCatalog(p), testNow)

			assert.Empty(t, o.CashbackTransactions)
			assert.Len(t, events, 1)
			assert.Equal(t, 1, p.SoldCount)
		})
	}
}

func TestDelivered_NeverExpiringCashback(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 5)
	require.NoError(t, o.AddItem(p, 1, nil))
	policy := &CashbackSetting{Percentage: dec("5"), IsActive: true}

	deliver(t, o, policy, NewCatalog(p), testNow)

	require.Len(t, o.CashbackTransactions, 1)
	assert.Nil(t, o.CashbackTransactions[0].ExpiryDate)
	assert.True(t, o.CashbackTransactions[0].Amount.Equal(dec("50")))
}

func TestDelivered_MissingProductLeavesOrderUntouched(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "1000", 5), 1, nil))

	_, err := o.ChangeStatus(StatusChange{NewStatus: OrderStatusDelivered, Actor: SystemActor, At: testNow}, nil, NewCatalog())

	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Empty(t, o.StatusHistory)
}

func TestCancel_RestoresStock(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 3)
	require.NoError(t, o.AddItem(p, 3, nil))
	_, err := p.Take(3, "order placed", testNow)
	require.NoError(t, err)
	require.Equal(t, 0, p.Count)
	require.Equal(t, ProductStatusOutOfStock, p.Status)

	events, err := o.Cancel(Actor{ID: 7, Type: ActorCustomer}, "changed my mind", testNow, NewCatalog(p))

	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, o.Status)
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, ProductStatusActive, p.Status)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, "changed my mind", o.StatusHistory[0].Notes)

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.EventName()
	}
	assert.Equal(t, []string{EventOrderStatusChanged, EventProductStockUpdated, EventOrderCancelled}, names)
}

func TestCancel_Rejections(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 3)
	require.NoError(t, o.AddItem(p, 1, nil))

	_, err := o.Cancel(SystemActor, "  ", testNow, NewCatalog(p))
	assert.ErrorIs(t, err, ErrReasonRequired)

	for _, s := range []OrderStatus{OrderStatusPreparing} {
		_, err := o.ChangeStatus(StatusChange{NewStatus: s, Actor: SystemActor, At: testNow}, nil, nil)
		require.NoError(t, err)
	}
	_, err = o.Cancel(SystemActor, "too late", testNow, NewCatalog(p))
	assert.ErrorIs(t, err, ErrOrderNotCancellable)
	assert.Equal(t, 3, p.Count)
}

func TestCancel_Twice(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	p := newTestProduct(1, "1000", 3)
	require.NoError(t, o.AddItem(p, 1, nil))
	_, err := o.Cancel(SystemActor, "first", testNow, NewCatalog(p))
	require.NoError(t, err)

	_, err = o.Cancel(SystemActor, "second", testNow, NewCatalog(p))

	assert.ErrorIs(t, err, ErrOrderNotCancellable)
	assert.Equal(t, 4, p.Count)
}

func TestClone_IsDeep(t *testing.T) {
	o := newTestOrder(t, DeliveryTypePickup)
	require.NoError(t, o.AddItem(newTestProduct(1, "1000", 3), 1, nil))
	exp := testNow.Add(time.Hour)
	o.CashbackTransactions = []CashbackTransaction{{ID: 1, ExpiryDate: &exp}}

	cp := o.Clone()
	cp.Items[0].Quantity = 9
	*cp.CashbackTransactions[0].ExpiryDate = testNow

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.True(t, o.CashbackTransactions[0].ExpiryDate.Equal(exp))
}
