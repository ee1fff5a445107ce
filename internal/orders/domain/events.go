package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names, also used as routing keys on the events exchange
const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderCancelled      = "order.cancelled"
	EventCashbackEarned      = "cashback.earned"
	EventCashbackRedeemed    = "cashback.redeemed"
	EventCashbackExpiring    = "cashback.expiring"
	EventProductStockUpdated = "product.stock_updated"
	EventProductOutOfStock   = "product.out_of_stock"
)

// Event is a fact produced by a state-changing domain operation.
// Operations return events to their caller; dispatch happens after commit.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// OrderCreated is emitted once an order has been placed
type OrderCreated struct {
	OrderID       uint
	CustomerID    uint
	TotalAmount   decimal.Decimal
	FinalAmount   decimal.Decimal
	PaymentMethod PaymentMethod
	DeliveryType  DeliveryType
	At            time.Time
}

func (e OrderCreated) EventName() string    { return EventOrderCreated }
func (e OrderCreated) OccurredAt() time.Time { return e.At }

// OrderStatusChanged is emitted for every recorded status transition
type OrderStatusChanged struct {
	OrderID       uint
	CustomerID    uint
	OldStatus     OrderStatus
	NewStatus     OrderStatus
	ChangedByID   uint
	ChangedByType ActorType
	At            time.Time
}

func (e OrderStatusChanged) EventName() string    { return EventOrderStatusChanged }
func (e OrderStatusChanged) OccurredAt() time.Time { return e.At }

// OrderCancelled is emitted after stock has been restored for a cancelled order
type OrderCancelled struct {
	OrderID    uint
	CustomerID uint
	Reason     string
	At         time.Time
}

func (e OrderCancelled) EventName() string    { return EventOrderCancelled }
func (e OrderCancelled) OccurredAt() time.Time { return e.At }

// CashbackEarned is emitted when delivery accrues cashback
type CashbackEarned struct {
	CustomerID uint
	OrderID    uint
	Amount     decimal.Decimal
	ExpiryDate time.Time
	At         time.Time
}

func (e CashbackEarned) EventName() string    { return EventCashbackEarned }
func (e CashbackEarned) OccurredAt() time.Time { return e.At }

// CashbackRedeemed is emitted when an order consumes cashback
type CashbackRedeemed struct {
	CustomerID uint
	OrderID    uint
	Amount     decimal.Decimal
	At         time.Time
}

func (e CashbackRedeemed) EventName() string    { return EventCashbackRedeemed }
func (e CashbackRedeemed) OccurredAt() time.Time { return e.At }

// CashbackExpiring reminds a customer about cashback that will soon lapse
type CashbackExpiring struct {
	CustomerID    uint
	TransactionID uint
	Amount        decimal.Decimal
	ExpiryDate    time.Time
	At            time.Time
}

func (e CashbackExpiring) EventName() string    { return EventCashbackExpiring }
func (e CashbackExpiring) OccurredAt() time.Time { return e.At }

// ProductStockUpdated is emitted on every stock adjustment
type ProductStockUpdated struct {
	ProductID uint
	OldCount  int
	NewCount  int
	Reason    string
	At        time.Time
}

func (e ProductStockUpdated) EventName() string    { return EventProductStockUpdated }
func (e ProductStockUpdated) OccurredAt() time.Time { return e.At }

// ProductOutOfStock is emitted when a decrement empties the stock
type ProductOutOfStock struct {
	ProductID uint
	Name      string
	At        time.Time
}

func (e ProductOutOfStock) EventName() string    { return EventProductOutOfStock }
func (e ProductOutOfStock) OccurredAt() time.Time { return e.At }
