package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange names
const (
	ExchangeOrders   = "orders.events"
	ExchangeDelivery = "delivery.events"
)

// Routing keys published on ExchangeOrders
const (
	RoutingKeyOrderCreated        = "order.created"
	RoutingKeyOrderStatusChanged  = "order.status_changed"
	RoutingKeyOrderCancelled      = "order.cancelled"
	RoutingKeyCashbackEarned      = "cashback.earned"
	RoutingKeyCashbackRedeemed    = "cashback.redeemed"
	RoutingKeyCashbackExpiring    = "cashback.expiring"
	RoutingKeyProductStockUpdated = "product.stock_updated"
	RoutingKeyProductOutOfStock   = "product.out_of_stock"
)

// Routing keys consumed from ExchangeDelivery
const (
	RoutingKeyDeliveryCompleted = "delivery.completed"
)

// SchemaVersion is stamped on every envelope
const SchemaVersion = "1.0"

// Envelope is the wire format shared by every event
type Envelope[T any] struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Payload   T         `json:"payload"`
}

// New wraps payload in an envelope
func New[T any](eventType string, occurredAt time.Time, traceID string, payload T) *Envelope[T] {
	return &Envelope[T]{
		Version:   SchemaVersion,
		EventType: eventType,
		Timestamp: occurredAt,
		TraceID:   traceID,
		Payload:   payload,
	}
}

// OrderCreatedPayload contains order data
type OrderCreatedPayload struct {
	OrderID       uint            `json:"order_id"`
	CustomerID    uint            `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaymentMethod string          `json:"payment_method"`
	DeliveryType  string          `json:"delivery_type"`
}

// OrderStatusChangedPayload describes one recorded transition
type OrderStatusChangedPayload struct {
	OrderID       uint   `json:"order_id"`
	CustomerID    uint   `json:"customer_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
	ChangedByID   uint   `json:"changed_by_id"`
	ChangedByType string `json:"changed_by_type"`
}

type OrderCancelledPayload struct {
	OrderID    uint   `json:"order_id"`
	CustomerID uint   `json:"customer_id"`
	Reason     string `json:"reason"`
}

// CashbackPayload is shared by earned, redeemed and expiring events.
// Redeemed events carry no expiry and expiring events no order.
type CashbackPayload struct {
	CustomerID    uint            `json:"customer_id"`
	OrderID       uint            `json:"order_id,omitempty"`
	TransactionID uint            `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
}

type StockUpdatedPayload struct {
	ProductID uint   `json:"product_id"`
	OldCount  int    `json:"old_count"`
	NewCount  int    `json:"new_count"`
	Reason    string `json:"reason"`
}

type OutOfStockPayload struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
}

// DeliveryCompletedPayload is published by the delivery service when a
// courier hands an order over
type DeliveryCompletedPayload struct {
	OrderID   uint      `json:"order_id"`
	PartnerID uint      `json:"partner_id"`
	Notes     string    `json:"notes"`
	Delivered time.Time `json:"delivered_at"`
}
