package domain

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// fulfillment order of the non-cancelled states
var statusRank = map[OrderStatus]int{
	OrderStatusPending:        1,
	OrderStatusConfirmed:      2,
	OrderStatusPreparing:      3,
	OrderStatusReadyForPickup: 4,
	OrderStatusShipped:        5,
	OrderStatusDelivered:      6,
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == OrderStatusCancelled
}

// IsTerminal reports whether no further transition is allowed from s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentMethod is how the customer pays for an order
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodPayme    PaymentMethod = "payme"
	PaymentMethodClick    PaymentMethod = "click"
	PaymentMethodUzcard   PaymentMethod = "uzcard"
	PaymentMethodHumo     PaymentMethod = "humo"
	PaymentMethodCashback PaymentMethod = "cashback"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodPayme, PaymentMethodClick,
		PaymentMethodUzcard, PaymentMethodHumo, PaymentMethodCashback:
		return true
	}
	return false
}

// PaymentStatus is the settlement state reported by the payment gateway
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// DeliveryType selects between library pickup and courier delivery
type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

// Valid reports whether t is a known delivery type
func (t DeliveryType) Valid() bool {
	return t == DeliveryTypePickup || t == DeliveryTypeDelivery
}

// ActorType identifies who triggered a status change
type ActorType string

const (
	ActorAdmin           ActorType = "admin"
	ActorSeller          ActorType = "seller"
	ActorCustomer        ActorType = "customer"
	ActorSystem          ActorType = "system"
	ActorDeliveryPartner ActorType = "delivery_partner"
)

// Valid reports whether a is a known actor type
func (a ActorType) Valid() bool {
	switch a {
	case ActorAdmin, ActorSeller, ActorCustomer, ActorSystem, ActorDeliveryPartner:
		return true
	}
	return false
}

// CanSetPrices reports whether a may override catalog prices on order lines
func (a ActorType) CanSetPrices() bool {
	return a == ActorAdmin || a == ActorSeller
}

// Actor is the principal performing an operation
type Actor struct {
	ID   uint
	Type ActorType
}

// SystemActor is used for transitions driven by background processes
var SystemActor = Actor{ID: 0, Type: ActorSystem}

// OrderSource records the channel an order was placed through
const (
	OrderSourceMobile = "mobile"
	OrderSourcePOS    = "pos_system"
)

// DefaultPickupLocation is used when the request does not name one
const DefaultPickupLocation = "main_library"
