package domain

import "marketplace/pkg/errors"

// Domain-specific errors
var (
	ErrCustomerIDRequired     = errors.NewValidation("customer_id is required", nil)
	ErrItemsRequired          = errors.NewValidation("order must contain at least one item", nil)
	ErrInvalidQuantity        = errors.NewValidation("quantity must be greater than 0", nil)
	ErrInvalidPrice           = errors.NewValidation("unit price cannot be negative", nil)
	ErrInvalidDiscount        = errors.NewValidation("invalid discount amount", nil)
	ErrInvalidCashbackUse     = errors.NewValidation("cashback amount must be greater than 0", nil)
	ErrInvalidStatus          = errors.NewValidation("unknown order status", nil)
	ErrInvalidPaymentMethod   = errors.NewValidation("unknown payment method", nil)
	ErrInvalidDeliveryType    = errors.NewValidation("unknown delivery type", nil)
	ErrInvalidActor           = errors.NewValidation("unknown actor type", nil)
	ErrReasonRequired         = errors.NewValidation("cancellation reason is required", nil)
	ErrInvalidCashbackSetting = errors.NewValidation("cashback setting out of range", nil)

	ErrInsufficientStock    = errors.NewInsufficientStock("not enough stock", nil)
	ErrInsufficientCashback = errors.NewInsufficientCashback("not enough cashback", nil)

	ErrOrderNotEditable    = errors.NewInvalidTransition("order items and discount can only change while pending", nil)
	ErrOrderNotCancellable = errors.NewInvalidTransition("order cannot be cancelled", nil)
	ErrCancelViaStatus     = errors.NewInvalidTransition("cancellation must go through cancel", nil)
	ErrCashbackNotUsable   = errors.NewInvalidTransition("cashback cannot be used", nil)

	ErrVersionConflict = errors.NewConcurrencyConflict("record was modified concurrently", nil)
)

// NewOrderNotFound creates a not found error with the order ID
func NewOrderNotFound(id uint) error {
	return errors.NewNotFound("order", id)
}

// NewProductNotFound creates a not found error with the product ID
func NewProductNotFound(id uint) error {
	return errors.NewNotFound("product", id)
}

// NewCustomerNotFound creates a not found error with the customer ID
func NewCustomerNotFound(id uint) error {
	return errors.NewNotFound("customer", id)
}

// NewSellerNotFound creates a not found error with the seller ID
func NewSellerNotFound(id uint) error {
	return errors.NewNotFound("seller", id)
}

// NewDiscountReasonNotFound creates a not found error with the reason ID
func NewDiscountReasonNotFound(id uint) error {
	return errors.NewNotFound("discount reason", id)
}

// NewInvalidTransition describes a rejected status change
func NewInvalidTransition(from, to OrderStatus) error {
	return errors.NewInvalidTransition("order status transition not allowed", map[string]string{
		"from": string(from),
		"to":   string(to),
	})
}
