package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketplace/internal/orders/application"
	"marketplace/internal/orders/domain"
	"marketplace/pkg/errors"
	"marketplace/pkg/middleware"
)

// HTTPHandler handles HTTP requests for orders and cashback
type HTTPHandler struct {
	useCase *application.OrderUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.OrderUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the order and cashback routes
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/status", h.ChangeStatus)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.POST("/:id/discount", h.ApplyDiscount)
	}

	customers := r.Group("/customers/:id")
	{
		customers.GET("/orders", h.ListCustomerOrders)
		customers.GET("/cashback", h.ListCustomerCashback)
		customers.GET("/cashback/available", h.GetAvailableCashback)
	}
}

// OrderItemRequest is one requested line
type OrderItemRequest struct {
	ProductID uint             `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// CreateOrderRequest is the request body for creating an order
type CreateOrderRequest struct {
	CustomerID     uint               `json:"customer_id"`
	SellerID       *uint              `json:"seller_id"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod  string             `json:"payment_method"`
	DeliveryType   string             `json:"delivery_type"`
	PickupLocation string             `json:"pickup_location"`
	OrderSource    string             `json:"order_source"`
	Notes          string             `json:"notes"`
	CashbackToUse  decimal.Decimal    `json:"cashback_to_use"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ApplyDiscountRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	DiscountReasonID *uint           `json:"discount_reason_id"`
}

// OrderItemResponse is an order line as returned by the API
type OrderItemResponse struct {
	ID                 uint            `json:"id"`
	ProductID          uint            `json:"product_id"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	DiscountApplied    decimal.Decimal `json:"discount_applied"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	FinalPrice         decimal.Decimal `json:"final_price"`
}

type StatusHistoryResponse struct {
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	ChangedBy   string `json:"changed_by"`
	ChangedByID uint   `json:"changed_by_id"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// OrderResponse is the response body for order operations
type OrderResponse struct {
	ID               uint                    `json:"id"`
	CustomerID       uint                    `json:"customer_id"`
	SellerID         *uint                   `json:"seller_id,omitempty"`
	Status           string                  `json:"status"`
	PaymentMethod    string                  `json:"payment_method"`
	PaymentStatus    string                  `json:"payment_status"`
	DeliveryType     string                  `json:"delivery_type"`
	PickupLocation   string                  `json:"pickup_location,omitempty"`
	OrderSource      string                  `json:"order_source"`
	Notes            string                  `json:"notes,omitempty"`
	TotalPrice       decimal.Decimal         `json:"total_price"`
	DiscountApplied  decimal.Decimal         `json:"discount_applied"`
	CashbackApplied  decimal.Decimal         `json:"cashback_applied"`
	DiscountReasonID *uint                   `json:"discount_reason_id,omitempty"`
	FinalPrice       decimal.Decimal         `json:"final_price"`
	Items            []OrderItemResponse     `json:"items"`
	StatusHistory    []StatusHistoryResponse `json:"status_history,omitempty"`
	OrderDate        string                  `json:"order_date"`
	Version          int                     `json:"version"`
}

// CashbackResponse is one ledger entry
type CashbackResponse struct {
	ID         uint            `json:"id"`
	OrderID    uint            `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	ExpiryDate *string         `json:"expiry_date,omitempty"`
	IsUsed     bool            `json:"is_used"`
	UsedDate   *string         `json:"used_date,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// CreateOrder handles POST /orders
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	actor, err := requireActor(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}
	if actor.Type == domain.ActorCustomer {
		if req.CustomerID == 0 {
			req.CustomerID = actor.ID
		}
		if req.CustomerID != actor.ID {
			c.Error(errors.NewForbidden("customers can only order for themselves"))
			return
		}
	}

	items := make([]application.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = application.ItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	output, err := h.useCase.CreateOrder(c.Request.Context(), application.CreateOrderInput{
		CustomerID:     req.CustomerID,
		SellerID:       req.SellerID,
		Items:          items,
		PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
		DeliveryType:   domain.DeliveryType(req.DeliveryType),
		PickupLocation: req.PickupLocation,
		OrderSource:    req.OrderSource,
		Notes:          req.Notes,
		CashbackToUse:  req.CashbackToUse,
		Actor:          actor,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"order":         toOrderResponse(output.Order),
			"cashback_used": output.CashbackUsed,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetOrder handles GET /orders/:id
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := requireActor(c); err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.GetOrder(c.Request.Context(), application.GetOrderInput{ID: id})
	if err != nil {
		c.Error(err)
		return
	}
	if err := authorizeCustomer(c, output.Order.CustomerID); err != nil {
		c.Error(err)
		return
	}

	h.respondOrder(c, http.StatusOK, output.Order)
}

// ChangeStatus handles POST /orders/:id/status
func (h *HTTPHandler) ChangeStatus(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	actor, err := requireActor(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.ChangeOrderStatus(c.Request.Context(), application.ChangeStatusInput{
		OrderID: id,
		Status:  domain.OrderStatus(req.Status),
		Actor:   actor,
		Notes:   req.Notes,
	})
	if err != nil {
		c.Error(err)
		return
	}

	h.respondOrder(c, http.StatusOK, output.Order)
}

// CancelOrder handles POST /orders/:id/cancel
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	actor, err := requireActor(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.CancelOrder(c.Request.Context(), application.CancelOrderInput{
		OrderID: id,
		Actor:   actor,
		Reason:  req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}

	h.respondOrder(c, http.StatusOK, output.Order)
}

// ApplyDiscount handles POST /orders/:id/discount
func (h *HTTPHandler) ApplyDiscount(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	actor, err := requireActor(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.ApplyOrderDiscount(c.Request.Context(), application.ApplyDiscountInput{
		OrderID:  id,
		Amount:   req.Amount,
		ReasonID: req.DiscountReasonID,
		Actor:    actor,
	})
	if err != nil {
		c.Error(err)
		return
	}

	h.respondOrder(c, http.StatusOK, output.Order)
}

// ListCustomerOrders handles GET /customers/:id/orders
func (h *HTTPHandler) ListCustomerOrders(c *gin.Context) {
	customerID, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := authorizeCustomer(c, customerID); err != nil {
		c.Error(err)
		return
	}

	orders, err := h.useCase.ListCustomerOrders(c.Request.Context(), customerID)
	if err != nil {
		c.Error(err)
		return
	}

	data := make([]OrderResponse, len(orders))
	for i, o := range orders {
		data[i] = toOrderResponse(o)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ListCustomerCashback handles GET /customers/:id/cashback
func (h *HTTPHandler) ListCustomerCashback(c *gin.Context) {
	customerID, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := authorizeCustomer(c, customerID); err != nil {
		c.Error(err)
		return
	}

	ledger, err := h.useCase.ListCustomerCashback(c.Request.Context(), customerID)
	if err != nil {
		c.Error(err)
		return
	}

	data := make([]CashbackResponse, len(ledger))
	for i := range ledger {
		data[i] = toCashbackResponse(&ledger[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetAvailableCashback handles GET /customers/:id/cashback/available
func (h *HTTPHandler) GetAvailableCashback(c *gin.Context) {
	customerID, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := authorizeCustomer(c, customerID); err != nil {
		c.Error(err)
		return
	}

	balance, err := h.useCase.GetAvailableCashback(c.Request.Context(), customerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"customer_id": customerID,
			"available":   balance,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func (h *HTTPHandler) respondOrder(c *gin.Context, status int, order *domain.Order) {
	c.JSON(status, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.NewValidation("invalid id", map[string]string{"id": c.Param("id")})
	}
	return uint(id), nil
}

// requireActor converts the identity headers into a domain actor
func requireActor(c *gin.Context) (domain.Actor, error) {
	a, ok := middleware.GetActor(c)
	if !ok {
		return domain.Actor{}, errors.NewUnauthorized("actor identity headers are required")
	}
	actor := domain.Actor{ID: a.ID, Type: domain.ActorType(a.Type)}
	if !actor.Type.Valid() {
		return domain.Actor{}, domain.ErrInvalidActor
	}
	return actor, nil
}

// authorizeCustomer requires an identified caller and keeps customers out of
// other customers' data
func authorizeCustomer(c *gin.Context, customerID uint) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if actor.Type == domain.ActorCustomer && actor.ID != customerID {
		return errors.NewForbidden("access to another customer's data")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		items[i] = OrderItemResponse{
			ID:                 it.ID,
			ProductID:          it.ProductID,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			TotalPrice:         it.TotalPrice,
			DiscountApplied:    it.DiscountApplied,
			DiscountPercentage: it.DiscountPercentage(),
			FinalPrice:         it.FinalPrice(),
		}
	}

	var history []StatusHistoryResponse
	for _, h := range o.StatusHistory {
		history = append(history, StatusHistoryResponse{
			OldStatus:   string(h.OldStatus),
			NewStatus:   string(h.NewStatus),
			ChangedBy:   string(h.ChangedBy),
			ChangedByID: h.ChangedByID,
			Notes:       h.Notes,
			CreatedAt:   formatTime(h.CreatedAt),
		})
	}

	return OrderResponse{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		SellerID:         o.SellerID,
		Status:           string(o.Status),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		DeliveryType:     string(o.DeliveryType),
		PickupLocation:   o.PickupLocation,
		OrderSource:      o.OrderSource,
		Notes:            o.Notes,
		TotalPrice:       o.TotalPrice,
		DiscountApplied:  o.DiscountApplied,
		CashbackApplied:  o.CashbackApplied,
		DiscountReasonID: o.DiscountReasonID,
		FinalPrice:       o.FinalPrice(),
		Items:            items,
		StatusHistory:    history,
		OrderDate:        formatTime(o.OrderDate),
		Version:          o.Version,
	}
}

func toCashbackResponse(tx *domain.CashbackTransaction) CashbackResponse {
	return CashbackResponse{
		ID:         tx.ID,
		OrderID:    tx.OrderID,
		Amount:     tx.Amount,
		Type:       string(tx.Type),
		ExpiryDate: formatTimePtr(tx.ExpiryDate),
		IsUsed:     tx.IsUsed,
		UsedDate:   formatTimePtr(tx.UsedDate),
		CreatedAt:  formatTime(tx.CreatedAt),
	}
}
