package adapters

import (
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/orders/domain"
)

// OrderModel is the GORM model for orders (persistence layer)
type OrderModel struct {
	ID               uint                      `gorm:"primaryKey"`
	CustomerID       uint                      `gorm:"index;not null"`
	SellerID         *uint                     `gorm:"index"`
	OrderDate        time.Time                 `gorm:"not null"`
	TotalPrice       decimal.Decimal           `gorm:"type:numeric(18,2);not null"`
	DiscountApplied  decimal.Decimal           `gorm:"type:numeric(18,2);not null"`
	CashbackApplied  decimal.Decimal           `gorm:"type:numeric(18,2);not null;default:0"`
	DiscountReasonID *uint                     `gorm:"index"`
	PaymentMethod    string                    `gorm:"size:20;not null"`
	PaymentStatus    string                    `gorm:"size:20;not null;default:'pending'"`
	Status           string                    `gorm:"size:20;index;not null;default:'pending'"`
	DeliveryType     string                    `gorm:"size:20;not null"`
	PickupLocation   string                    `gorm:"size:100"`
	OrderSource      string                    `gorm:"size:20;not null;default:'mobile'"`
	Notes            string                    `gorm:"size:1000"`
	Version          int                       `gorm:"not null;default:0"`
	CreatedAt        time.Time                 `gorm:"autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"autoUpdateTime"`
	DeletedAt        *time.Time                `gorm:"index"`
	Items            []OrderItemModel          `gorm:"foreignKey:OrderID"`
	History          []OrderStatusHistoryModel `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is the GORM model for order lines
type OrderItemModel struct {
	ID              uint            `gorm:"primaryKey"`
	OrderID         uint            `gorm:"index;not null"`
	ProductID       uint            `gorm:"index;not null"`
	Quantity        int             `gorm:"not null"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	DiscountApplied decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(18,2);not null"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderStatusHistoryModel is the GORM model for status history rows
type OrderStatusHistoryModel struct {
	ID          uint      `gorm:"primaryKey"`
	OrderID     uint      `gorm:"index;not null"`
	OldStatus   string    `gorm:"size:20;not null"`
	NewStatus   string    `gorm:"size:20;not null"`
	ChangedBy   string    `gorm:"size:20;not null"`
	ChangedByID uint      `gorm:"not null"`
	Notes       string    `gorm:"size:500"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (OrderStatusHistoryModel) TableName() string {
	return "order_status_history"
}

// ProductModel is the stock-relevant projection of the products table
type ProductModel struct {
	ID        uint            `gorm:"primaryKey"`
	Name      string          `gorm:"size:200;not null"`
	Price     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Count     int             `gorm:"not null;default:0"`
	Status    string          `gorm:"size:20;not null;default:'active'"`
	SoldCount int             `gorm:"not null;default:0"`
	Version   int             `gorm:"not null;default:0"`
	DeletedAt *time.Time      `gorm:"index"`
}

func (ProductModel) TableName() string {
	return "products"
}

// CashbackTransactionModel is the GORM model for ledger entries
type CashbackTransactionModel struct {
	ID         uint            `gorm:"primaryKey"`
	CustomerID uint            `gorm:"index:idx_cashback_customer;not null"`
	OrderID    uint            `gorm:"index;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Type       string          `gorm:"size:10;not null"`
	ExpiryDate *time.Time      `gorm:"index"`
	IsUsed     bool            `gorm:"not null;default:false"`
	UsedDate   *time.Time
	Version    int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (CashbackTransactionModel) TableName() string {
	return "cashback_transactions"
}

// CashbackSettingModel is the GORM model for the cashback policy
type CashbackSettingModel struct {
	ID                 uint            `gorm:"primaryKey"`
	Percentage         decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	ValidityPeriodDays int             `gorm:"not null"`
	MinimumOrderAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	IsActive           bool            `gorm:"not null"`
	CreatedAt          time.Time       `gorm:"autoCreateTime"`
}

func (CashbackSettingModel) TableName() string {
	return "cashback_settings"
}

// CustomerModel and SellerModel expose only what orders check
type CustomerModel struct {
	ID        uint       `gorm:"primaryKey"`
	IsActive  bool       `gorm:"not null"`
	DeletedAt *time.Time `gorm:"index"`
}

func (CustomerModel) TableName() string {
	return "customers"
}

type SellerModel struct {
	ID        uint       `gorm:"primaryKey"`
	IsActive  bool       `gorm:"not null"`
	DeletedAt *time.Time `gorm:"index"`
}

func (SellerModel) TableName() string {
	return "sellers"
}

// DiscountReasonModel is the GORM model for discount reasons
type DiscountReasonModel struct {
	ID                 uint            `gorm:"primaryKey"`
	Name               string          `gorm:"size:100;not null"`
	IsActive           bool            `gorm:"not null"`
	UsageCount         int             `gorm:"not null;default:0"`
	TotalDiscountGiven decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Version            int             `gorm:"not null;default:0"`
	DeletedAt          *time.Time      `gorm:"index"`
}

func (DiscountReasonModel) TableName() string {
	return "discount_reasons"
}

// AllModels lists every model for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&OrderModel{},
		&OrderItemModel{},
		&OrderStatusHistoryModel{},
		&ProductModel{},
		&CashbackTransactionModel{},
		&CashbackSettingModel{},
		&CustomerModel{},
		&SellerModel{},
		&DiscountReasonModel{},
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		SellerID:         o.SellerID,
		OrderDate:        o.OrderDate,
		TotalPrice:       o.TotalPrice,
		DiscountApplied:  o.DiscountApplied,
		CashbackApplied:  o.CashbackApplied,
		DiscountReasonID: o.DiscountReasonID,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		Status:           string(o.Status),
		DeliveryType:     string(o.DeliveryType),
		PickupLocation:   o.PickupLocation,
		OrderSource:      o.OrderSource,
		Notes:            o.Notes,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		DeletedAt:        o.DeletedAt,
	}
}

func toOrderDomain(m *OrderModel, cashback []CashbackTransactionModel) *domain.Order {
	o := &domain.Order{
		ID:               m.ID,
		CustomerID:       m.CustomerID,
		SellerID:         m.SellerID,
		OrderDate:        m.OrderDate,
		TotalPrice:       m.TotalPrice,
		DiscountApplied:  m.DiscountApplied,
		CashbackApplied:  m.CashbackApplied,
		DiscountReasonID: m.DiscountReasonID,
		PaymentMethod:    domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(m.PaymentStatus),
		Status:           domain.OrderStatus(m.Status),
		DeliveryType:     domain.DeliveryType(m.DeliveryType),
		PickupLocation:   m.PickupLocation,
		OrderSource:      m.OrderSource,
		Notes:            m.Notes,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		DeletedAt:        m.DeletedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, toItemDomain(&it))
	}
	for _, h := range m.History {
		o.StatusHistory = append(o.StatusHistory, domain.OrderStatusHistory{
			ID:          h.ID,
			OldStatus:   domain.OrderStatus(h.OldStatus),
			NewStatus:   domain.OrderStatus(h.NewStatus),
			ChangedBy:   domain.ActorType(h.ChangedBy),
			ChangedByID: h.ChangedByID,
			Notes:       h.Notes,
			CreatedAt:   h.CreatedAt,
		})
	}
	for i := range cashback {
		o.CashbackTransactions = append(o.CashbackTransactions, toCashbackDomain(&cashback[i]))
	}
	return o
}

func toItemModel(orderID uint, it *domain.OrderItem) *OrderItemModel {
	return &OrderItemModel{
		ID:              it.ID,
		OrderID:         orderID,
		ProductID:       it.ProductID,
		Quantity:        it.Quantity,
		UnitPrice:       it.UnitPrice,
		DiscountApplied: it.DiscountApplied,
		TotalPrice:      it.TotalPrice,
	}
}

func toItemDomain(m *OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:              m.ID,
		ProductID:       m.ProductID,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		DiscountApplied: m.DiscountApplied,
		TotalPrice:      m.TotalPrice,
	}
}

func toHistoryModel(orderID uint, h *domain.OrderStatusHistory) *OrderStatusHistoryModel {
	return &OrderStatusHistoryModel{
		OrderID:     orderID,
		OldStatus:   string(h.OldStatus),
		NewStatus:   string(h.NewStatus),
		ChangedBy:   string(h.ChangedBy),
		ChangedByID: h.ChangedByID,
		Notes:       h.Notes,
		CreatedAt:   h.CreatedAt,
	}
}

func toProductDomain(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:        m.ID,
		Name:      m.Name,
		Price:     m.Price,
		Count:     m.Count,
		Status:    domain.ProductStatus(m.Status),
		SoldCount: m.SoldCount,
		Version:   m.Version,
		DeletedAt: m.DeletedAt,
	}
}

func toCashbackModel(tx *domain.CashbackTransaction) *CashbackTransactionModel {
	return &CashbackTransactionModel{
		ID:         tx.ID,
		CustomerID: tx.CustomerID,
		OrderID:    tx.OrderID,
		Amount:     tx.Amount,
		Type:       string(tx.Type),
		ExpiryDate: tx.ExpiryDate,
		IsUsed:     tx.IsUsed,
		UsedDate:   tx.UsedDate,
		Version:    tx.Version,
		CreatedAt:  tx.CreatedAt,
	}
}

func toCashbackDomain(m *CashbackTransactionModel) domain.CashbackTransaction {
	return domain.CashbackTransaction{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		OrderID:    m.OrderID,
		Amount:     m.Amount,
		Type:       domain.CashbackTransactionType(m.Type),
		ExpiryDate: m.ExpiryDate,
		IsUsed:     m.IsUsed,
		UsedDate:   m.UsedDate,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
	}
}
