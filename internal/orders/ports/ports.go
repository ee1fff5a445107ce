package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/orders/domain"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create inserts the order with its items and history
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves a live order with items, history and cashback entries
	GetByID(ctx context.Context, id uint) (*domain.Order, error)

	// GetByIDForUpdate is GetByID holding a row lock until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uint) (*domain.Order, error)

	// Update saves header fields and items, appends unsaved history rows and
	// bumps the version. A stale version is a concurrency conflict.
	Update(ctx context.Context, order *domain.Order) error

	// ListByCustomer returns live orders of a customer, newest first
	ListByCustomer(ctx context.Context, customerID uint) ([]*domain.Order, error)
}

// ProductRepository defines the interface for the stock side of the catalog
type ProductRepository interface {
	// GetForUpdate locks and returns live products. Missing IDs are left out.
	GetForUpdate(ctx context.Context, ids []uint) ([]*domain.Product, error)

	// GetForUpdateWithDeleted is GetForUpdate including soft-deleted
	// products, which existing order lines still refer to
	GetForUpdateWithDeleted(ctx context.Context, ids []uint) ([]*domain.Product, error)

	// Update saves count, status and sold count with a version check
	Update(ctx context.Context, product *domain.Product) error
}

// CashbackRepository defines the interface for the cashback ledger
type CashbackRepository interface {
	// ListAvailableForUpdate locks the customer's spendable entries
	ListAvailableForUpdate(ctx context.Context, customerID uint, now time.Time) ([]domain.CashbackTransaction, error)

	// ListByCustomer returns the full ledger of a customer, newest first
	ListByCustomer(ctx context.Context, customerID uint) ([]domain.CashbackTransaction, error)

	// ListExpiring returns unused earned entries expiring in (from, to]
	ListExpiring(ctx context.Context, from, to time.Time) ([]domain.CashbackTransaction, error)

	Create(ctx context.Context, tx *domain.CashbackTransaction) error

	// Update saves the used flag with a version check
	Update(ctx context.Context, tx *domain.CashbackTransaction) error
}

// CashbackSettingRepository loads the cashback policy
type CashbackSettingRepository interface {
	// GetActive returns the active policy, or nil when none is configured
	GetActive(ctx context.Context) (*domain.CashbackSetting, error)
}

// AccountRepository resolves the customers and sellers orders reference
type AccountRepository interface {
	GetCustomer(ctx context.Context, id uint) (*domain.Account, error)
	GetSeller(ctx context.Context, id uint) (*domain.Account, error)
}

// DiscountReasonRepository defines the interface for discount reasons
type DiscountReasonRepository interface {
	GetByID(ctx context.Context, id uint) (*domain.DiscountReason, error)
	Update(ctx context.Context, reason *domain.DiscountReason) error
}

// Store groups the repositories of one database handle
type Store interface {
	Orders() OrderRepository
	Products() ProductRepository
	Cashback() CashbackRepository
	CashbackSettings() CashbackSettingRepository
	Accounts() AccountRepository
	DiscountReasons() DiscountReasonRepository
}

// UnitOfWork runs fn in one transaction. A nil return commits; an error
// or panic rolls back every change made through tx.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Store) error) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// BalanceCache caches available cashback balances per customer
type BalanceCache interface {
	Get(ctx context.Context, customerID uint) (decimal.Decimal, bool, error)
	Set(ctx context.Context, customerID uint, balance decimal.Decimal) error
	Invalidate(ctx context.Context, customerIDs ...uint) error
}
