package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/orders/domain"
	"marketplace/internal/orders/ports"
	"marketplace/pkg/db"
	apperrors "marketplace/pkg/errors"
)

const notDeleted = "deleted_at IS NULL"

var forUpdate = clause.Locking{Strength: "UPDATE"}

// PostgresStore implements ports.Store and ports.UnitOfWork on GORM
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate runs auto-migration for every model
func (s *PostgresStore) Migrate() error {
	return s.db.AutoMigrate(AllModels()...)
}

// EnsureCashbackSetting inserts setting when no active policy exists
func (s *PostgresStore) EnsureCashbackSetting(ctx context.Context, setting domain.CashbackSetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&CashbackSettingModel{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		return dbError("failed to check cashback settings", err)
	}
	if count > 0 {
		return nil
	}
	return dbError("failed to seed cashback setting", s.db.WithContext(ctx).Create(&CashbackSettingModel{
		Percentage:         setting.Percentage,
		ValidityPeriodDays: setting.ValidityPeriodDays,
		MinimumOrderAmount: setting.MinimumOrderAmount,
		IsActive:           true,
	}).Error)
}

// Do runs fn inside a database transaction
func (s *PostgresStore) Do(ctx context.Context, fn func(tx ports.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresStore{db: tx})
	})
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return dbError("transaction failed", err)
}

func (s *PostgresStore) Orders() ports.OrderRepository {
	return &PostgresOrderRepository{db: s.db}
}

func (s *PostgresStore) Products() ports.ProductRepository {
	return &PostgresProductRepository{db: s.db}
}

func (s *PostgresStore) Cashback() ports.CashbackRepository {
	return &PostgresCashbackRepository{db: s.db}
}

func (s *PostgresStore) CashbackSettings() ports.CashbackSettingRepository {
	return &PostgresCashbackSettingRepository{db: s.db}
}

func (s *PostgresStore) Accounts() ports.AccountRepository {
	return &PostgresAccountRepository{db: s.db}
}

func (s *PostgresStore) DiscountReasons() ports.DiscountReasonRepository {
	return &PostgresDiscountReasonRepository{db: s.db}
}

// dbError maps lock and serialization failures to a retryable conflict and
// everything else to an internal error.
func dbError(message string, err error) error {
	if err == nil {
		return nil
	}
	if db.IsConcurrencyError(err) {
		return apperrors.NewConcurrencyConflict(message, err)
	}
	return apperrors.NewInternal(message, err)
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *gorm.DB
}

// Create inserts the order header, its items and history
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx := r.db.WithContext(ctx)
	model := toOrderModel(order)

	if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
		return dbError("failed to create order", err)
	}

	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt

	if err := r.saveItems(ctx, order); err != nil {
		return err
	}
	return r.appendHistory(ctx, order)
}

// GetByID retrieves an order by ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uint) (*domain.Order, error) {
	return r.get(ctx, r.db.WithContext(ctx), id)
}

// GetByIDForUpdate retrieves an order by ID and locks its row
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id uint) (*domain.Order, error) {
	return r.get(ctx, r.db.WithContext(ctx).Clauses(forUpdate), id)
}

func (r *PostgresOrderRepository) get(ctx context.Context, q *gorm.DB, id uint) (*domain.Order, error) {
	var model OrderModel
	err := q.Where(notDeleted).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewOrderNotFound(id)
		}
		return nil, dbError("failed to get order", err)
	}

	tx := r.db.WithContext(ctx)
	if err := tx.Where("order_id = ?", id).Order("id").Find(&model.Items).Error; err != nil {
		return nil, dbError("failed to load order items", err)
	}
	if err := tx.Where("order_id = ?", id).Order("id").Find(&model.History).Error; err != nil {
		return nil, dbError("failed to load order history", err)
	}
	var cashback []CashbackTransactionModel
	if err := tx.Where("order_id = ?", id).Order("id").Find(&cashback).Error; err != nil {
		return nil, dbError("failed to load order cashback", err)
	}

	return toOrderDomain(&model, cashback), nil
}

// Update saves the order if nobody changed it since it was loaded
func (r *PostgresOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Where(notDeleted).
		Updates(map[string]interface{}{
			"total_price":        order.TotalPrice,
			"discount_applied":   order.DiscountApplied,
			"cashback_applied":   order.CashbackApplied,
			"discount_reason_id": order.DiscountReasonID,
			"payment_status":     string(order.PaymentStatus),
			"status":             string(order.Status),
			"notes":              order.Notes,
			"version":            order.Version + 1,
			"updated_at":         order.UpdatedAt,
		})
	if res.Error != nil {
		return dbError("failed to update order", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	order.Version++

	if err := r.saveItems(ctx, order); err != nil {
		return err
	}
	return r.appendHistory(ctx, order)
}

// saveItems upserts the order lines and drops lines no longer on the order
func (r *PostgresOrderRepository) saveItems(ctx context.Context, order *domain.Order) error {
	tx := r.db.WithContext(ctx)
	keep := make([]uint, 0, len(order.Items))
	for i := range order.Items {
		m := toItemModel(order.ID, &order.Items[i])
		if err := tx.Save(m).Error; err != nil {
			return dbError("failed to save order item", err)
		}
		order.Items[i].ID = m.ID
		keep = append(keep, m.ID)
	}

	del := tx.Where("order_id = ?", order.ID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	if err := del.Delete(&OrderItemModel{}).Error; err != nil {
		return dbError("failed to prune order items", err)
	}
	return nil
}

func (r *PostgresOrderRepository) appendHistory(ctx context.Context, order *domain.Order) error {
	tx := r.db.WithContext(ctx)
	for i := range order.StatusHistory {
		h := &order.StatusHistory[i]
		if h.ID != 0 {
			continue
		}
		m := toHistoryModel(order.ID, h)
		if err := tx.Create(m).Error; err != nil {
			return dbError("failed to append status history", err)
		}
		h.ID = m.ID
	}
	return nil
}

// ListByCustomer retrieves the live orders of a customer
func (r *PostgresOrderRepository) ListByCustomer(ctx context.Context, customerID uint) ([]*domain.Order, error) {
	var models []OrderModel

	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("customer_id = ?", customerID).
		Where(notDeleted).
		Order("order_date DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, dbError("failed to list customer orders", err)
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = toOrderDomain(&models[i], nil)
	}
	return orders, nil
}

// PostgresProductRepository implements ProductRepository
type PostgresProductRepository struct {
	db *gorm.DB
}

// GetForUpdate locks the live products in id order
func (r *PostgresProductRepository) GetForUpdate(ctx context.Context, ids []uint) ([]*domain.Product, error) {
	return r.lock(ctx, ids, true)
}

// GetForUpdateWithDeleted also returns soft-deleted products
func (r *PostgresProductRepository) GetForUpdateWithDeleted(ctx context.Context, ids []uint) ([]*domain.Product, error) {
	return r.lock(ctx, ids, false)
}

func (r *PostgresProductRepository) lock(ctx context.Context, ids []uint, liveOnly bool) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Clauses(forUpdate).Where("id IN ?", ids)
	if liveOnly {
		q = q.Where(notDeleted)
	}
	var models []ProductModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, dbError("failed to load products", err)
	}

	products := make([]*domain.Product, len(models))
	for i := range models {
		products[i] = toProductDomain(&models[i])
	}
	return products, nil
}

// Update saves stock fields with a version check
func (r *PostgresProductRepository) Update(ctx context.Context, p *domain.Product) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"count":      p.Count,
			"status":     string(p.Status),
			"sold_count": p.SoldCount,
			"version":    p.Version + 1,
		})
	if res.Error != nil {
		return dbError("failed to update product", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	p.Version++
	return nil
}

// PostgresCashbackRepository implements CashbackRepository
type PostgresCashbackRepository struct {
	db *gorm.DB
}

func (r *PostgresCashbackRepository) ListAvailableForUpdate(ctx context.Context, customerID uint, now time.Time) ([]domain.CashbackTransaction, error) {
	var models []CashbackTransactionModel
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("customer_id = ? AND type = ? AND is_used = ?", customerID, string(domain.CashbackTypeEarned), false).
		Where("(expiry_date IS NULL OR expiry_date > ?)", now).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, dbError("failed to load available cashback", err)
	}
	return toCashbackList(models), nil
}

func (r *PostgresCashbackRepository) ListByCustomer(ctx context.Context, customerID uint) ([]domain.CashbackTransaction, error) {
	var models []CashbackTransactionModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, dbError("failed to list cashback", err)
	}
	return toCashbackList(models), nil
}

func (r *PostgresCashbackRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.CashbackTransaction, error) {
	var models []CashbackTransactionModel
	err := r.db.WithContext(ctx).
		Where("type = ? AND is_used = ?", string(domain.CashbackTypeEarned), false).
		Where("expiry_date > ? AND expiry_date <= ?", from, to).
		Order("expiry_date, id").
		Find(&models).Error
	if err != nil {
		return nil, dbError("failed to list expiring cashback", err)
	}
	return toCashbackList(models), nil
}

func (r *PostgresCashbackRepository) Create(ctx context.Context, tx *domain.CashbackTransaction) error {
	m := toCashbackModel(tx)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return dbError("failed to create cashback transaction", err)
	}
	tx.ID = m.ID
	return nil
}

func (r *PostgresCashbackRepository) Update(ctx context.Context, tx *domain.CashbackTransaction) error {
	res := r.db.WithContext(ctx).Model(&CashbackTransactionModel{}).
		Where("id = ? AND version = ?", tx.ID, tx.Version).
		Updates(map[string]interface{}{
			"is_used":   tx.IsUsed,
			"used_date": tx.UsedDate,
			"version":   tx.Version + 1,
		})
	if res.Error != nil {
		return dbError("failed to update cashback transaction", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	tx.Version++
	return nil
}

func toCashbackList(models []CashbackTransactionModel) []domain.CashbackTransaction {
	out := make([]domain.CashbackTransaction, len(models))
	for i := range models {
		out[i] = toCashbackDomain(&models[i])
	}
	return out
}

// PostgresCashbackSettingRepository implements CashbackSettingRepository
type PostgresCashbackSettingRepository struct {
	db *gorm.DB
}

func (r *PostgresCashbackSettingRepository) GetActive(ctx context.Context) (*domain.CashbackSetting, error) {
	var m CashbackSettingModel
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError("failed to load cashback setting", err)
	}
	return &domain.CashbackSetting{
		ID:                 m.ID,
		Percentage:         m.Percentage,
		ValidityPeriodDays: m.ValidityPeriodDays,
		MinimumOrderAmount: m.MinimumOrderAmount,
		IsActive:           m.IsActive,
	}, nil
}

// PostgresAccountRepository implements AccountRepository
type PostgresAccountRepository struct {
	db *gorm.DB
}

func (r *PostgresAccountRepository) GetCustomer(ctx context.Context, id uint) (*domain.Account, error) {
	var m CustomerModel
	err := r.db.WithContext(ctx).Where(notDeleted).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewCustomerNotFound(id)
		}
		return nil, dbError("failed to load customer", err)
	}
	return &domain.Account{ID: m.ID, IsActive: m.IsActive, DeletedAt: m.DeletedAt}, nil
}

func (r *PostgresAccountRepository) GetSeller(ctx context.Context, id uint) (*domain.Account, error) {
	var m SellerModel
	err := r.db.WithContext(ctx).Where(notDeleted).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewSellerNotFound(id)
		}
		return nil, dbError("failed to load seller", err)
	}
	return &domain.Account{ID: m.ID, IsActive: m.IsActive, DeletedAt: m.DeletedAt}, nil
}

// PostgresDiscountReasonRepository implements DiscountReasonRepository
type PostgresDiscountReasonRepository struct {
	db *gorm.DB
}

func (r *PostgresDiscountReasonRepository) GetByID(ctx context.Context, id uint) (*domain.DiscountReason, error) {
	var m DiscountReasonModel
	err := r.db.WithContext(ctx).Where(notDeleted).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewDiscountReasonNotFound(id)
		}
		return nil, dbError("failed to load discount reason", err)
	}
	return &domain.DiscountReason{
		ID:                 m.ID,
		Name:               m.Name,
		IsActive:           m.IsActive,
		UsageCount:         m.UsageCount,
		TotalDiscountGiven: m.TotalDiscountGiven,
		Version:            m.Version,
	}, nil
}

func (r *PostgresDiscountReasonRepository) Update(ctx context.Context, reason *domain.DiscountReason) error {
	res := r.db.WithContext(ctx).Model(&DiscountReasonModel{}).
		Where("id = ? AND version = ?", reason.ID, reason.Version).
		Updates(map[string]interface{}{
			"usage_count":          reason.UsageCount,
			"total_discount_given": reason.TotalDiscountGiven,
			"version":              reason.Version + 1,
		})
	if res.Error != nil {
		return dbError("failed to update discount reason", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	reason.Version++
	return nil
}
