package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/orders/domain"
	"marketplace/internal/orders/ports"
	"marketplace/pkg/errors"
	"marketplace/pkg/logger"
)

// Config tunes the use case
type Config struct {
	// ConflictRetries is how many times an operation is re-run after a
	// concurrency conflict before the conflict is returned.
	ConflictRetries int
	Clock           func() time.Time
}

// OrderUseCase handles order business logic
type OrderUseCase struct {
	store     ports.Store
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
	log       *logger.Logger
	retries   int
	now       func() time.Time
}

// NewOrderUseCase creates a new order use case. publisher and cache may be nil.
func NewOrderUseCase(
	store ports.Store,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	log *logger.Logger,
	cfg Config,
) *OrderUseCase {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	return &OrderUseCase{
		store:     store,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
		log:       log,
		retries:   cfg.ConflictRetries,
		now:       func() time.Time { return cfg.Clock().UTC() },
	}
}

// ItemInput is one requested order line
type ItemInput struct {
	ProductID uint
	Quantity  int
	// UnitPrice overrides the catalog price when set. Only sellers and
	// admins may set it.
	UnitPrice *decimal.Decimal
}

// CreateOrderInput represents the input for creating an order
type CreateOrderInput struct {
	CustomerID     uint
	SellerID       *uint
	Items          []ItemInput
	PaymentMethod  domain.PaymentMethod
	DeliveryType   domain.DeliveryType
	PickupLocation string
	OrderSource    string
	Notes          string
	CashbackToUse  decimal.Decimal
	Actor          domain.Actor
}

// CreateOrderOutput represents the output of creating an order
type CreateOrderOutput struct {
	Order        *domain.Order
	CashbackUsed decimal.Decimal
}

// CreateOrder places an order: it reserves stock for every line and redeems
// the requested cashback as the order discount, all in one transaction.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderOutput, error) {
	if len(input.Items) == 0 {
		return nil, domain.ErrItemsRequired
	}
	if input.CashbackToUse.IsNegative() {
		return nil, domain.ErrInvalidCashbackUse
	}
	for _, it := range input.Items {
		if it.UnitPrice != nil && !input.Actor.Type.CanSetPrices() {
			return nil, errors.NewForbidden("only sellers and admins can set unit prices")
		}
	}

	var order *domain.Order
	events, err := uc.inTx(ctx, "create order", func(tx ports.Store) ([]domain.Event, error) {
		now := uc.now()
		if err := uc.checkAccounts(ctx, tx, input.CustomerID, input.SellerID); err != nil {
			return nil, err
		}

		o, err := domain.NewOrder(domain.NewOrderParams{
			CustomerID:     input.CustomerID,
			SellerID:       input.SellerID,
			PaymentMethod:  input.PaymentMethod,
			DeliveryType:   input.DeliveryType,
			PickupLocation: input.PickupLocation,
			OrderSource:    input.OrderSource,
			Notes:          input.Notes,
			Now:            now,
		})
		if err != nil {
			return nil, err
		}

		ids := make([]uint, len(input.Items))
		for i, it := range input.Items {
			ids[i] = it.ProductID
		}
		catalog, err := uc.lockProducts(ctx, tx, ids)
		if err != nil {
			return nil, err
		}
		for _, it := range input.Items {
			if err := o.AddItem(catalog[it.ProductID], it.Quantity, it.UnitPrice); err != nil {
				return nil, err
			}
		}

		var stockEvents []domain.Event
		for _, item := range o.Items {
			p := catalog[item.ProductID]
			evs, err := p.Take(item.Quantity, "order placed", now)
			if err != nil {
				return nil, err
			}
			if err := tx.Products().Update(ctx, p); err != nil {
				return nil, err
			}
			stockEvents = append(stockEvents, evs...)
		}

		var (
			plan   *domain.RedemptionPlan
			ledger []domain.CashbackTransaction
		)
		if input.CashbackToUse.IsPositive() {
			ledger, err = tx.Cashback().ListAvailableForUpdate(ctx, o.CustomerID, now)
			if err != nil {
				return nil, err
			}
			p, err := domain.PlanRedemption(domain.GetAvailable(ledger, now), input.CashbackToUse)
			if err != nil {
				return nil, err
			}
			if p.Requested.GreaterThan(o.TotalPrice) {
				return nil, errors.NewValidation("cashback exceeds order total", map[string]string{
					"cashback": p.Requested.StringFixed(domain.MoneyScale),
					"total":    o.TotalPrice.StringFixed(domain.MoneyScale),
				})
			}
			if err := o.RedeemCashback(p.Requested); err != nil {
				return nil, err
			}
			plan = &p
		}

		if err := tx.Orders().Create(ctx, o); err != nil {
			return nil, err
		}
		events := append([]domain.Event{o.Created()}, stockEvents...)

		if plan != nil {
			res, err := plan.Apply(ledger, o.ID, now)
			if err != nil {
				return nil, err
			}
			for i := range res.Updated {
				if err := tx.Cashback().Update(ctx, &res.Updated[i]); err != nil {
					return nil, err
				}
			}
			for i := range res.Created {
				if err := tx.Cashback().Create(ctx, &res.Created[i]); err != nil {
					return nil, err
				}
			}
			o.CashbackTransactions = append(o.CashbackTransactions, res.Created...)
			events = append(events, res.Events...)
		}

		order = o
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events)
	if input.CashbackToUse.IsPositive() {
		uc.invalidateBalance(ctx, order.CustomerID)
	}

	uc.log.WithContext(ctx).Info("order created",
		zap.Uint("order_id", order.ID),
		zap.Uint("customer_id", order.CustomerID),
		zap.String("total", order.TotalPrice.String()),
		zap.String("final", order.FinalPrice().String()),
		zap.Int("items", len(order.Items)),
	)

	return &CreateOrderOutput{Order: order, CashbackUsed: order.CashbackApplied}, nil
}

// OrderOutput wraps an order returned by a use case
type OrderOutput struct {
	Order *domain.Order
}

// ChangeStatusInput represents a status change request
type ChangeStatusInput struct {
	OrderID uint
	Status  domain.OrderStatus
	Actor   domain.Actor
	Notes   string
}

// ChangeOrderStatus moves an order through fulfillment. A cancelled target
// is handled by CancelOrder with the notes as reason.
func (uc *OrderUseCase) ChangeOrderStatus(ctx context.Context, input ChangeStatusInput) (*OrderOutput, error) {
	if input.Status == domain.OrderStatusCancelled {
		return uc.CancelOrder(ctx, CancelOrderInput{
			OrderID: input.OrderID,
			Actor:   input.Actor,
			Reason:  input.Notes,
		})
	}
	if input.Actor.Type == domain.ActorCustomer {
		return nil, errors.NewForbidden("customers can only cancel orders")
	}

	var (
		order  *domain.Order
		earned bool
	)
	events, err := uc.inTx(ctx, "change order status", func(tx ports.Store) ([]domain.Event, error) {
		earned = false
		o, err := tx.Orders().GetByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}

		var (
			policy  *domain.CashbackSetting
			catalog domain.Catalog
		)
		delivering := input.Status == domain.OrderStatusDelivered && o.CanTransitionTo(input.Status)
		if delivering {
			if policy, err = tx.CashbackSettings().GetActive(ctx); err != nil {
				return nil, err
			}
			if catalog, err = uc.lockOrderProducts(ctx, tx, o); err != nil {
				return nil, err
			}
		}

		events, err := o.ChangeStatus(domain.StatusChange{
			NewStatus: input.Status,
			Actor:     input.Actor,
			Notes:     input.Notes,
			At:        uc.now(),
		}, policy, catalog)
		if err != nil {
			return nil, err
		}

		for _, p := range catalog {
			if err := tx.Products().Update(ctx, p); err != nil {
				return nil, err
			}
		}
		for i := range o.CashbackTransactions {
			if o.CashbackTransactions[i].ID != 0 {
				continue
			}
			if err := tx.Cashback().Create(ctx, &o.CashbackTransactions[i]); err != nil {
				return nil, err
			}
			earned = true
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return nil, err
		}

		order = o
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events)
	if earned {
		uc.invalidateBalance(ctx, order.CustomerID)
	}

	uc.log.WithContext(ctx).Info("order status changed",
		zap.Uint("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("actor_type", string(input.Actor.Type)),
		zap.Uint("actor_id", input.Actor.ID),
	)

	return &OrderOutput{Order: order}, nil
}

// CancelOrderInput represents a cancellation request
type CancelOrderInput struct {
	OrderID uint
	Actor   domain.Actor
	Reason  string
}

// CancelOrder cancels a pending or confirmed order and restores its stock.
// Redeemed cashback is not returned.
func (uc *OrderUseCase) CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderOutput, error) {
	var order *domain.Order
	events, err := uc.inTx(ctx, "cancel order", func(tx ports.Store) ([]domain.Event, error) {
		o, err := tx.Orders().GetByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		if input.Actor.Type == domain.ActorCustomer && input.Actor.ID != o.CustomerID {
			return nil, errors.NewForbidden("order belongs to another customer")
		}

		catalog, err := uc.lockOrderProducts(ctx, tx, o)
		if err != nil {
			return nil, err
		}
		events, err := o.Cancel(input.Actor, input.Reason, uc.now(), catalog)
		if err != nil {
			return nil, err
		}

		for _, p := range catalog {
			if err := tx.Products().Update(ctx, p); err != nil {
				return nil, err
			}
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return nil, err
		}

		order = o
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events)

	uc.log.WithContext(ctx).Info("order cancelled",
		zap.Uint("order_id", order.ID),
		zap.String("reason", input.Reason),
		zap.String("actor_type", string(input.Actor.Type)),
	)

	return &OrderOutput{Order: order}, nil
}

// ApplyDiscountInput represents a manual discount request
type ApplyDiscountInput struct {
	OrderID  uint
	Amount   decimal.Decimal
	ReasonID *uint
	Actor    domain.Actor
}

// ApplyOrderDiscount replaces the manual discount of a pending order. Cashback
// redeemed at checkout stays credited on top of it.
func (uc *OrderUseCase) ApplyOrderDiscount(ctx context.Context, input ApplyDiscountInput) (*OrderOutput, error) {
	if input.Actor.Type == domain.ActorCustomer {
		return nil, errors.NewForbidden("customers cannot grant discounts")
	}

	var order *domain.Order
	_, err := uc.inTx(ctx, "apply order discount", func(tx ports.Store) ([]domain.Event, error) {
		o, err := tx.Orders().GetByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}

		var reason *domain.DiscountReason
		if input.ReasonID != nil {
			if reason, err = tx.DiscountReasons().GetByID(ctx, *input.ReasonID); err != nil {
				return nil, err
			}
			if !reason.IsActive {
				return nil, errors.NewValidation("discount reason is not active", map[string]uint{"reason_id": reason.ID})
			}
		}

		if err := o.ApplyDiscount(input.Amount, input.ReasonID); err != nil {
			return nil, err
		}
		if reason != nil {
			reason.IncrementUsage(o.ManualDiscount())
			if err := tx.DiscountReasons().Update(ctx, reason); err != nil {
				return nil, err
			}
		}
		o.UpdatedAt = uc.now()
		if err := tx.Orders().Update(ctx, o); err != nil {
			return nil, err
		}

		order = o
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("order discount applied",
		zap.Uint("order_id", order.ID),
		zap.String("discount", order.ManualDiscount().String()),
		zap.String("cashback", order.CashbackApplied.String()),
	)

	return &OrderOutput{Order: order}, nil
}

// GetOrderInput represents the input for getting an order
type GetOrderInput struct {
	ID uint
}

// GetOrder retrieves an order by ID
func (uc *OrderUseCase) GetOrder(ctx context.Context, input GetOrderInput) (*OrderOutput, error) {
	order, err := uc.store.Orders().GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &OrderOutput{Order: order}, nil
}

// ListCustomerOrders returns the live orders of a customer
func (uc *OrderUseCase) ListCustomerOrders(ctx context.Context, customerID uint) ([]*domain.Order, error) {
	return uc.store.Orders().ListByCustomer(ctx, customerID)
}

// ListCustomerCashback returns the customer's ledger history
func (uc *OrderUseCase) ListCustomerCashback(ctx context.Context, customerID uint) ([]domain.CashbackTransaction, error) {
	return uc.store.Cashback().ListByCustomer(ctx, customerID)
}

// GetAvailableCashback returns the spendable balance, served from cache when possible
func (uc *OrderUseCase) GetAvailableCashback(ctx context.Context, customerID uint) (decimal.Decimal, error) {
	if uc.cache != nil {
		balance, ok, err := uc.cache.Get(ctx, customerID)
		if err != nil {
			uc.log.WithContext(ctx).Warn("balance cache read failed",
				zap.Error(err),
				zap.Uint("customer_id", customerID),
			)
		} else if ok {
			return balance, nil
		}
	}

	ledger, err := uc.store.Cashback().ListByCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := domain.AvailableBalance(ledger, uc.now())

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, customerID, balance); err != nil {
			uc.log.WithContext(ctx).Warn("balance cache write failed",
				zap.Error(err),
				zap.Uint("customer_id", customerID),
			)
		}
	}
	return balance, nil
}

// NotifyExpiringInput selects cashback expiring in (From, To]
type NotifyExpiringInput struct {
	From time.Time
	To   time.Time
}

// NotifyExpiringCashback publishes a reminder for every unused earned entry
// expiring in the window and returns how many were sent.
func (uc *OrderUseCase) NotifyExpiringCashback(ctx context.Context, input NotifyExpiringInput) (int, error) {
	if !input.To.After(input.From) {
		return 0, nil
	}
	txs, err := uc.store.Cashback().ListExpiring(ctx, input.From, input.To)
	if err != nil {
		return 0, err
	}

	now := uc.now()
	events := make([]domain.Event, 0, len(txs))
	for _, tx := range txs {
		if !tx.CanBeUsed(now) {
			continue
		}
		events = append(events, domain.CashbackExpiring{
			CustomerID:    tx.CustomerID,
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			ExpiryDate:    *tx.ExpiryDate,
			At:            now,
		})
	}
	uc.publish(ctx, events)

	if len(events) > 0 {
		uc.log.WithContext(ctx).Info("expiring cashback reminders sent", zap.Int("count", len(events)))
	}
	return len(events), nil
}

// inTx runs fn in a transaction, re-running it from scratch after a
// concurrency conflict. The returned events belong to the committed attempt.
func (uc *OrderUseCase) inTx(ctx context.Context, op string, fn func(tx ports.Store) ([]domain.Event, error)) ([]domain.Event, error) {
	for attempt := 0; ; attempt++ {
		var events []domain.Event
		err := uc.uow.Do(ctx, func(tx ports.Store) error {
			var err error
			events, err = fn(tx)
			return err
		})
		if err == nil {
			return events, nil
		}
		if !errors.Is(err, errors.CodeConcurrencyConflict) || attempt >= uc.retries || ctx.Err() != nil {
			if errors.Code(err) == errors.CodeInternal {
				uc.log.WithContext(ctx).Error(op+" failed", zap.Error(err))
			}
			return nil, err
		}
		uc.log.WithContext(ctx).Warn(op+" conflicted, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}
}

func (uc *OrderUseCase) publish(ctx context.Context, events []domain.Event) {
	if uc.publisher == nil {
		return
	}
	for _, e := range events {
		if err := uc.publisher.Publish(ctx, e); err != nil {
			uc.log.WithContext(ctx).Error("failed to publish event",
				zap.Error(err),
				zap.String("event", e.EventName()),
			)
		}
	}
}

func (uc *OrderUseCase) invalidateBalance(ctx context.Context, customerID uint) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, customerID); err != nil {
		uc.log.WithContext(ctx).Warn("balance cache invalidation failed",
			zap.Error(err),
			zap.Uint("customer_id", customerID),
		)
	}
}

func (uc *OrderUseCase) checkAccounts(ctx context.Context, tx ports.Store, customerID uint, sellerID *uint) error {
	if customerID == 0 {
		return domain.ErrCustomerIDRequired
	}
	customer, err := tx.Accounts().GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if !customer.Usable() {
		return errors.NewValidation("customer is not active", map[string]uint{"customer_id": customerID})
	}
	if sellerID == nil {
		return nil
	}
	seller, err := tx.Accounts().GetSeller(ctx, *sellerID)
	if err != nil {
		return err
	}
	if !seller.Usable() {
		return errors.NewValidation("seller is not active", map[string]uint{"seller_id": *sellerID})
	}
	return nil
}

// lockProducts loads every referenced live product under lock, failing with
// NOT_FOUND when one does not exist.
func (uc *OrderUseCase) lockProducts(ctx context.Context, tx ports.Store, ids []uint) (domain.Catalog, error) {
	ids = uniqueIDs(ids)
	products, err := tx.Products().GetForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	return requireCatalog(products, ids)
}

// lockOrderProducts locks the products on the order's lines. Products removed
// from the catalog after the order was placed are still returned.
func (uc *OrderUseCase) lockOrderProducts(ctx context.Context, tx ports.Store, o *domain.Order) (domain.Catalog, error) {
	ids := uniqueIDs(itemProductIDs(o.Items))
	products, err := tx.Products().GetForUpdateWithDeleted(ctx, ids)
	if err != nil {
		return nil, err
	}
	return requireCatalog(products, ids)
}

func requireCatalog(products []*domain.Product, ids []uint) (domain.Catalog, error) {
	catalog := domain.NewCatalog(products...)
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			return nil, domain.NewProductNotFound(id)
		}
	}
	return catalog, nil
}

func itemProductIDs(items []domain.OrderItem) []uint {
	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
