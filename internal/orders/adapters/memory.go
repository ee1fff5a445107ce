package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/internal/orders/domain"
	"marketplace/internal/orders/ports"
)

// memoryState is the full data set of a MemoryStore
type memoryState struct {
	orders    map[uint]*domain.Order
	products  map[uint]*domain.Product
	cashback  map[uint]*domain.CashbackTransaction
	setting   *domain.CashbackSetting
	customers map[uint]*domain.Account
	sellers   map[uint]*domain.Account
	reasons   map[uint]*domain.DiscountReason
	nextID    uint
}

func (s *memoryState) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		orders:    make(map[uint]*domain.Order, len(s.orders)),
		products:  make(map[uint]*domain.Product, len(s.products)),
		cashback:  make(map[uint]*domain.CashbackTransaction, len(s.cashback)),
		customers: make(map[uint]*domain.Account, len(s.customers)),
		sellers:   make(map[uint]*domain.Account, len(s.sellers)),
		reasons:   make(map[uint]*domain.DiscountReason, len(s.reasons)),
		nextID:    s.nextID,
	}
	for id, o := range s.orders {
		cp.orders[id] = o.Clone()
	}
	for id, p := range s.products {
		cp.products[id] = p.Clone()
	}
	for id, tx := range s.cashback {
		c := tx.Clone()
		cp.cashback[id] = &c
	}
	if s.setting != nil {
		setting := *s.setting
		cp.setting = &setting
	}
	for id, a := range s.customers {
		acc := *a
		cp.customers[id] = &acc
	}
	for id, a := range s.sellers {
		acc := *a
		cp.sellers[id] = &acc
	}
	for id, r := range s.reasons {
		reason := *r
		cp.reasons[id] = &reason
	}
	return cp
}

// MemoryStore is an in-process Store. Transactions work on a private copy
// of the data that replaces the shared state on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		orders:    make(map[uint]*domain.Order),
		products:  make(map[uint]*domain.Product),
		cashback:  make(map[uint]*domain.CashbackTransaction),
		customers: make(map[uint]*domain.Account),
		sellers:   make(map[uint]*domain.Account),
		reasons:   make(map[uint]*domain.DiscountReason),
	}}
}

// Do runs fn against a snapshot and commits it when fn succeeds.
// Transactions are serialized.
func (s *MemoryStore) Do(ctx context.Context, fn func(tx ports.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&memoryTx{state: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

func (s *MemoryStore) read() ports.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryTx{state: s.state.clone()}
}

func (s *MemoryStore) Orders() ports.OrderRepository {
	return s.read().Orders()
}

func (s *MemoryStore) Products() ports.ProductRepository {
	return s.read().Products()
}

func (s *MemoryStore) Cashback() ports.CashbackRepository {
	return s.read().Cashback()
}

func (s *MemoryStore) CashbackSettings() ports.CashbackSettingRepository {
	return s.read().CashbackSettings()
}

func (s *MemoryStore) Accounts() ports.AccountRepository {
	return s.read().Accounts()
}

func (s *MemoryStore) DiscountReasons() ports.DiscountReasonRepository {
	return s.read().DiscountReasons()
}

// SeedProduct adds or replaces a product
func (s *MemoryStore) SeedProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = &p
	s.bump(p.ID)
}

// SeedCustomer adds an active customer
func (s *MemoryStore) SeedCustomer(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[id] = &domain.Account{ID: id, IsActive: true}
}

// SeedSeller adds an active seller
func (s *MemoryStore) SeedSeller(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sellers[id] = &domain.Account{ID: id, IsActive: true}
}

// SeedCashbackSetting sets the active policy
func (s *MemoryStore) SeedCashbackSetting(setting domain.CashbackSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.setting = &setting
}

// SeedCashback stores a ledger entry, assigning an ID when it has none
func (s *MemoryStore) SeedCashback(tx domain.CashbackTransaction) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == 0 {
		tx.ID = s.state.id()
	}
	s.state.cashback[tx.ID] = &tx
	s.bump(tx.ID)
	return tx.ID
}

// SeedDiscountReason adds or replaces a discount reason
func (s *MemoryStore) SeedDiscountReason(r domain.DiscountReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reasons[r.ID] = &r
	s.bump(r.ID)
}

func (s *MemoryStore) bump(id uint) {
	if id > s.state.nextID {
		s.state.nextID = id
	}
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Orders() ports.OrderRepository {
	return memoryOrders{t.state}
}

func (t *memoryTx) Products() ports.ProductRepository {
	return memoryProducts{t.state}
}

func (t *memoryTx) Cashback() ports.CashbackRepository {
	return memoryCashback{t.state}
}

func (t *memoryTx) CashbackSettings() ports.CashbackSettingRepository {
	return memorySettings{t.state}
}

func (t *memoryTx) Accounts() ports.AccountRepository {
	return memoryAccounts{t.state}
}

func (t *memoryTx) DiscountReasons() ports.DiscountReasonRepository {
	return memoryReasons{t.state}
}

type memoryOrders struct{ s *memoryState }

func (r memoryOrders) Create(_ context.Context, order *domain.Order) error {
	order.ID = r.s.id()
	r.assignChildIDs(order)
	r.s.orders[order.ID] = order.Clone()
	return nil
}

func (r memoryOrders) GetByID(_ context.Context, id uint) (*domain.Order, error) {
	o, ok := r.s.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, domain.NewOrderNotFound(id)
	}
	cp := o.Clone()
	cp.CashbackTransactions = nil
	for _, tx := range sortedCashback(r.s.cashback) {
		if tx.OrderID == id {
			cp.CashbackTransactions = append(cp.CashbackTransactions, tx.Clone())
		}
	}
	return cp, nil
}

func (r memoryOrders) GetByIDForUpdate(ctx context.Context, id uint) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memoryOrders) Update(_ context.Context, order *domain.Order) error {
	stored, ok := r.s.orders[order.ID]
	if !ok || stored.DeletedAt != nil || stored.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order.Version++
	r.assignChildIDs(order)
	r.s.orders[order.ID] = order.Clone()
	return nil
}

func (r memoryOrders) assignChildIDs(order *domain.Order) {
	for i := range order.Items {
		if order.Items[i].ID == 0 {
			order.Items[i].ID = r.s.id()
		}
	}
	for i := range order.StatusHistory {
		if order.StatusHistory[i].ID == 0 {
			order.StatusHistory[i].ID = r.s.id()
		}
	}
}

func (r memoryOrders) ListByCustomer(_ context.Context, customerID uint) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.CustomerID == customerID && o.DeletedAt == nil {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.After(out[j].OrderDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type memoryProducts struct{ s *memoryState }

func (r memoryProducts) GetForUpdate(_ context.Context, ids []uint) ([]*domain.Product, error) {
	return r.lock(ids, true), nil
}

func (r memoryProducts) GetForUpdateWithDeleted(_ context.Context, ids []uint) ([]*domain.Product, error) {
	return r.lock(ids, false), nil
}

func (r memoryProducts) lock(ids []uint, liveOnly bool) []*domain.Product {
	var out []*domain.Product
	for _, id := range ids {
		p, ok := r.s.products[id]
		if !ok || (liveOnly && p.DeletedAt != nil) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

func (r memoryProducts) Update(_ context.Context, p *domain.Product) error {
	stored, ok := r.s.products[p.ID]
	if !ok || stored.Version != p.Version {
		return domain.ErrVersionConflict
	}
	p.Version++
	r.s.products[p.ID] = p.Clone()
	return nil
}

type memoryCashback struct{ s *memoryState }

func sortedCashback(m map[uint]*domain.CashbackTransaction) []*domain.CashbackTransaction {
	out := make([]*domain.CashbackTransaction, 0, len(m))
	for _, tx := range m {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memoryCashback) ListAvailableForUpdate(_ context.Context, customerID uint, now time.Time) ([]domain.CashbackTransaction, error) {
	var out []domain.CashbackTransaction
	for _, tx := range sortedCashback(r.s.cashback) {
		if tx.CustomerID == customerID && tx.CanBeUsed(now) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (r memoryCashback) ListByCustomer(_ context.Context, customerID uint) ([]domain.CashbackTransaction, error) {
	all := sortedCashback(r.s.cashback)
	var out []domain.CashbackTransaction
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].CustomerID == customerID {
			out = append(out, all[i].Clone())
		}
	}
	return out, nil
}

func (r memoryCashback) ListExpiring(_ context.Context, from, to time.Time) ([]domain.CashbackTransaction, error) {
	var out []domain.CashbackTransaction
	for _, tx := range sortedCashback(r.s.cashback) {
		if tx.Type != domain.CashbackTypeEarned || tx.IsUsed || tx.ExpiryDate == nil {
			continue
		}
		if tx.ExpiryDate.After(from) && !tx.ExpiryDate.After(to) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (r memoryCashback) Create(_ context.Context, tx *domain.CashbackTransaction) error {
	tx.ID = r.s.id()
	c := tx.Clone()
	r.s.cashback[tx.ID] = &c
	return nil
}

func (r memoryCashback) Update(_ context.Context, tx *domain.CashbackTransaction) error {
	stored, ok := r.s.cashback[tx.ID]
	if !ok || stored.Version != tx.Version {
		return domain.ErrVersionConflict
	}
	tx.Version++
	c := tx.Clone()
	r.s.cashback[tx.ID] = &c
	return nil
}

type memorySettings struct{ s *memoryState }

func (r memorySettings) GetActive(context.Context) (*domain.CashbackSetting, error) {
	if r.s.setting == nil || !r.s.setting.IsActive {
		return nil, nil
	}
	cp := *r.s.setting
	return &cp, nil
}

type memoryAccounts struct{ s *memoryState }

func (r memoryAccounts) GetCustomer(_ context.Context, id uint) (*domain.Account, error) {
	a, ok := r.s.customers[id]
	if !ok || a.DeletedAt != nil {
		return nil, domain.NewCustomerNotFound(id)
	}
	cp := *a
	return &cp, nil
}

func (r memoryAccounts) GetSeller(_ context.Context, id uint) (*domain.Account, error) {
	a, ok := r.s.sellers[id]
	if !ok || a.DeletedAt != nil {
		return nil, domain.NewSellerNotFound(id)
	}
	cp := *a
	return &cp, nil
}

type memoryReasons struct{ s *memoryState }

func (r memoryReasons) GetByID(_ context.Context, id uint) (*domain.DiscountReason, error) {
	reason, ok := r.s.reasons[id]
	if !ok {
		return nil, domain.NewDiscountReasonNotFound(id)
	}
	cp := *reason
	return &cp, nil
}

func (r memoryReasons) Update(_ context.Context, reason *domain.DiscountReason) error {
	stored, ok := r.s.reasons[reason.ID]
	if !ok || stored.Version != reason.Version {
		return domain.ErrVersionConflict
	}
	reason.Version++
	cp := *reason
	r.s.reasons[reason.ID] = &cp
	return nil
}
