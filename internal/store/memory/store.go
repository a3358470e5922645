// Package memory is an in-process fulfillment.Store used by tests and local
// runs without DynamoDB.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
)

// lockPollInterval is how often a blocked Lock re-checks its lease.
const lockPollInterval = 5 * time.Millisecond

type lease struct {
	token   string
	expires time.Time
}

// Store keeps every table in maps guarded by one mutex, so each method is
// atomic with respect to the others.
type Store struct {
	mu        sync.Mutex
	drafts    map[string]fulfillment.Draft
	orders    map[string]fulfillment.Order
	inventory map[string]fulfillment.InventoryRecord
	bills     map[string]fulfillment.Bill
	payments  map[string][]fulfillment.Payment
	locks     map[string]lease

	nowFunc func() time.Time
}

var _ fulfillment.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		drafts:    map[string]fulfillment.Draft{},
		orders:    map[string]fulfillment.Order{},
		inventory: map[string]fulfillment.InventoryRecord{},
		bills:     map[string]fulfillment.Bill{},
		payments:  map[string][]fulfillment.Payment{},
		locks:     map[string]lease{},
		nowFunc:   time.Now,
	}
}

func inventoryKey(storeID, variantID string) string {
	return storeID + "#" + variantID
}

func (s *Store) CreateDraft(_ context.Context, d fulfillment.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[d.ID]; ok {
		return fulfillment.ErrConflict
	}
	s.drafts[d.ID] = copyDraft(d)
	return nil
}

func (s *Store) GetDraft(_ context.Context, storeID, draftID string) (*fulfillment.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftID]
	if !ok || d.StoreID != storeID {
		return nil, fulfillment.ErrNotFound
	}
	out := copyDraft(d)
	return &out, nil
}

func (s *Store) PutDraft(_ context.Context, d fulfillment.Draft, expected fulfillment.DraftStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.drafts[d.ID]
	if !ok || cur.StoreID != d.StoreID {
		return fulfillment.ErrNotFound
	}
	if cur.Status != expected {
		return fulfillment.ErrConflict
	}
	s.drafts[d.ID] = copyDraft(d)
	return nil
}

func (s *Store) GetOrder(_ context.Context, storeID, orderID string) (*fulfillment.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.StoreID != storeID {
		return nil, fulfillment.ErrNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, storeID string, status fulfillment.OrderStatus) ([]fulfillment.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []fulfillment.Order{}
	for _, o := range s.orders {
		if o.StoreID != storeID {
			continue
		}
		if status != fulfillment.OrderStatusAny && o.Status != status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	slices.SortFunc(out, func(a, b fulfillment.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, storeID, orderID string, from, to fulfillment.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.StoreID != storeID {
		return fulfillment.ErrNotFound
	}
	if o.Status != from {
		return fulfillment.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = s.nowFunc().UTC()
	s.orders[orderID] = o
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, storeID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.StoreID != storeID {
		return fulfillment.ErrNotFound
	}
	if o.Status != fulfillment.OrderClosed && o.Status != fulfillment.OrderCancelled {
		return fulfillment.ErrConflict
	}
	delete(s.orders, orderID)
	return nil
}

func (s *Store) CommitConversion(_ context.Context, d fulfillment.Draft, o fulfillment.Order, b fulfillment.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.drafts[d.ID]
	if !ok || cur.StoreID != d.StoreID {
		return fulfillment.ErrNotFound
	}
	if cur.Status == fulfillment.DraftConverted && cur.OrderID == o.ID {
		// same conversion already applied
		return nil
	}
	if cur.Status != fulfillment.DraftOpen {
		return fulfillment.ErrConflict
	}
	if _, exists := s.orders[o.ID]; exists {
		return fulfillment.ErrConflict
	}
	if _, exists := s.bills[b.ID]; exists {
		return fulfillment.ErrConflict
	}
	s.drafts[d.ID] = copyDraft(d)
	s.orders[o.ID] = copyOrder(o)
	s.bills[b.ID] = copyBill(b)
	return nil
}

func (s *Store) CommitCancellation(_ context.Context, o fulfillment.Order, releases []fulfillment.InventoryDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok || cur.StoreID != o.StoreID {
		return fulfillment.ErrNotFound
	}
	if cur.Status != fulfillment.OrderOpen {
		return fulfillment.ErrConflict
	}

	now := s.nowFunc().UTC()
	next := make(map[string]fulfillment.InventoryRecord, len(releases))
	for _, delta := range releases {
		key := inventoryKey(o.StoreID, delta.VariantID)
		rec, ok := next[key]
		if !ok {
			rec, ok = s.inventory[key]
			if !ok {
				return fulfillment.ErrNotFound
			}
		}
		applied, err := apply(rec, delta, now)
		if err != nil {
			return err
		}
		next[key] = applied
	}

	for key, rec := range next {
		s.inventory[key] = rec
	}
	cur.Status = fulfillment.OrderCancelled
	cur.UpdatedAt = now
	s.orders[o.ID] = cur
	return nil
}

func (s *Store) GetInventory(_ context.Context, storeID, variantID string) (*fulfillment.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inventory[inventoryKey(storeID, variantID)]
	if !ok {
		return nil, fulfillment.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) AdjustInventory(_ context.Context, storeID string, delta fulfillment.InventoryDelta) (*fulfillment.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inventoryKey(storeID, delta.VariantID)
	rec, ok := s.inventory[key]
	if !ok {
		rec = fulfillment.InventoryRecord{VariantID: delta.VariantID, StoreID: storeID}
	}
	applied, err := apply(rec, delta, s.nowFunc().UTC())
	if err != nil {
		return nil, err
	}
	s.inventory[key] = applied
	return &applied, nil
}

func apply(rec fulfillment.InventoryRecord, delta fulfillment.InventoryDelta, now time.Time) (fulfillment.InventoryRecord, error) {
	rec.Available += delta.Available
	rec.Committed += delta.Committed
	rec.Backordered += delta.Backordered
	if rec.Available < 0 || rec.Committed < 0 || rec.Backordered < 0 {
		return fulfillment.InventoryRecord{}, fulfillment.ErrFloor
	}
	rec.UpdatedAt = now
	return rec, nil
}

func (s *Store) CreateBill(_ context.Context, b fulfillment.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bills[b.ID]; ok {
		return fulfillment.ErrConflict
	}
	s.bills[b.ID] = copyBill(b)
	return nil
}

func (s *Store) GetBill(_ context.Context, storeID, billID string) (*fulfillment.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[billID]
	if !ok || b.StoreID != storeID {
		return nil, fulfillment.ErrNotFound
	}
	out := copyBill(b)
	return &out, nil
}

func (s *Store) ListBills(_ context.Context, storeID string) ([]fulfillment.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []fulfillment.Bill{}
	for _, b := range s.bills {
		if b.StoreID == storeID {
			out = append(out, copyBill(b))
		}
	}
	slices.SortFunc(out, func(a, b fulfillment.Bill) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) AppendPayment(_ context.Context, p fulfillment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[p.BillID]
	if !ok || b.StoreID != p.StoreID {
		return fulfillment.ErrNotFound
	}
	for _, existing := range s.payments[p.BillID] {
		if existing.ID == p.ID {
			return fulfillment.ErrConflict
		}
	}
	s.payments[p.BillID] = append(s.payments[p.BillID], p)
	return nil
}

func (s *Store) ListPayments(_ context.Context, billID string) ([]fulfillment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.payments[billID]), nil
}

// Lock polls until the lease on key is free or expired, or ctx ends.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		if s.tryLock(key, token, ttl) {
			return func() { s.unlock(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return func() {}, fulfillment.ErrLocked
		case <-ticker.C:
		}
	}
}

func (s *Store) tryLock(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if l, held := s.locks[key]; held && now.Before(l.expires) {
		return false
	}
	s.locks[key] = lease{token: token, expires: now.Add(ttl)}
	return true
}

func (s *Store) unlock(key, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, held := s.locks[key]; held && l.token == token {
		delete(s.locks, key)
	}
}

func copyDraft(d fulfillment.Draft) fulfillment.Draft {
	d.Items = slices.Clone(d.Items)
	return d
}

func copyOrder(o fulfillment.Order) fulfillment.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func copyBill(b fulfillment.Bill) fulfillment.Bill {
	b.Items = slices.Clone(b.Items)
	b.Payments = nil
	return b
}
