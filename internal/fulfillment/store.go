package fulfillment

import (
	"context"
	"time"
)

// Store is the persistence boundary of the fulfillment core. Implementations
// must honor the conditional semantics documented on each method; the
// lifecycle code relies on them for cross-entity consistency.
type Store interface {
	// CreateDraft persists a new draft. It fails with ErrConflict if the id exists.
	CreateDraft(ctx context.Context, d Draft) error
	// GetDraft returns ErrNotFound if the draft is absent or owned by another store.
	GetDraft(ctx context.Context, storeID, draftID string) (*Draft, error)
	// PutDraft replaces a draft only while its stored status equals expected.
	PutDraft(ctx context.Context, d Draft, expected DraftStatus) error

	GetOrder(ctx context.Context, storeID, orderID string) (*Order, error)
	// ListOrders returns the store's orders; OrderStatusAny disables the filter.
	ListOrders(ctx context.Context, storeID string, status OrderStatus) ([]Order, error)
	// UpdateOrderStatus moves an order from -> to, failing with ErrConflict
	// if the stored status is not from.
	UpdateOrderStatus(ctx context.Context, storeID, orderID string, from, to OrderStatus) error
	// DeleteOrder removes an order whose stored status is closed or cancelled,
	// failing with ErrConflict otherwise.
	DeleteOrder(ctx context.Context, storeID, orderID string) error

	// CommitConversion writes, all or nothing: the draft (status converted,
	// conditional on the stored draft being open), the new order and its bill.
	// Repeating a commit that already landed for the same order id succeeds
	// without writing again.
	CommitConversion(ctx context.Context, d Draft, o Order, b Bill) error
	// CommitCancellation writes, all or nothing: the order status change
	// open -> cancelled and every inventory release delta. A delta that would
	// take a counter below zero fails the whole write with ErrFloor.
	CommitCancellation(ctx context.Context, o Order, releases []InventoryDelta) error

	// GetInventory returns ErrNotFound for variants never stocked.
	GetInventory(ctx context.Context, storeID, variantID string) (*InventoryRecord, error)
	// AdjustInventory atomically adds delta to the record, creating it when
	// absent. It fails with ErrFloor, changing nothing, if any counter would
	// drop below zero.
	AdjustInventory(ctx context.Context, storeID string, delta InventoryDelta) (*InventoryRecord, error)

	CreateBill(ctx context.Context, b Bill) error
	GetBill(ctx context.Context, storeID, billID string) (*Bill, error)
	ListBills(ctx context.Context, storeID string) ([]Bill, error)
	// AppendPayment stores an immutable payment. Payments are never updated.
	AppendPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, billID string) ([]Payment, error)

	// Lock takes an exclusive lease on key for at most ttl, waiting while
	// another holder owns it. It returns ErrLocked if ctx ends before the
	// lease is acquired. The returned release func must be called on every
	// exit path.
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Lock keys are namespaced by entity kind.
func draftLockKey(id string) string { return "draft#" + id }
func orderLockKey(id string) string { return "order#" + id }
func billLockKey(id string) string { return "bill#" + id }
