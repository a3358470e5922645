package fulfillment

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// maxAdjustAttempts bounds read-compute-adjust loops that race with other
// writers on the same variant.
const maxAdjustAttempts = 5

const (
	// MaxQuantity is the largest quantity a single line item or inventory
	// adjustment may carry.
	MaxQuantity = 1_000_000_000
	// MaxStock caps a variant's counters well inside int64 and the range
	// the stores can round-trip.
	MaxStock = 1_000_000_000_000_000
)

// Ledger moves stock between available, committed and backordered. Every
// mutation goes through Store.AdjustInventory, which is atomic per variant
// and never lets a counter drop below zero.
type Ledger struct {
	store          Store
	logger         *zap.Logger
	allowBackorder bool
}

// NewLedger returns a Ledger. With allowBackorder, a reservation larger than
// available stock succeeds and the shortfall is tracked as backordered.
func NewLedger(store Store, logger *zap.Logger, allowBackorder bool) *Ledger {
	return &Ledger{store: store, logger: logger, allowBackorder: allowBackorder}
}

// Get returns the current counters for a variant.
func (l *Ledger) Get(ctx context.Context, storeID, variantID string) (*InventoryRecord, error) {
	const op = "inventory.get"
	if variantID == "" {
		return nil, &Error{Kind: KindMissingArguments, Op: op, Msg: "variant id is required"}
	}
	rec, err := l.store.GetInventory(ctx, storeID, variantID)
	if err != nil {
		return nil, wrap(op, err)
	}
	return rec, nil
}

// Reserve moves qty from available to committed. Without backorder it fails
// with InsufficientInventory, changing nothing, when available < qty.
func (l *Ledger) Reserve(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	const op = "inventory.reserve"
	if err := checkQuantity(op, variantID, qty); err != nil {
		return nil, err
	}
	if !l.allowBackorder {
		rec, err := l.store.AdjustInventory(ctx, storeID, InventoryDelta{
			VariantID: variantID,
			Available: -qty,
			Committed: qty,
		})
		if errors.Is(err, ErrFloor) {
			return nil, &Error{Kind: KindInsufficientInventory, Op: op, Msg: "insufficient stock for variant " + variantID, Err: err}
		}
		if err != nil {
			return nil, wrap(op, err)
		}
		l.logger.Debug("stock reserved", zap.String("variant_id", variantID), zap.Int64("quantity", qty), zap.Int64("available", rec.Available))
		return rec, nil
	}

	return l.adjustWithRetry(ctx, op, storeID, variantID, true, func(cur InventoryRecord) InventoryDelta {
		take := min(cur.Available, qty)
		return InventoryDelta{
			VariantID:   variantID,
			Available:   -take,
			Committed:   qty,
			Backordered: qty - take,
		}
	})
}

// Release returns qty of committed stock. Backordered units are paid down
// first; the remainder goes back to available. Committed is clamped at zero.
// Callers must not release more often than they reserved.
func (l *Ledger) Release(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	const op = "inventory.release"
	if err := checkQuantity(op, variantID, qty); err != nil {
		return nil, err
	}
	return l.adjustWithRetry(ctx, op, storeID, variantID, false, func(cur InventoryRecord) InventoryDelta {
		return releaseDelta(cur, qty)
	})
}

// Add increases available stock. With backorder enabled, incoming units
// first fill outstanding backorders.
func (l *Ledger) Add(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	const op = "inventory.add"
	if err := checkQuantity(op, variantID, qty); err != nil {
		return nil, err
	}
	cur, err := l.store.GetInventory(ctx, storeID, variantID)
	switch {
	case errors.Is(err, ErrNotFound):
		cur = &InventoryRecord{VariantID: variantID, StoreID: storeID}
	case err != nil:
		return nil, wrap(op, err)
	}
	if cur.Available+cur.Committed+cur.Backordered > MaxStock-qty {
		return nil, &Error{Kind: KindInvalidOrder, Op: op, Msg: "stock for variant " + variantID + " would exceed the maximum"}
	}

	if !l.allowBackorder {
		rec, err := l.store.AdjustInventory(ctx, storeID, InventoryDelta{VariantID: variantID, Available: qty})
		if err != nil {
			return nil, wrap(op, err)
		}
		return rec, nil
	}
	return l.adjustWithRetry(ctx, op, storeID, variantID, true, func(cur InventoryRecord) InventoryDelta {
		fill := min(cur.Backordered, qty)
		return InventoryDelta{VariantID: variantID, Available: qty - fill, Backordered: -fill}
	})
}

// Remove decreases available stock, failing with InsufficientInventory
// rather than going below zero.
func (l *Ledger) Remove(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	const op = "inventory.remove"
	if err := checkQuantity(op, variantID, qty); err != nil {
		return nil, err
	}
	rec, err := l.store.AdjustInventory(ctx, storeID, InventoryDelta{VariantID: variantID, Available: -qty})
	if errors.Is(err, ErrFloor) {
		return nil, &Error{Kind: KindInsufficientInventory, Op: op, Msg: "cannot remove more than available for variant " + variantID, Err: err}
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	return rec, nil
}

// PlanRelease computes the deltas that release every line item, merged per
// variant, against the current counters. The deltas are applied by the
// caller in a single store write.
func (l *Ledger) PlanRelease(ctx context.Context, storeID string, items []LineItem) ([]InventoryDelta, error) {
	const op = "inventory.plan_release"
	order := make([]string, 0, len(items))
	qtys := make(map[string]int64, len(items))
	for _, it := range items {
		if _, seen := qtys[it.VariantID]; !seen {
			order = append(order, it.VariantID)
		}
		qtys[it.VariantID] += it.Quantity
	}

	deltas := make([]InventoryDelta, 0, len(order))
	for _, variantID := range order {
		cur, err := l.store.GetInventory(ctx, storeID, variantID)
		if err != nil {
			return nil, wrap(op, err)
		}
		deltas = append(deltas, releaseDelta(*cur, qtys[variantID]))
	}
	return deltas, nil
}

func (l *Ledger) adjustWithRetry(ctx context.Context, op, storeID, variantID string, createIfMissing bool, plan func(InventoryRecord) InventoryDelta) (*InventoryRecord, error) {
	for attempt := 1; attempt <= maxAdjustAttempts; attempt++ {
		cur, err := l.store.GetInventory(ctx, storeID, variantID)
		switch {
		case errors.Is(err, ErrNotFound) && createIfMissing:
			cur = &InventoryRecord{VariantID: variantID, StoreID: storeID}
		case err != nil:
			return nil, wrap(op, err)
		}

		rec, err := l.store.AdjustInventory(ctx, storeID, plan(*cur))
		if errors.Is(err, ErrFloor) {
			l.logger.Debug("inventory changed concurrently, retrying",
				zap.String("op", op), zap.String("variant_id", variantID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, wrap(op, err)
		}
		if rec.Backordered > 0 {
			l.logger.Info("variant backordered",
				zap.String("variant_id", variantID), zap.Int64("backordered", rec.Backordered))
		}
		return rec, nil
	}
	return nil, &Error{Kind: KindUnavailable, Op: op, Msg: "too much contention on variant " + variantID}
}

func releaseDelta(cur InventoryRecord, qty int64) InventoryDelta {
	back := min(cur.Backordered, qty)
	return InventoryDelta{
		VariantID:   cur.VariantID,
		Available:   qty - back,
		Committed:   -min(cur.Committed, qty),
		Backordered: -back,
	}
}

func checkQuantity(op, variantID string, qty int64) error {
	if variantID == "" {
		return &Error{Kind: KindMissingArguments, Op: op, Msg: "variant id is required"}
	}
	if qty <= 0 {
		return &Error{Kind: KindInvalidOrder, Op: op, Msg: "quantity must be positive"}
	}
	if qty > MaxQuantity {
		return &Error{Kind: KindInvalidOrder, Op: op, Msg: "quantity exceeds the maximum"}
	}
	return nil
}
