package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CreateDraft validates params and persists a new open draft.
func (s *Service) CreateDraft(ctx context.Context, p DraftParams) (*Draft, error) {
	const op = "draft.create"
	if err := validateStoreID(op, p.StoreID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	now := s.now()
	d := Draft{
		ID:            s.newID(),
		StoreID:       p.StoreID,
		Items:         cloneItems(p.Items),
		Tax:           p.Tax,
		Currency:      p.Currency,
		Shipping:      p.Shipping,
		PaymentMethod: p.PaymentMethod,
		CustomerID:    p.CustomerID,
		Message:       p.Message,
		Status:        DraftOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if d.Currency == "" {
		d.Currency = s.opts.DefaultCurrency
	}
	if err := validateDraft(op, &d); err != nil {
		return nil, err
	}
	computeTotals(&d)

	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("draft created",
		zap.String("store_id", d.StoreID), zap.String("draft_id", d.ID), zap.String("total", d.Total.String()))
	s.publish(ctx, Event{Type: EventDraftCreated, StoreID: d.StoreID, EntityID: d.ID, Status: string(d.Status), Amount: d.Total.String()})
	return &d, nil
}

// GetDraft returns a draft owned by storeID.
func (s *Service) GetDraft(ctx context.Context, storeID, draftID string) (*Draft, error) {
	const op = "draft.get"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "draft id", draftID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDraft(ctx, storeID, draftID)
	if err != nil {
		return nil, wrap(op, err)
	}
	return d, nil
}

// UpdateDraft merges patch into an open draft and recomputes its totals.
func (s *Service) UpdateDraft(ctx context.Context, storeID, draftID string, patch DraftPatch) (*Draft, error) {
	const op = "draft.update"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "draft id", draftID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var updated *Draft
	err := s.withLock(ctx, op, draftLockKey(draftID), func(ctx context.Context) error {
		d, err := s.store.GetDraft(ctx, storeID, draftID)
		if err != nil {
			return err
		}
		if _, err := NextDraftStatus(d.Status, ActionUpdate); err != nil {
			return err
		}

		applyPatch(d, patch)
		if err := validateDraft(op, d); err != nil {
			return err
		}
		computeTotals(d)
		d.UpdatedAt = s.now()

		if err := s.store.PutDraft(ctx, *d, DraftOpen); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.publish(ctx, Event{Type: EventDraftUpdated, StoreID: storeID, EntityID: draftID, Status: string(updated.Status), Amount: updated.Total.String()})
	return updated, nil
}

// ArchiveDraft moves an open draft to archived. Inventory is untouched.
func (s *Service) ArchiveDraft(ctx context.Context, storeID, draftID string) (*Draft, error) {
	return s.closeDraft(ctx, "draft.archive", storeID, draftID, ActionArchive, EventDraftArchived)
}

// CancelDraft moves an open draft to cancelled. Inventory is untouched.
func (s *Service) CancelDraft(ctx context.Context, storeID, draftID string) (*Draft, error) {
	return s.closeDraft(ctx, "draft.cancel", storeID, draftID, ActionCancel, EventDraftCancelled)
}

func (s *Service) closeDraft(ctx context.Context, op, storeID, draftID string, action Action, eventType string) (*Draft, error) {
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "draft id", draftID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var closed *Draft
	err := s.withLock(ctx, op, draftLockKey(draftID), func(ctx context.Context) error {
		d, err := s.store.GetDraft(ctx, storeID, draftID)
		if err != nil {
			return err
		}
		next, err := NextDraftStatus(d.Status, action)
		if err != nil {
			return err
		}
		d.Status = next
		d.UpdatedAt = s.now()
		if err := s.store.PutDraft(ctx, *d, DraftOpen); err != nil {
			return err
		}
		closed = d
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("draft closed",
		zap.String("store_id", storeID), zap.String("draft_id", draftID), zap.String("status", string(closed.Status)))
	s.publish(ctx, Event{Type: eventType, StoreID: storeID, EntityID: draftID, Status: string(closed.Status)})
	return closed, nil
}

// ConvertToOrder commits inventory for every line item of an open draft and,
// in one store write, marks the draft converted and creates the order and
// its pending bill. A failure known not to have written anything releases
// the reservations already taken, so the draft stays open and inventory is
// left as it was. If the commit's outcome cannot be learned the reservations
// are kept and a retryable error is returned.
func (s *Service) ConvertToOrder(ctx context.Context, storeID, draftID string) (*Order, error) {
	const op = "draft.convert"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "draft id", draftID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var order *Order
	err := s.withLock(ctx, op, draftLockKey(draftID), func(ctx context.Context) error {
		d, err := s.store.GetDraft(ctx, storeID, draftID)
		if err != nil {
			return err
		}
		next, err := NextDraftStatus(d.Status, ActionConvert)
		if err != nil {
			return err
		}
		if len(d.Items) == 0 {
			return &Error{Kind: KindInvalidOrder, Msg: "draft has no items"}
		}

		reserved := make([]LineItem, 0, len(d.Items))
		for _, it := range d.Items {
			if _, err := s.ledger.Reserve(ctx, storeID, it.VariantID, it.Quantity); err != nil {
				s.rollback(ctx, storeID, draftID, reserved)
				return err
			}
			reserved = append(reserved, it)
		}

		now := s.now()
		o := Order{
			ID:            s.newID(),
			StoreID:       storeID,
			DraftID:       d.ID,
			Items:         cloneItems(d.Items),
			Subtotal:      d.Subtotal,
			Tax:           d.Tax,
			Total:         d.Total,
			Currency:      d.Currency,
			Shipping:      d.Shipping,
			PaymentMethod: d.PaymentMethod,
			CustomerID:    d.CustomerID,
			Message:       d.Message,
			Status:        OrderOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		b := Bill{
			ID:        s.newID(),
			StoreID:   storeID,
			OrderID:   o.ID,
			Title:     "Order " + o.ID,
			Amount:    d.Total,
			Currency:  d.Currency,
			Items:     cloneItems(d.Items),
			CreatedAt: now,
		}
		o.BillID = b.ID
		d.Status = next
		d.OrderID = o.ID
		d.UpdatedAt = now

		if definite, err := s.commitConversion(ctx, *d, o, b); err != nil {
			if definite {
				s.rollback(ctx, storeID, draftID, reserved)
			} else {
				s.logger.Error("conversion outcome unresolved, reservations kept",
					zap.String("store_id", storeID), zap.String("draft_id", draftID),
					zap.String("order_id", o.ID), zap.Error(err))
			}
			return err
		}
		order = &o
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}

	s.logger.Info("draft converted",
		zap.String("store_id", storeID), zap.String("draft_id", draftID),
		zap.String("order_id", order.ID), zap.String("bill_id", order.BillID))
	s.publish(ctx, Event{Type: EventDraftConverted, StoreID: storeID, EntityID: order.ID, Status: string(order.Status), Amount: order.Total.String()})
	return order, nil
}

// commitConversion writes the conversion. A failure other than a refused
// condition leaves the outcome unknown, since the write may still land, so
// the same commit is re-issued on a detached context until the store either
// applies it or refuses it. Repeating a commit is idempotent per order id.
// definite is false when the outcome is still unknown after the retry budget.
func (s *Service) commitConversion(ctx context.Context, d Draft, o Order, b Bill) (definite bool, err error) {
	err = s.store.CommitConversion(ctx, d, o, b)
	if err == nil || conversionRefused(err) {
		return true, err
	}
	s.logger.Warn("conversion outcome unknown, re-issuing commit",
		zap.String("store_id", d.StoreID), zap.String("draft_id", d.ID),
		zap.String("order_id", o.ID), zap.Error(err))

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.detachedTimeout())
	defer cancel()
	backoff := 10 * time.Millisecond
	for {
		select {
		case <-rctx.Done():
			return false, err
		case <-time.After(backoff):
		}
		err = s.store.CommitConversion(rctx, d, o, b)
		if err == nil || conversionRefused(err) {
			return true, err
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func conversionRefused(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}

// rollback releases reservations taken by a failed conversion, newest first.
// It runs detached from ctx cancellation so a timeout cannot leak stock.
func (s *Service) rollback(ctx context.Context, storeID, draftID string, reserved []LineItem) {
	if len(reserved) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.detachedTimeout())
	defer cancel()

	for i := len(reserved) - 1; i >= 0; i-- {
		it := reserved[i]
		if _, err := s.ledger.Release(rctx, storeID, it.VariantID, it.Quantity); err != nil {
			s.logger.Error("compensating release failed",
				zap.String("store_id", storeID), zap.String("draft_id", draftID),
				zap.String("variant_id", it.VariantID), zap.Int64("quantity", it.Quantity), zap.Error(err))
		}
	}
	s.logger.Warn("conversion rolled back",
		zap.String("store_id", storeID), zap.String("draft_id", draftID), zap.Int("released_items", len(reserved)))
}

func applyPatch(d *Draft, p DraftPatch) {
	if p.Items != nil {
		d.Items = cloneItems(p.Items)
	}
	if p.Tax != nil {
		d.Tax = *p.Tax
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.Shipping != nil {
		d.Shipping = *p.Shipping
	}
	if p.PaymentMethod != nil {
		d.PaymentMethod = *p.PaymentMethod
	}
	if p.CustomerID != nil {
		d.CustomerID = *p.CustomerID
	}
	if p.Message != nil {
		d.Message = *p.Message
	}
}

func validateDraft(op string, d *Draft) error {
	if len(d.Items) == 0 {
		return &Error{Kind: KindInvalidOrder, Op: op, Msg: "draft must have at least one item"}
	}
	for i, it := range d.Items {
		if it.VariantID == "" {
			return &Error{Kind: KindInvalidOrder, Op: op, Msg: "item variant id is required", Err: itemErr(i)}
		}
		if it.Quantity <= 0 {
			return &Error{Kind: KindInvalidOrder, Op: op, Msg: "item quantity must be positive", Err: itemErr(i)}
		}
		if it.Quantity > MaxQuantity {
			return &Error{Kind: KindInvalidOrder, Op: op, Msg: "item quantity exceeds the maximum", Err: itemErr(i)}
		}
		if it.UnitPrice.IsNegative() {
			return &Error{Kind: KindInvalidOrder, Op: op, Msg: "item unit price cannot be negative", Err: itemErr(i)}
		}
	}
	if d.Tax.IsNegative() {
		return &Error{Kind: KindInvalidOrder, Op: op, Msg: "tax cannot be negative"}
	}
	if d.Currency == "" {
		return &Error{Kind: KindMissingArguments, Op: op, Msg: "currency is required"}
	}
	if d.Shipping.Option != "" && d.Shipping.PickupLocation != "" {
		return &Error{Kind: KindInvalidOrder, Op: op, Msg: "shipping option and pickup location are mutually exclusive"}
	}
	return nil
}

func itemErr(i int) error {
	return fmt.Errorf("item %d", i)
}

func cloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
