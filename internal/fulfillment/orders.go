package fulfillment

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// GetOrder returns an order owned by storeID.
func (s *Service) GetOrder(ctx context.Context, storeID, orderID string) (*Order, error) {
	const op = "order.get"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "order id", orderID); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, wrap(op, err)
	}
	return o, nil
}

// GetOrders lists the store's orders filtered by status. An empty status
// means any.
func (s *Service) GetOrders(ctx context.Context, storeID string, status OrderStatus) ([]Order, error) {
	const op = "order.list"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if status == "" {
		status = OrderStatusAny
	}
	if !status.Valid() {
		return nil, &Error{Kind: KindInvalidOrder, Op: op, Msg: "unknown order status " + string(status)}
	}
	orders, err := s.store.ListOrders(ctx, storeID, status)
	if err != nil {
		return nil, wrap(op, err)
	}
	return orders, nil
}

// CloseOrder moves an open order to closed. Committed stock stays sold.
func (s *Service) CloseOrder(ctx context.Context, storeID, orderID string) (*Order, error) {
	const op = "order.close"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "order id", orderID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var closed *Order
	err := s.withLock(ctx, op, orderLockKey(orderID), func(ctx context.Context) error {
		o, err := s.store.GetOrder(ctx, storeID, orderID)
		if err != nil {
			return err
		}
		next, err := NextOrderStatus(o.Status, ActionClose)
		if err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, storeID, orderID, o.Status, next); err != nil {
			return err
		}
		o.Status = next
		o.UpdatedAt = s.now()
		closed = o
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("order closed", zap.String("store_id", storeID), zap.String("order_id", orderID))
	s.publish(ctx, Event{Type: EventOrderClosed, StoreID: storeID, EntityID: orderID, Status: string(closed.Status)})
	return closed, nil
}

// CancelOrder releases the stock committed for every line item and marks the
// order cancelled, both in one store write. If the write fails the order
// stays open and inventory is unchanged.
func (s *Service) CancelOrder(ctx context.Context, storeID, orderID string) (*Order, error) {
	const op = "order.cancel"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "order id", orderID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var cancelled *Order
	err := s.withLock(ctx, op, orderLockKey(orderID), func(ctx context.Context) error {
		o, err := s.store.GetOrder(ctx, storeID, orderID)
		if err != nil {
			return err
		}
		next, err := NextOrderStatus(o.Status, ActionCancel)
		if err != nil {
			return err
		}

		for attempt := 1; attempt <= maxAdjustAttempts; attempt++ {
			releases, err := s.ledger.PlanRelease(ctx, storeID, o.Items)
			if err != nil {
				return err
			}
			err = s.store.CommitCancellation(ctx, *o, releases)
			if errors.Is(err, ErrFloor) {
				s.logger.Debug("inventory changed during cancellation, replanning",
					zap.String("order_id", orderID), zap.Int("attempt", attempt))
				continue
			}
			if err != nil {
				return err
			}
			o.Status = next
			o.UpdatedAt = s.now()
			cancelled = o
			return nil
		}
		return &Error{Kind: KindUnavailable, Msg: "inventory contention while cancelling"}
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("order cancelled, stock released",
		zap.String("store_id", storeID), zap.String("order_id", orderID), zap.Int("items", len(cancelled.Items)))
	s.publish(ctx, Event{Type: EventOrderCancelled, StoreID: storeID, EntityID: orderID, Status: string(cancelled.Status), Amount: cancelled.Total.String()})
	return cancelled, nil
}

// DeleteOrder removes a closed or cancelled order. Open orders must be
// closed or cancelled first.
func (s *Service) DeleteOrder(ctx context.Context, storeID, orderID string) error {
	const op = "order.delete"
	if err := validateStoreID(op, storeID); err != nil {
		return err
	}
	if err := requireID(op, "order id", orderID); err != nil {
		return err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	err := s.withLock(ctx, op, orderLockKey(orderID), func(ctx context.Context) error {
		o, err := s.store.GetOrder(ctx, storeID, orderID)
		if err != nil {
			return err
		}
		if _, err := NextOrderStatus(o.Status, ActionDelete); err != nil {
			return err
		}
		return s.store.DeleteOrder(ctx, storeID, orderID)
	})
	if err != nil {
		return wrap(op, err)
	}
	s.logger.Info("order deleted", zap.String("store_id", storeID), zap.String("order_id", orderID))
	s.publish(ctx, Event{Type: EventOrderDeleted, StoreID: storeID, EntityID: orderID})
	return nil
}
