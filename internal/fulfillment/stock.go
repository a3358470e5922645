package fulfillment

import (
	"context"

	"go.uber.org/zap"
)

// GetInventory returns the counters for a variant of the store.
func (s *Service) GetInventory(ctx context.Context, storeID, variantID string) (*InventoryRecord, error) {
	if err := validateStoreID("inventory.get", storeID); err != nil {
		return nil, err
	}
	return s.ledger.Get(ctx, storeID, variantID)
}

// ReserveInventory commits qty units of a variant outside of a conversion.
func (s *Service) ReserveInventory(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	return s.adjustStock(ctx, "inventory.reserve", storeID, variantID, qty, s.ledger.Reserve)
}

// ReleaseInventory returns qty previously reserved units of a variant.
func (s *Service) ReleaseInventory(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	return s.adjustStock(ctx, "inventory.release", storeID, variantID, qty, s.ledger.Release)
}

// AddInventory restocks a variant, creating its record on first use.
func (s *Service) AddInventory(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	return s.adjustStock(ctx, "inventory.add", storeID, variantID, qty, s.ledger.Add)
}

// RemoveInventory writes off available units of a variant.
func (s *Service) RemoveInventory(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error) {
	return s.adjustStock(ctx, "inventory.remove", storeID, variantID, qty, s.ledger.Remove)
}

type stockFunc func(ctx context.Context, storeID, variantID string, qty int64) (*InventoryRecord, error)

func (s *Service) adjustStock(ctx context.Context, op, storeID, variantID string, qty int64, fn stockFunc) (*InventoryRecord, error) {
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	rec, err := fn(ctx, storeID, variantID, qty)
	if err != nil {
		return nil, err
	}
	s.logger.Info("inventory adjusted",
		zap.String("op", op), zap.String("store_id", storeID), zap.String("variant_id", variantID),
		zap.Int64("quantity", qty), zap.Int64("available", rec.Available), zap.Int64("committed", rec.Committed))
	s.publish(ctx, Event{Type: EventInventoryAdjusted, StoreID: storeID, EntityID: variantID, Quantity: qty})
	if rec.Backordered > 0 {
		s.publish(ctx, Event{Type: EventInventoryShortfall, StoreID: storeID, EntityID: variantID, Quantity: rec.Backordered})
	}
	return rec, nil
}
