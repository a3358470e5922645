package main

import (
	"context"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
)

// MetricCounter records a business metric.
type MetricCounter interface {
	Count(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

// Deduper claims SQS message ids so a redelivered message is counted once.
type Deduper interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, bool, error)
	MarkDone(ctx context.Context, key, entityID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// metric names emitted per lifecycle event
const (
	metricLifecycleEvents    = "LifecycleEvents"
	metricOrdersCreated      = "OrdersCreated"
	metricOrdersClosed       = "OrdersClosed"
	metricOrdersCancelled    = "OrdersCancelled"
	metricBillsCreated       = "BillsCreated"
	metricPaymentsReceived   = "PaymentsReceived"
	metricPaymentsReversed   = "PaymentsReversed"
	metricInventoryShortfall = "InventoryShortfallUnits"
)
