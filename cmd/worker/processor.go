package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
)

var (
	errInFlight      = errors.New("message is being processed by another invocation")
	errMissingFields = errors.New("event missing type or store_id")
)

// Processor consumes lifecycle events from SQS and turns them into
// CloudWatch business metrics.
type Processor struct {
	metrics MetricCounter
	dedupe  Deduper
	logger  *zap.Logger
}

// NewProcessor creates a worker processor with its dependencies injected.
func NewProcessor(metrics MetricCounter, dedupe Deduper, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{metrics: metrics, dedupe: dedupe, logger: logger}
}

// Handle processes a batch and reports the messages that must be retried.
// Lambda redelivers only those; after too many attempts they land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error",
				zap.String("message_id", rec.MessageId),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev fulfillment.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.Type == "" || ev.StoreID == "" {
		return errMissingFields
	}

	key := "event#" + rec.MessageId
	existing, created, err := p.dedupe.Begin(ctx, key, ev.Type)
	if err != nil {
		return fmt.Errorf("claim message: %w", err)
	}
	if !created {
		if existing.Status == idempotency.StatusDone {
			p.logger.Info("duplicate delivery",
				zap.String("message_id", rec.MessageId),
				zap.String("event_type", ev.Type),
			)
			return nil
		}
		return errInFlight
	}

	if err := p.record(ctx, ev); err != nil {
		if mfErr := p.dedupe.MarkFailed(ctx, key, err.Error()); mfErr != nil {
			p.logger.Warn("failed to release message claim", zap.String("key", key), zap.Error(mfErr))
		}
		return err
	}

	if err := p.dedupe.MarkDone(ctx, key, ev.EntityID, "", 0); err != nil {
		return fmt.Errorf("mark message done: %w", err)
	}
	return nil
}

// record emits the generic event counter plus the metric specific to the
// event type, if any.
func (p *Processor) record(ctx context.Context, ev fulfillment.Event) error {
	dims := map[string]string{"store_id": ev.StoreID, "event_type": ev.Type}
	if err := p.metrics.Count(ctx, metricLifecycleEvents, 1, dims); err != nil {
		return err
	}

	name, value := metricFor(ev)
	if name == "" {
		return nil
	}
	if ev.Type == fulfillment.EventInventoryShortfall {
		p.logger.Warn("inventory shortfall",
			zap.String("store_id", ev.StoreID),
			zap.String("variant_id", ev.EntityID),
			zap.Int64("quantity", ev.Quantity),
		)
	}
	return p.metrics.Count(ctx, name, value, map[string]string{"store_id": ev.StoreID})
}

func metricFor(ev fulfillment.Event) (string, float64) {
	switch ev.Type {
	case fulfillment.EventDraftConverted:
		return metricOrdersCreated, 1
	case fulfillment.EventOrderClosed:
		return metricOrdersClosed, 1
	case fulfillment.EventOrderCancelled:
		return metricOrdersCancelled, 1
	case fulfillment.EventBillCreated:
		return metricBillsCreated, 1
	case fulfillment.EventPaymentAdded:
		return metricPaymentsReceived, 1
	case fulfillment.EventPaymentReversed:
		return metricPaymentsReversed, 1
	case fulfillment.EventInventoryShortfall:
		return metricInventoryShortfall, float64(ev.Quantity)
	default:
		return "", 0
	}
}
