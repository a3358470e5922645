package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
)

// --- mock implementations ---

type countCall struct {
	name  string
	value float64
	dims  map[string]string
}

type mockMetrics struct {
	calls []countCall
	err   error
}

func (m *mockMetrics) Count(_ context.Context, name string, value float64, dims map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, countCall{name: name, value: value, dims: dims})
	return nil
}

func (m *mockMetrics) named(name string) []countCall {
	var out []countCall
	for _, c := range m.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func sqsMessage(t *testing.T, id string, ev fulfillment.Event) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

// --- test cases ---

func TestProcessor_RecordsMetrics(t *testing.T) {
	m := &mockMetrics{}
	p := NewProcessor(m, idempotency.NewMemoryStore(time.Hour), zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		sqsMessage(t, "m1", fulfillment.Event{Type: fulfillment.EventDraftConverted, StoreID: "s1", EntityID: "o1"}),
		sqsMessage(t, "m2", fulfillment.Event{Type: fulfillment.EventInventoryShortfall, StoreID: "s1", EntityID: "v1", Quantity: 4}),
		sqsMessage(t, "m3", fulfillment.Event{Type: fulfillment.EventDraftUpdated, StoreID: "s1", EntityID: "d1"}),
	}}

	resp, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	assert.Len(t, m.named(metricLifecycleEvents), 3)
	created := m.named(metricOrdersCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "s1", created[0].dims["store_id"])

	shortfall := m.named(metricInventoryShortfall)
	require.Len(t, shortfall, 1)
	assert.Equal(t, float64(4), shortfall[0].value)
}

func TestProcessor_DuplicateDeliveryCountedOnce(t *testing.T) {
	m := &mockMetrics{}
	p := NewProcessor(m, idempotency.NewMemoryStore(time.Hour), zap.NewNop())

	msg := sqsMessage(t, "dup", fulfillment.Event{Type: fulfillment.EventPaymentAdded, StoreID: "s1", EntityID: "b1"})
	for i := 0; i < 2; i++ {
		resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
	}
	assert.Len(t, m.named(metricPaymentsReceived), 1)
}

func TestProcessor_InvalidBodyReportsFailure(t *testing.T) {
	m := &mockMetrics{}
	p := NewProcessor(m, idempotency.NewMemoryStore(time.Hour), zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "not json"},
		{MessageId: "empty", Body: `{"entity_id":"x"}`},
		sqsMessage(t, "ok", fulfillment.Event{Type: fulfillment.EventOrderClosed, StoreID: "s1", EntityID: "o1"}),
	}}

	resp, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 2)
	assert.Equal(t, "bad", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "empty", resp.BatchItemFailures[1].ItemIdentifier)
	assert.Len(t, m.named(metricOrdersClosed), 1)
}

func TestProcessor_MetricFailureReleasesClaim(t *testing.T) {
	m := &mockMetrics{err: errors.New("throttled")}
	dedupe := idempotency.NewMemoryStore(time.Hour)
	p := NewProcessor(m, dedupe, zap.NewNop())

	msg := sqsMessage(t, "retry", fulfillment.Event{Type: fulfillment.EventBillCreated, StoreID: "s1", EntityID: "b1"})
	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)

	rec, err := dedupe.Get(context.Background(), "event#retry")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusFailed, rec.Status)

	// redelivery after CloudWatch recovers succeeds
	m.err = nil
	resp, err = p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Len(t, m.named(metricBillsCreated), 1)
}

func TestProcessor_InFlightMessageRetried(t *testing.T) {
	m := &mockMetrics{}
	dedupe := idempotency.NewMemoryStore(time.Hour)
	_, _, err := dedupe.Begin(context.Background(), "event#busy", fulfillment.EventOrderCancelled)
	require.NoError(t, err)

	p := NewProcessor(m, dedupe, zap.NewNop())
	msg := sqsMessage(t, "busy", fulfillment.Event{Type: fulfillment.EventOrderCancelled, StoreID: "s1", EntityID: "o1"})
	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Empty(t, m.calls)
}
