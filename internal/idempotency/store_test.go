package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestBegin_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := "store-1#test-key-1"

	rec, created, err := s.Begin(ctx, key, "hash-a")
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}

	// second begin should return the in-flight record
	existing, created2, err := s.Begin(ctx, key, "hash-a")
	if err != nil {
		t.Fatalf("second Begin error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate begin")
	}
	if existing.RequestHash != "hash-a" || existing.Status != StatusInProgress {
		t.Fatalf("unexpected existing record: %+v", existing)
	}

	// Mark done
	err = s.MarkDone(ctx, key, "order-123", "{\"id\":\"order-123\"}", 201)
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	// Read raw item from mock to assert updated fields
	item := mock.table[key]
	if item == nil {
		t.Fatalf("mock item missing")
	}
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != "{\"id\":\"order-123\"}" {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	done, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if done.EntityID != "order-123" || done.ResponseStatus != 201 {
		t.Fatalf("unexpected done record: %+v", done)
	}

	// a finished key is not claimable
	if _, created, _ := s.Begin(ctx, key, "hash-a"); created {
		t.Fatalf("expected finished key to stay owned")
	}

	// MarkFailed (should overwrite status)
	err = s.MarkFailed(ctx, key, "failed-reason")
	if err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item2 := mock.table[key]
	if st, ok := item2["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item2["status"])
	}
	if n, ok := item2["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item2["note"])
	}

	// failed keys can be claimed again
	_, created3, err := s.Begin(ctx, key, "hash-a")
	if err != nil {
		t.Fatalf("Begin after failure error: %v", err)
	}
	if !created3 {
		t.Fatalf("expected failed key to be claimable")
	}
}

func TestBegin_ExpiredKeyIsClaimable(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	if _, created, err := s.Begin(ctx, "k", "h1"); err != nil || !created {
		t.Fatalf("first Begin: created=%v err=%v", created, err)
	}

	now = now.Add(2 * time.Hour)
	rec, created, err := s.Begin(ctx, "k", "h2")
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !created || rec.RequestHash != "h2" {
		t.Fatalf("expected expired key to be reclaimed, got created=%v rec=%+v", created, rec)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if _, created, _ := m.Begin(ctx, "k", "h"); !created {
		t.Fatalf("expected created=true")
	}
	if _, created, _ := m.Begin(ctx, "k", "h"); created {
		t.Fatalf("expected in-progress key to stay owned")
	}
	if err := m.MarkDone(ctx, "k", "p-1", `{"id":"p-1"}`, 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	rec, _ := m.Get(ctx, "k")
	if rec == nil || rec.Status != StatusDone || rec.EntityID != "p-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := m.MarkFailed(ctx, "k", "boom"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if _, created, _ := m.Begin(ctx, "k", "h"); !created {
		t.Fatalf("expected failed key to be claimable")
	}
}

func TestAttributevalueMarshal_Unmarshal(t *testing.T) {
	// ensure our types marshal/unmarshal cleanly
	rec := Record{
		IdempotencyKey: "k1",
		Status:         StatusInProgress,
		RequestHash:    "abc",
		EntityID:       "o1",
		CreatedAt:      time.Now().Round(time.Second),
		UpdatedAt:      time.Now().Round(time.Second),
		ExpiresAt:      time.Now().Add(24 * time.Hour).Unix(),
	}
	m, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Record
	if err := attributevalue.UnmarshalMap(m, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.IdempotencyKey != rec.IdempotencyKey || out.RequestHash != rec.RequestHash {
		t.Fatalf("unmarshal mismatch")
	}
}
