package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftTransitions(t *testing.T) {
	tests := []struct {
		from    DraftStatus
		action  Action
		want    DraftStatus
		allowed bool
	}{
		{DraftOpen, ActionUpdate, DraftOpen, true},
		{DraftOpen, ActionArchive, DraftArchived, true},
		{DraftOpen, ActionCancel, DraftCancelled, true},
		{DraftOpen, ActionConvert, DraftConverted, true},
		{DraftOpen, ActionClose, DraftOpen, false},
		{DraftArchived, ActionConvert, DraftArchived, false},
		{DraftCancelled, ActionUpdate, DraftCancelled, false},
		{DraftConverted, ActionConvert, DraftConverted, false},
		{DraftConverted, ActionCancel, DraftConverted, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.from, tt.action), func(t *testing.T) {
			got, err := NextDraftStatus(tt.from, tt.action)
			assert.Equal(t, tt.want, got)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsKind(err, KindOperationNotPermitted), err)
		})
	}

	for _, s := range []DraftStatus{DraftArchived, DraftCancelled, DraftConverted} {
		for _, a := range []Action{ActionUpdate, ActionArchive, ActionCancel, ActionConvert} {
			_, err := NextDraftStatus(s, a)
			assert.Error(t, err, "%s/%s", s, a)
		}
	}
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		action  Action
		want    OrderStatus
		allowed bool
	}{
		{OrderOpen, ActionClose, OrderClosed, true},
		{OrderOpen, ActionCancel, OrderCancelled, true},
		{OrderOpen, ActionDelete, OrderOpen, false},
		{OrderClosed, ActionCancel, OrderClosed, false},
		{OrderClosed, ActionClose, OrderClosed, false},
		{OrderClosed, ActionDelete, OrderClosed, true},
		{OrderCancelled, ActionClose, OrderCancelled, false},
		{OrderCancelled, ActionDelete, OrderCancelled, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.from, tt.action), func(t *testing.T) {
			got, err := NextOrderStatus(tt.from, tt.action)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.allowed, err == nil, err)
		})
	}
}

func TestSettle(t *testing.T) {
	d := decimal.RequireFromString
	pay := func(amounts ...string) []Payment {
		out := make([]Payment, 0, len(amounts))
		for _, a := range amounts {
			out = append(out, Payment{Amount: d(a)})
		}
		return out
	}

	tests := []struct {
		name     string
		amount   string
		payments []Payment
		want     BillStatus
		paid     string
	}{
		{"no payments", "100", nil, BillPending, "0"},
		{"partial", "100", pay("30", "20.50"), BillPartiallyPaid, "50.5"},
		{"exact", "100", pay("99.99", "0.01"), BillPaid, "100"},
		{"overpaid", "100", pay("150"), BillPaid, "150"},
		{"fully reversed", "100", pay("40", "-40"), BillPending, "0"},
		{"zero amount bill", "0", nil, BillPending, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, paid := Settle(d(tt.amount), tt.payments)
			assert.Equal(t, tt.want, status)
			assert.True(t, paid.Equal(d(tt.paid)), paid.String())
		})
	}
}

func TestWrapTranslatesSentinels(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{ErrNotFound, KindNotFound},
		{ErrFloor, KindInsufficientInventory},
		{ErrConflict, KindOperationNotPermitted},
		{ErrLocked, KindUnavailable},
		{fmt.Errorf("transact: %w", ErrUnavailable), KindUnavailable},
		{context.DeadlineExceeded, KindUnavailable},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		err := wrap("op", tt.err)
		require.Error(t, err)
		assert.Equal(t, tt.kind, KindOf(err), tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
	}

	typed := &Error{Kind: KindMissingArguments, Msg: "x"}
	assert.Same(t, typed, wrap("draft.update", typed))
	assert.Equal(t, "draft.update", typed.Op)
	assert.Nil(t, wrap("op", nil))
}

func TestReleaseDeltaPaysBackorderFirst(t *testing.T) {
	got := releaseDelta(InventoryRecord{VariantID: "v", Available: 0, Committed: 5, Backordered: 3}, 4)
	assert.Equal(t, InventoryDelta{VariantID: "v", Available: 1, Committed: -4, Backordered: -3}, got)

	got = releaseDelta(InventoryRecord{VariantID: "v", Committed: 1}, 3)
	assert.Equal(t, InventoryDelta{VariantID: "v", Available: 3, Committed: -1}, got)
}
