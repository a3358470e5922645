package fulfillment

// DraftStatus is the lifecycle state of a draft.
type DraftStatus string

const (
	DraftOpen      DraftStatus = "open"
	DraftArchived  DraftStatus = "archived"
	DraftCancelled DraftStatus = "cancelled"
	DraftConverted DraftStatus = "converted"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderClosed    OrderStatus = "closed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatusAny is the list filter matching every status.
const OrderStatusAny OrderStatus = "any"

// BillStatus is derived from the payments recorded against a bill.
type BillStatus string

const (
	BillPending       BillStatus = "pending"
	BillPartiallyPaid BillStatus = "partially_paid"
	BillPaid          BillStatus = "paid"
)

// PaymentStatus marks whether a payment entry is a normal receipt or a
// reversal adjustment.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentReversal  PaymentStatus = "reversal"
)

// Action names a requested transition.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionArchive Action = "archive"
	ActionCancel  Action = "cancel"
	ActionConvert Action = "convert"
	ActionClose   Action = "close"
	ActionDelete  Action = "delete"
)

// draftTransitions is the full draft state machine. A missing entry means the
// action is not permitted from that state.
var draftTransitions = map[DraftStatus]map[Action]DraftStatus{
	DraftOpen: {
		ActionUpdate:  DraftOpen,
		ActionArchive: DraftArchived,
		ActionCancel:  DraftCancelled,
		ActionConvert: DraftConverted,
	},
}

// orderTransitions is the full order state machine. Delete keeps the status;
// the record is removed instead.
var orderTransitions = map[OrderStatus]map[Action]OrderStatus{
	OrderOpen: {
		ActionClose:  OrderClosed,
		ActionCancel: OrderCancelled,
	},
	OrderClosed: {
		ActionDelete: OrderClosed,
	},
	OrderCancelled: {
		ActionDelete: OrderCancelled,
	},
}

// NextDraftStatus returns the state a draft moves to when action is applied,
// or an OrderOperationNotPermitted error.
func NextDraftStatus(current DraftStatus, action Action) (DraftStatus, error) {
	if next, ok := draftTransitions[current][action]; ok {
		return next, nil
	}
	return current, Errorf(KindOperationNotPermitted, "cannot %s draft in status %s", action, current)
}

// NextOrderStatus returns the state an order moves to when action is applied,
// or an OrderOperationNotPermitted error.
func NextOrderStatus(current OrderStatus, action Action) (OrderStatus, error) {
	if next, ok := orderTransitions[current][action]; ok {
		return next, nil
	}
	return current, Errorf(KindOperationNotPermitted, "cannot %s order in status %s", action, current)
}

// Valid reports whether s is a known order status filter.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderClosed, OrderCancelled, OrderStatusAny:
		return true
	}
	return false
}
