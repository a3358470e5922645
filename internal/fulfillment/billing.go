package fulfillment

import (
	"context"

	"go.uber.org/zap"
)

// CreateBill records a free-standing charge that is not tied to an order.
func (s *Service) CreateBill(ctx context.Context, storeID string, p BillParams) (*Bill, error) {
	const op = "bill.create"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, &Error{Kind: KindMissingArguments, Op: op, Msg: "title is required"}
	}
	if !p.Amount.IsPositive() {
		return nil, &Error{Kind: KindInvalidOrder, Op: op, Msg: "amount must be positive"}
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	b := Bill{
		ID:          s.newID(),
		StoreID:     storeID,
		Title:       p.Title,
		Description: p.Description,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Items:       cloneItems(p.Items),
		CreatedAt:   s.now(),
	}
	if b.Currency == "" {
		b.Currency = s.opts.DefaultCurrency
	}
	if err := s.store.CreateBill(ctx, b); err != nil {
		return nil, wrap(op, err)
	}
	b = withSettlement(b, nil)
	s.publish(ctx, Event{Type: EventBillCreated, StoreID: storeID, EntityID: b.ID, Status: string(b.Status), Amount: b.Amount.String()})
	return &b, nil
}

// GetBill returns a bill with its payments and derived status.
func (s *Service) GetBill(ctx context.Context, storeID, billID string) (*Bill, error) {
	const op = "bill.get"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "bill id", billID); err != nil {
		return nil, err
	}
	b, err := s.loadBill(ctx, storeID, billID)
	if err != nil {
		return nil, wrap(op, err)
	}
	return b, nil
}

// GetBills lists the store's bills. Each status is recomputed from payments.
func (s *Service) GetBills(ctx context.Context, storeID string) ([]Bill, error) {
	const op = "bill.list"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	bills, err := s.store.ListBills(ctx, storeID)
	if err != nil {
		return nil, wrap(op, err)
	}
	out := make([]Bill, 0, len(bills))
	for _, b := range bills {
		payments, err := s.store.ListPayments(ctx, b.ID)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, withSettlement(b, payments))
	}
	return out, nil
}

// GetPayments returns the payment ledger of a bill, oldest first.
func (s *Service) GetPayments(ctx context.Context, storeID, billID string) ([]Payment, error) {
	const op = "bill.payments"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "bill id", billID); err != nil {
		return nil, err
	}
	b, err := s.loadBill(ctx, storeID, billID)
	if err != nil {
		return nil, wrap(op, err)
	}
	return b.Payments, nil
}

// AddPayment appends an immutable payment to a bill and returns it. The
// bill's status follows from the new payment sum.
func (s *Service) AddPayment(ctx context.Context, storeID, billID string, p PaymentParams) (*Payment, error) {
	const op = "bill.add_payment"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "bill id", billID); err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, &Error{Kind: KindInvalidOrder, Op: op, Msg: "payment amount must be positive"}
	}
	if p.Type == "" {
		return nil, &Error{Kind: KindMissingArguments, Op: op, Msg: "payment type is required"}
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var (
		payment Payment
		settled *Bill
	)
	err := s.withLock(ctx, op, billLockKey(billID), func(ctx context.Context) error {
		if _, err := s.store.GetBill(ctx, storeID, billID); err != nil {
			return err
		}
		payment = Payment{
			ID:        s.newID(),
			BillID:    billID,
			StoreID:   storeID,
			Type:      p.Type,
			Amount:    p.Amount,
			Image:     p.Image,
			Reference: p.Reference,
			Notes:     p.Notes,
			Status:    PaymentCompleted,
			CreatedAt: s.now(),
		}
		if err := s.store.AppendPayment(ctx, payment); err != nil {
			return err
		}
		b, err := s.loadBill(ctx, storeID, billID)
		if err != nil {
			return err
		}
		settled = b
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("payment added",
		zap.String("store_id", storeID), zap.String("bill_id", billID),
		zap.String("amount", payment.Amount.String()), zap.String("bill_status", string(settled.Status)))
	s.publish(ctx, Event{Type: EventPaymentAdded, StoreID: storeID, EntityID: billID, Status: string(settled.Status), Amount: payment.Amount.String()})
	return &payment, nil
}

// ReversePayment appends a negative adjustment cancelling an earlier
// payment. The original entry is left untouched; each payment can be
// reversed once and reversals cannot themselves be reversed.
func (s *Service) ReversePayment(ctx context.Context, storeID, billID, paymentID, notes string) (*Payment, error) {
	const op = "bill.reverse_payment"
	if err := validateStoreID(op, storeID); err != nil {
		return nil, err
	}
	if err := requireID(op, "bill id", billID); err != nil {
		return nil, err
	}
	if err := requireID(op, "payment id", paymentID); err != nil {
		return nil, err
	}
	if paymentID == "" {
		return nil, &Error{Kind: KindMissingArguments, Op: op, Msg: "payment id is required"}
	}
	ctx, cancel := s.begin(ctx)
	defer cancel()

	var (
		reversal Payment
		status   BillStatus
	)
	err := s.withLock(ctx, op, billLockKey(billID), func(ctx context.Context) error {
		b, err := s.loadBill(ctx, storeID, billID)
		if err != nil {
			return err
		}
		var original *Payment
		for i := range b.Payments {
			pay := b.Payments[i]
			if pay.ReversalOf == paymentID {
				return &Error{Kind: KindOperationNotPermitted, Msg: "payment already reversed"}
			}
			if pay.ID == paymentID {
				original = &pay
			}
		}
		if original == nil {
			return &Error{Kind: KindNotFound, Msg: "payment " + paymentID + " not found"}
		}
		if original.Status == PaymentReversal {
			return &Error{Kind: KindOperationNotPermitted, Msg: "a reversal cannot be reversed"}
		}

		reversal = Payment{
			ID:         s.newID(),
			BillID:     billID,
			StoreID:    storeID,
			Type:       original.Type,
			Amount:     original.Amount.Neg(),
			Reference:  original.Reference,
			Notes:      notes,
			Status:     PaymentReversal,
			ReversalOf: original.ID,
			CreatedAt:  s.now(),
		}
		if err := s.store.AppendPayment(ctx, reversal); err != nil {
			return err
		}
		status, _ = Settle(b.Amount, append(b.Payments, reversal))
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	s.logger.Info("payment reversed",
		zap.String("store_id", storeID), zap.String("bill_id", billID),
		zap.String("payment_id", paymentID), zap.String("bill_status", string(status)))
	s.publish(ctx, Event{Type: EventPaymentReversed, StoreID: storeID, EntityID: billID, Status: string(status), Amount: reversal.Amount.String()})
	return &reversal, nil
}

func (s *Service) loadBill(ctx context.Context, storeID, billID string) (*Bill, error) {
	b, err := s.store.GetBill(ctx, storeID, billID)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, billID)
	if err != nil {
		return nil, err
	}
	settled := withSettlement(*b, payments)
	return &settled, nil
}
