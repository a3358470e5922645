package validation

import (
	"fmt"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/shopspring/decimal"
)

// The To* methods assume the request already passed validation; parse
// errors are still returned rather than ignored.

func (it Item) toLineItem() (fulfillment.LineItem, error) {
	price, err := decimal.NewFromString(it.UnitPrice)
	if err != nil {
		return fulfillment.LineItem{}, fmt.Errorf("unit_price: %w", err)
	}
	return fulfillment.LineItem{
		ProductID: it.ProductID,
		VariantID: it.VariantID,
		Title:     it.Title,
		Quantity:  it.Quantity,
		UnitPrice: price,
	}, nil
}

func toLineItems(items []Item) ([]fulfillment.LineItem, error) {
	if items == nil {
		return nil, nil
	}
	out := make([]fulfillment.LineItem, 0, len(items))
	for i, it := range items {
		li, err := it.toLineItem()
		if err != nil {
			return nil, fmt.Errorf("items[%d].%w", i, err)
		}
		out = append(out, li)
	}
	return out, nil
}

func (s *Shipping) toShipping() fulfillment.Shipping {
	if s == nil {
		return fulfillment.Shipping{}
	}
	return fulfillment.Shipping{Type: s.Type, Option: s.Option, PickupLocation: s.PickupLocation}
}

func parseOptionalMoney(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// ToParams builds the draft parameters for storeID.
func (r CreateDraftRequest) ToParams(storeID string) (fulfillment.DraftParams, error) {
	items, err := toLineItems(r.Items)
	if err != nil {
		return fulfillment.DraftParams{}, err
	}
	tax, err := parseOptionalMoney("tax", r.Tax)
	if err != nil {
		return fulfillment.DraftParams{}, err
	}
	return fulfillment.DraftParams{
		StoreID:       storeID,
		Items:         items,
		Tax:           tax,
		Currency:      r.Currency,
		Shipping:      r.Shipping.toShipping(),
		PaymentMethod: r.PaymentMethod,
		CustomerID:    r.CustomerID,
		Message:       r.Message,
	}, nil
}

// ToPatch builds the draft patch, leaving absent fields nil.
func (r UpdateDraftRequest) ToPatch() (fulfillment.DraftPatch, error) {
	items, err := toLineItems(r.Items)
	if err != nil {
		return fulfillment.DraftPatch{}, err
	}
	patch := fulfillment.DraftPatch{
		Items:         items,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		CustomerID:    r.CustomerID,
		Message:       r.Message,
	}
	if r.Tax != nil {
		tax, err := parseOptionalMoney("tax", *r.Tax)
		if err != nil {
			return fulfillment.DraftPatch{}, err
		}
		patch.Tax = &tax
	}
	if r.Shipping != nil {
		s := r.Shipping.toShipping()
		patch.Shipping = &s
	}
	return patch, nil
}

func (r CreateBillRequest) ToParams() (fulfillment.BillParams, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return fulfillment.BillParams{}, fmt.Errorf("amount: %w", err)
	}
	items, err := toLineItems(r.Items)
	if err != nil {
		return fulfillment.BillParams{}, err
	}
	return fulfillment.BillParams{
		Title:       r.Title,
		Description: r.Description,
		Amount:      amount,
		Currency:    r.Currency,
		Items:       items,
	}, nil
}

func (r AddPaymentRequest) ToParams() (fulfillment.PaymentParams, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return fulfillment.PaymentParams{}, fmt.Errorf("amount: %w", err)
	}
	return fulfillment.PaymentParams{
		Type:      r.Type,
		Amount:    amount,
		Image:     r.Image,
		Reference: r.Reference,
		Notes:     r.Notes,
	}, nil
}
