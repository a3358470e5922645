package dynamo

import (
	"fmt"
	"time"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/shopspring/decimal"
)

// Money is stored as decimal strings so amounts round-trip exactly.

type lineItemRecord struct {
	ProductID string `dynamodbav:"product_id"`
	VariantID string `dynamodbav:"variant_id"`
	Title     string `dynamodbav:"title,omitempty"`
	Quantity  int64  `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
}

// draftRecord is the shape persisted in the drafts table.
type draftRecord struct {
	StoreID        string           `dynamodbav:"store_id"` // PK
	DraftID        string           `dynamodbav:"draft_id"` // SK
	Items          []lineItemRecord `dynamodbav:"items"`
	Subtotal       string           `dynamodbav:"subtotal"`
	Tax            string           `dynamodbav:"tax"`
	Total          string           `dynamodbav:"total"`
	Currency       string           `dynamodbav:"currency"`
	ShippingType   string           `dynamodbav:"shipping_type,omitempty"`
	ShippingOption string           `dynamodbav:"shipping_option,omitempty"`
	PickupLocation string           `dynamodbav:"pickup_location,omitempty"`
	PaymentMethod  string           `dynamodbav:"payment_method,omitempty"`
	CustomerID     string           `dynamodbav:"customer_id,omitempty"`
	Message        string           `dynamodbav:"message,omitempty"`
	Status         string           `dynamodbav:"status"`
	OrderID        string           `dynamodbav:"order_id,omitempty"`
	CreatedAt      time.Time        `dynamodbav:"created_at"`
	UpdatedAt      time.Time        `dynamodbav:"updated_at"`
}

// orderRecord is the shape persisted in the orders table.
type orderRecord struct {
	StoreID        string           `dynamodbav:"store_id"` // PK
	OrderID        string           `dynamodbav:"order_id"` // SK
	DraftID        string           `dynamodbav:"draft_id"`
	BillID         string           `dynamodbav:"bill_id"`
	Items          []lineItemRecord `dynamodbav:"items"`
	Subtotal       string           `dynamodbav:"subtotal"`
	Tax            string           `dynamodbav:"tax"`
	Total          string           `dynamodbav:"total"`
	Currency       string           `dynamodbav:"currency"`
	ShippingType   string           `dynamodbav:"shipping_type,omitempty"`
	ShippingOption string           `dynamodbav:"shipping_option,omitempty"`
	PickupLocation string           `dynamodbav:"pickup_location,omitempty"`
	PaymentMethod  string           `dynamodbav:"payment_method,omitempty"`
	CustomerID     string           `dynamodbav:"customer_id,omitempty"`
	Message        string           `dynamodbav:"message,omitempty"`
	Status         string           `dynamodbav:"status"`
	CreatedAt      time.Time        `dynamodbav:"created_at"`
	UpdatedAt      time.Time        `dynamodbav:"updated_at"`
}

// inventoryRecord is the per-variant counter row. Counters are only ever
// changed with ADD.
type inventoryRecord struct {
	StoreID     string    `dynamodbav:"store_id"`   // PK
	VariantID   string    `dynamodbav:"variant_id"` // SK
	Available   int64     `dynamodbav:"available"`
	Committed   int64     `dynamodbav:"committed"`
	Backordered int64     `dynamodbav:"backordered"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

type billRecord struct {
	StoreID     string           `dynamodbav:"store_id"` // PK
	BillID      string           `dynamodbav:"bill_id"`  // SK
	OrderID     string           `dynamodbav:"order_id,omitempty"`
	Title       string           `dynamodbav:"title"`
	Description string           `dynamodbav:"description,omitempty"`
	Amount      string           `dynamodbav:"amount"`
	Currency    string           `dynamodbav:"currency"`
	Items       []lineItemRecord `dynamodbav:"items,omitempty"`
	CreatedAt   time.Time        `dynamodbav:"created_at"`
}

type paymentRecord struct {
	BillID     string    `dynamodbav:"bill_id"`    // PK
	PaymentID  string    `dynamodbav:"payment_id"` // SK
	StoreID    string    `dynamodbav:"store_id"`
	Type       string    `dynamodbav:"type"`
	Amount     string    `dynamodbav:"amount"`
	Image      string    `dynamodbav:"image,omitempty"`
	Reference  string    `dynamodbav:"reference,omitempty"`
	Notes      string    `dynamodbav:"notes,omitempty"`
	Status     string    `dynamodbav:"status"`
	ReversalOf string    `dynamodbav:"reversal_of,omitempty"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
}

type lockRecord struct {
	LockKey   string `dynamodbav:"lock_key"` // PK
	Owner     string `dynamodbav:"owner"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // epoch millis, also the table TTL attribute
}

func toItemRecords(items []fulfillment.LineItem) []lineItemRecord {
	out := make([]lineItemRecord, 0, len(items))
	for _, it := range items {
		out = append(out, lineItemRecord{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	return out
}

func fromItemRecords(recs []lineItemRecord) ([]fulfillment.LineItem, error) {
	out := make([]fulfillment.LineItem, 0, len(recs))
	for _, r := range recs {
		price, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %s unit price: %w", r.VariantID, err)
		}
		out = append(out, fulfillment.LineItem{
			ProductID: r.ProductID,
			VariantID: r.VariantID,
			Title:     r.Title,
			Quantity:  r.Quantity,
			UnitPrice: price,
		})
	}
	return out, nil
}

// parseMoney decodes several decimal strings at once, reporting the first
// malformed field.
func parseMoney(fields map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(fields))
	for name, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}

func fromDraft(d fulfillment.Draft) draftRecord {
	return draftRecord{
		StoreID:        d.StoreID,
		DraftID:        d.ID,
		Items:          toItemRecords(d.Items),
		Subtotal:       d.Subtotal.String(),
		Tax:            d.Tax.String(),
		Total:          d.Total.String(),
		Currency:       d.Currency,
		ShippingType:   d.Shipping.Type,
		ShippingOption: d.Shipping.Option,
		PickupLocation: d.Shipping.PickupLocation,
		PaymentMethod:  d.PaymentMethod,
		CustomerID:     d.CustomerID,
		Message:        d.Message,
		Status:         string(d.Status),
		OrderID:        d.OrderID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (r draftRecord) toDraft() (*fulfillment.Draft, error) {
	items, err := fromItemRecords(r.Items)
	if err != nil {
		return nil, err
	}
	money, err := parseMoney(map[string]string{"subtotal": r.Subtotal, "tax": r.Tax, "total": r.Total})
	if err != nil {
		return nil, err
	}
	return &fulfillment.Draft{
		ID:            r.DraftID,
		StoreID:       r.StoreID,
		Items:         items,
		Subtotal:      money["subtotal"],
		Tax:           money["tax"],
		Total:         money["total"],
		Currency:      r.Currency,
		Shipping:      fulfillment.Shipping{Type: r.ShippingType, Option: r.ShippingOption, PickupLocation: r.PickupLocation},
		PaymentMethod: r.PaymentMethod,
		CustomerID:    r.CustomerID,
		Message:       r.Message,
		Status:        fulfillment.DraftStatus(r.Status),
		OrderID:       r.OrderID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func fromOrder(o fulfillment.Order) orderRecord {
	return orderRecord{
		StoreID:        o.StoreID,
		OrderID:        o.ID,
		DraftID:        o.DraftID,
		BillID:         o.BillID,
		Items:          toItemRecords(o.Items),
		Subtotal:       o.Subtotal.String(),
		Tax:            o.Tax.String(),
		Total:          o.Total.String(),
		Currency:       o.Currency,
		ShippingType:   o.Shipping.Type,
		ShippingOption: o.Shipping.Option,
		PickupLocation: o.Shipping.PickupLocation,
		PaymentMethod:  o.PaymentMethod,
		CustomerID:     o.CustomerID,
		Message:        o.Message,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (r orderRecord) toOrder() (*fulfillment.Order, error) {
	items, err := fromItemRecords(r.Items)
	if err != nil {
		return nil, err
	}
	money, err := parseMoney(map[string]string{"subtotal": r.Subtotal, "tax": r.Tax, "total": r.Total})
	if err != nil {
		return nil, err
	}
	return &fulfillment.Order{
		ID:            r.OrderID,
		StoreID:       r.StoreID,
		DraftID:       r.DraftID,
		BillID:        r.BillID,
		Items:         items,
		Subtotal:      money["subtotal"],
		Tax:           money["tax"],
		Total:         money["total"],
		Currency:      r.Currency,
		Shipping:      fulfillment.Shipping{Type: r.ShippingType, Option: r.ShippingOption, PickupLocation: r.PickupLocation},
		PaymentMethod: r.PaymentMethod,
		CustomerID:    r.CustomerID,
		Message:       r.Message,
		Status:        fulfillment.OrderStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (r inventoryRecord) toInventory() *fulfillment.InventoryRecord {
	return &fulfillment.InventoryRecord{
		VariantID:   r.VariantID,
		StoreID:     r.StoreID,
		Available:   r.Available,
		Committed:   r.Committed,
		Backordered: r.Backordered,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromBill(b fulfillment.Bill) billRecord {
	rec := billRecord{
		StoreID:     b.StoreID,
		BillID:      b.ID,
		OrderID:     b.OrderID,
		Title:       b.Title,
		Description: b.Description,
		Amount:      b.Amount.String(),
		Currency:    b.Currency,
		CreatedAt:   b.CreatedAt,
	}
	if len(b.Items) > 0 {
		rec.Items = toItemRecords(b.Items)
	}
	return rec
}

func (r billRecord) toBill() (*fulfillment.Bill, error) {
	items, err := fromItemRecords(r.Items)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &fulfillment.Bill{
		ID:          r.BillID,
		StoreID:     r.StoreID,
		OrderID:     r.OrderID,
		Title:       r.Title,
		Description: r.Description,
		Amount:      amount,
		Currency:    r.Currency,
		Items:       items,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func fromPayment(p fulfillment.Payment) paymentRecord {
	return paymentRecord{
		BillID:     p.BillID,
		PaymentID:  p.ID,
		StoreID:    p.StoreID,
		Type:       p.Type,
		Amount:     p.Amount.String(),
		Image:      p.Image,
		Reference:  p.Reference,
		Notes:      p.Notes,
		Status:     string(p.Status),
		ReversalOf: p.ReversalOf,
		CreatedAt:  p.CreatedAt,
	}
}

func (r paymentRecord) toPayment() (fulfillment.Payment, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return fulfillment.Payment{}, fmt.Errorf("payment %s amount: %w", r.PaymentID, err)
	}
	return fulfillment.Payment{
		ID:         r.PaymentID,
		BillID:     r.BillID,
		StoreID:    r.StoreID,
		Type:       r.Type,
		Amount:     amount,
		Image:      r.Image,
		Reference:  r.Reference,
		Notes:      r.Notes,
		Status:     fulfillment.PaymentStatus(r.Status),
		ReversalOf: r.ReversalOf,
		CreatedAt:  r.CreatedAt,
	}, nil
}
