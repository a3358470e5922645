package fulfillment

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is a single product variant on a draft or order.
type LineItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id"`
	Title     string          `json:"title,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal is quantity * unit price.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// Shipping is the shipping selection of a draft. ShippingOption and
// PickupLocation are mutually exclusive.
type Shipping struct {
	Type           string `json:"shipping_type,omitempty"`
	Option         string `json:"shipping_option,omitempty"`
	PickupLocation string `json:"pickup_location,omitempty"`
}

// Draft is a mutable sales proposal. Only open drafts can change.
type Draft struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Shipping      Shipping        `json:"shipping"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Message       string          `json:"message,omitempty"`
	Status        DraftStatus     `json:"status"`
	OrderID       string          `json:"order_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Order is the binding record produced by converting a draft. Its items are
// immutable: inventory has been committed against them.
type Order struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	DraftID       string          `json:"draft_id"`
	BillID        string          `json:"bill_id"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Shipping      Shipping        `json:"shipping"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Message       string          `json:"message,omitempty"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InventoryRecord is the per-variant stock counter.
type InventoryRecord struct {
	VariantID   string    `json:"variant_id"`
	StoreID     string    `json:"store_id"`
	Available   int64     `json:"available"`
	Committed   int64     `json:"committed"`
	Backordered int64     `json:"backordered"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryDelta is a signed change applied atomically to one record.
// Stores reject a delta that would take any counter below zero.
type InventoryDelta struct {
	VariantID   string
	Available   int64
	Committed   int64
	Backordered int64
}

// Bill is the payable record for an order or a free-standing charge.
// Status is derived from Payments and never persisted.
type Bill struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"store_id"`
	OrderID     string          `json:"order_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Items       []LineItem      `json:"items,omitempty"`
	Status      BillStatus      `json:"status"`
	Paid        decimal.Decimal `json:"paid"`
	Payments    []Payment       `json:"payments"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Payment is an immutable ledger entry against a bill. Reversals are new
// entries with a negative amount and ReversalOf set.
type Payment struct {
	ID         string          `json:"id"`
	BillID     string          `json:"bill_id"`
	StoreID    string          `json:"store_id"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Image      string          `json:"image,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Status     PaymentStatus   `json:"status"`
	ReversalOf string          `json:"reversal_of,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DraftParams carries the fields of a new draft.
type DraftParams struct {
	StoreID       string
	Items         []LineItem
	Tax           decimal.Decimal
	Currency      string
	Shipping      Shipping
	PaymentMethod string
	CustomerID    string
	Message       string
}

// DraftPatch holds optional replacements for an open draft. Nil fields are
// left unchanged.
type DraftPatch struct {
	Items         []LineItem
	Tax           *decimal.Decimal
	Currency      *string
	Shipping      *Shipping
	PaymentMethod *string
	CustomerID    *string
	Message       *string
}

// BillParams describes a free-standing charge.
type BillParams struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Currency    string
	Items       []LineItem
}

// PaymentParams describes funds applied to a bill.
type PaymentParams struct {
	Type      string
	Amount    decimal.Decimal
	Image     string
	Reference string
	Notes     string
}
