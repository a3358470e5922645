package validation

// StoreURI carries the tenancy path parameter shared by every route.
type StoreURI struct {
	StoreID string `uri:"storeId" validate:"required,uuid"`
}

// Item represents a single line item. Money travels as decimal strings.
type Item struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id" validate:"required"`
	Title     string `json:"title,omitempty" validate:"max=200"`
	Quantity  int64  `json:"quantity" validate:"required,min=1,max=1000000000"` // 1..fulfillment.MaxQuantity
	UnitPrice string `json:"unit_price" validate:"required,money"`
}

// Shipping is either a shipping option or a pickup location, never both.
type Shipping struct {
	Type           string `json:"shipping_type,omitempty"`
	Option         string `json:"shipping_option,omitempty"`
	PickupLocation string `json:"pickup_location,omitempty"`
}

// CreateDraftRequest is the payload for POST /stores/:storeId/drafts
type CreateDraftRequest struct {
	Items         []Item    `json:"items" validate:"required,min=1,dive"` // at least one item
	Tax           string    `json:"tax,omitempty" validate:"omitempty,money"`
	Currency      string    `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Shipping      *Shipping `json:"shipping,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Message       string    `json:"message,omitempty" validate:"max=1000"`
}

// UpdateDraftRequest is the payload for PATCH /stores/:storeId/drafts/:id.
// Absent fields are left unchanged.
type UpdateDraftRequest struct {
	Items         []Item    `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	Tax           *string   `json:"tax,omitempty" validate:"omitempty,money"`
	Currency      *string   `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Shipping      *Shipping `json:"shipping,omitempty"`
	PaymentMethod *string   `json:"payment_method,omitempty"`
	CustomerID    *string   `json:"customer_id,omitempty"`
	Message       *string   `json:"message,omitempty" validate:"omitempty,max=1000"`
}

// CreateBillRequest is the payload for POST /stores/:storeId/bills
type CreateBillRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	Amount      string `json:"amount" validate:"required,money"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Items       []Item `json:"items,omitempty" validate:"omitempty,dive"`
}

// AddPaymentRequest is the payload for POST /stores/:storeId/bills/:id/payments
type AddPaymentRequest struct {
	Type      string `json:"type" validate:"required,max=50"`
	Amount    string `json:"amount" validate:"required,money"`
	Image     string `json:"image,omitempty" validate:"omitempty,url"`
	Reference string `json:"reference,omitempty" validate:"max=200"`
	Notes     string `json:"notes,omitempty" validate:"max=1000"`
}

// ReversePaymentRequest is the optional payload of a payment reversal.
type ReversePaymentRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

// QuantityRequest is the payload of the inventory adjustment routes.
type QuantityRequest struct {
	Quantity int64 `json:"quantity" validate:"required,min=1,max=1000000000"`
}
