package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with the money tag and the
// struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// money: a non-negative decimal string such as "19.99".
	_ = v.RegisterValidation("money", validateMoney)

	v.RegisterStructValidation(shippingStructValidation, Shipping{})
	// a bill that lists items must charge exactly their sum
	v.RegisterStructValidation(createBillStructValidation, CreateBillRequest{})

	return v
}

func validateMoney(fl validatorv10.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative()
}

func shippingStructValidation(sl validatorv10.StructLevel) {
	s := sl.Current().Interface().(Shipping)
	if s.Option != "" && s.PickupLocation != "" {
		sl.ReportError(s.PickupLocation, "pickup_location", "PickupLocation", "excluded_with_option", "")
	}
}

func createBillStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateBillRequest)
	if len(req.Items) == 0 {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		// reported by the money tag
		return
	}

	sum := decimal.Zero
	for _, it := range req.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	if !sum.Equal(amount) {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items", fmt.Sprintf("items sum %s != amount %s", sum.StringFixed(2), amount.StringFixed(2)))
	}
}
