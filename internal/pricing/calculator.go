// Package pricing computes discount, tax and total breakdowns. All
// functions here are pure and total; money shown to a cashier flows
// through Compute, so every edge resolves to a number, never an error.
package pricing

import (
	"strings"

	"github.com/carelink/billing/internal/billing/domain"
)

// VATRate is the fixed 12% VAT applied to the taxable base.
const VATRate = 0.12

// nonTaxableCategories are service categories excluded from the taxable
// base (case-insensitive substring match on the item category).
var nonTaxableCategories = []string{
	"consultation", "laboratory", "diagnostic", "service", "procedure",
}

// Selection is the active discount choice for a computation.
//
// Invariant: a named Discount, when present, always takes precedence
// over the manual fields. The manual fields are preserved, not cleared,
// by a named selection; clearing the selection (Discount = nil) makes
// them effective again.
type Selection struct {
	Discount    *domain.Discount
	ManualType  domain.DiscountType
	ManualValue float64
}

// Breakdown is the derived amount set for one invoice.
type Breakdown struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discountAmount"`
	TaxableBase    float64 `json:"taxableBase"`
	TaxAmount      float64 `json:"taxAmount"`
	Total          float64 `json:"total"`
}

// Compute derives the discount amount, tax and total for a subtotal,
// discount selection and line items. A zero subtotal yields all zeros
// regardless of the other inputs; the total is clamped non-negative.
func Compute(subtotal float64, sel Selection, items []domain.InvoiceItem) Breakdown {
	if subtotal <= 0 {
		return Breakdown{}
	}

	discountType, discountValue := sel.effective()
	discountAmount := discountValue
	if discountType == domain.DiscountTypePercentage {
		discountAmount = subtotal * discountValue / 100
	}

	taxableBase := TaxableBase(items)
	taxAmount := 0.0
	if taxableBase > 0 {
		// The discount is pro-rated onto the taxable base before the
		// VAT rate applies; a discount exceeding the subtotal zeroes
		// the base rather than producing negative tax.
		discounted := taxableBase - discountAmount*taxableBase/subtotal
		if discounted < 0 {
			discounted = 0
		}
		taxAmount = discounted * VATRate
	}

	total := subtotal - discountAmount + taxAmount
	if total < 0 {
		total = 0
	}

	return Breakdown{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxableBase:    taxableBase,
		TaxAmount:      taxAmount,
		Total:          total,
	}
}

// TaxableBase sums the item amounts whose category is not one of the
// non-taxable service categories. No items means no taxability
// information, hence a zero base.
func TaxableBase(items []domain.InvoiceItem) float64 {
	base := 0.0
	for _, item := range items {
		if taxable(item.Category) {
			base += item.Amount
		}
	}
	return base
}

func taxable(category string) bool {
	c := strings.ToLower(category)
	for _, nt := range nonTaxableCategories {
		if strings.Contains(c, nt) {
			return false
		}
	}
	return true
}

// effective resolves the named-vs-manual precedence.
func (s Selection) effective() (domain.DiscountType, float64) {
	if s.Discount != nil {
		return s.Discount.Type, s.Discount.Value
	}
	return s.ManualType, s.ManualValue
}
