package pricing

import (
	"testing"
	"time"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/stretchr/testify/assert"
)

func TestComputeSeniorDiscountOnTaxableItems(t *testing.T) {
	senior := &domain.Discount{Code: "SENIOR20", Type: domain.DiscountTypePercentage, Value: 20, IsActive: true}
	items := []domain.InvoiceItem{
		{Description: "Paracetamol", Category: "pharmacy", Amount: 1000},
	}

	b := Compute(1000, Selection{Discount: senior}, items)

	assert.Equal(t, 200.0, b.DiscountAmount)
	assert.Equal(t, 1000.0, b.TaxableBase)
	assert.InDelta(t, 96.0, b.TaxAmount, 1e-9)
	assert.InDelta(t, 896.0, b.Total, 1e-9)
}

func TestComputeNonTaxableConsultation(t *testing.T) {
	items := []domain.InvoiceItem{
		{Description: "Checkup", Category: "consultation", Amount: 500},
	}

	b := Compute(500, Selection{}, items)

	assert.Zero(t, b.DiscountAmount)
	assert.Zero(t, b.TaxAmount)
	assert.Equal(t, 500.0, b.Total)
}

func TestComputeZeroSubtotalYieldsZeros(t *testing.T) {
	senior := &domain.Discount{Code: "SENIOR20", Type: domain.DiscountTypePercentage, Value: 20, IsActive: true}
	items := []domain.InvoiceItem{{Category: "pharmacy", Amount: 100}}

	b := Compute(0, Selection{Discount: senior}, items)

	assert.Equal(t, Breakdown{}, b)
}

func TestComputeFixedDiscountExceedingSubtotal(t *testing.T) {
	items := []domain.InvoiceItem{{Category: "pharmacy", Amount: 100}}

	b := Compute(100, Selection{ManualType: domain.DiscountTypeFixed, ManualValue: 150}, items)

	assert.Equal(t, 150.0, b.DiscountAmount)
	// Discounted taxable base clamps at zero, so no negative tax.
	assert.Zero(t, b.TaxAmount)
	// Total clamps non-negative.
	assert.Zero(t, b.Total)
}

func TestComputeNamedDiscountTakesPrecedenceOverManual(t *testing.T) {
	named := &domain.Discount{Code: "PWD20", Type: domain.DiscountTypePercentage, Value: 20, IsActive: true}
	sel := Selection{
		Discount:    named,
		ManualType:  domain.DiscountTypeFixed,
		ManualValue: 500,
	}

	b := Compute(1000, sel, nil)
	assert.Equal(t, 200.0, b.DiscountAmount)

	// Clearing the named selection makes the manual fields effective again.
	sel.Discount = nil
	b = Compute(1000, sel, nil)
	assert.Equal(t, 500.0, b.DiscountAmount)
}

func TestComputeMixedItemsTaxesOnlyTaxableBase(t *testing.T) {
	items := []domain.InvoiceItem{
		{Category: "pharmacy", Amount: 600},
		{Category: "laboratory", Amount: 400},
	}

	b := Compute(1000, Selection{}, items)

	assert.Equal(t, 600.0, b.TaxableBase)
	assert.InDelta(t, 72.0, b.TaxAmount, 1e-9)
	assert.InDelta(t, 1072.0, b.Total, 1e-9)
}

func TestComputeNoItemsMeansNoTax(t *testing.T) {
	b := Compute(750, Selection{}, nil)

	assert.Zero(t, b.TaxableBase)
	assert.Zero(t, b.TaxAmount)
	assert.Equal(t, 750.0, b.Total)
}

func TestTaxableBaseCategoryMatchIsSubstringAndCaseInsensitive(t *testing.T) {
	items := []domain.InvoiceItem{
		{Category: "Laboratory Tests", Amount: 300},
		{Category: "PHARMACY", Amount: 200},
	}
	assert.Equal(t, 200.0, TaxableBase(items))
}

func TestValidateDiscount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	maxed := 2

	cases := []struct {
		name     string
		discount domain.Discount
		want     error
	}{
		{"active", domain.Discount{IsActive: true}, nil},
		{"inactive", domain.Discount{IsActive: false}, domain.ErrDiscountInactive},
		{"not started", domain.Discount{IsActive: true, StartDate: now.AddDate(0, 0, 1)}, domain.ErrDiscountNotStarted},
		{"expired", domain.Discount{IsActive: true, EndDate: now.AddDate(0, 0, -1)}, domain.ErrDiscountExpired},
		{"usage exceeded", domain.Discount{IsActive: true, UsageCount: 2, MaxUsage: &maxed}, domain.ErrDiscountUsageExceeded},
		{"usage remaining", domain.Discount{IsActive: true, UsageCount: 1, MaxUsage: &maxed}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDiscount(tc.discount, now)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}
