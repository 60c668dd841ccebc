package pricing

import (
	"time"

	"github.com/carelink/billing/internal/billing/domain"
)

// ValidateDiscount checks a discount's validity as a pure function of
// the given time and the discount fields.
func ValidateDiscount(d domain.Discount, now time.Time) error {
	if !d.IsActive {
		return domain.ErrDiscountInactive
	}
	if !d.StartDate.IsZero() && now.Before(d.StartDate) {
		return domain.ErrDiscountNotStarted
	}
	if !d.EndDate.IsZero() && now.After(d.EndDate) {
		return domain.ErrDiscountExpired
	}
	if d.MaxUsage != nil && d.UsageCount >= *d.MaxUsage {
		return domain.ErrDiscountUsageExceeded
	}
	return nil
}
