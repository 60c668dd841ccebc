package match

import (
	"strings"

	"github.com/carelink/billing/internal/billing/domain"
)

var pharmacyKeywords = []string{
	"pharmacy", "medicine", "medication", "drug", "pills", "tablet",
	"injection", "iv fluids", "injectable",
}

var emrKeywords = []string{
	"consultation", "diagnostic", "laboratory", "service", "procedure",
	"surgery", "therapy", "test", "scan", "x-ray", "ultrasound", "endoscopy",
}

// Classification reports which upstream systems an invoice line item can
// be attributed to. An item may match both, one, or neither.
type Classification struct {
	Pharmacy bool
	EMR      bool
}

// ClassifyItem matches the item's category and description against the
// pharmacy and EMR keyword sets (case-insensitive substring).
func ClassifyItem(item domain.InvoiceItem) Classification {
	haystack := strings.ToLower(item.Category + " " + item.Description)
	return Classification{
		Pharmacy: containsAny(haystack, pharmacyKeywords),
		EMR:      containsAny(haystack, emrKeywords),
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
