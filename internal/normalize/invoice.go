package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/match"
)

// friendlyPatientID is the only patient id pattern allowed on display
// surfaces. Anything else is an opaque upstream id and stays internal.
var friendlyPatientID = regexp.MustCompile(`(?i)^P\d{3,}$`)

// Patient is the slice of the patient list the normalizer needs for
// display-id resolution.
type Patient struct {
	InternalID string
	Number     string
	Name       string
}

// PatientFromRaw extracts the lookup fields from a raw patient record.
func PatientFromRaw(raw RawRecord) Patient {
	return Patient{
		InternalID: String(raw, "_id", "id"),
		Number:     String(raw, "patientNumber", "accountId"),
		Name:       String(raw, "name", "fullName", "patientName"),
	}
}

// InvoiceOptions carries the cross-record context invoice normalization
// depends on: the payment list for status derivation, the patient list
// for display-id resolution, and the reference time for synthesized
// numbers.
type InvoiceOptions struct {
	Source   Source
	Payments []domain.Payment
	Patients []Patient
	Now      time.Time
}

// Invoice maps a raw invoice-like record from any upstream source into
// the canonical Invoice. Total: every fallback is defined, nothing
// errors.
func Invoice(raw RawRecord, opts InvoiceOptions) domain.Invoice {
	shaped := reshape(raw, opts.Source)

	id := String(shaped, "_id", "id")
	number := String(shaped, "number", "invoiceNumber")
	if number == "" {
		number = synthesizeNumber(id, opts.Now)
	}

	internalPatientID := String(shaped, "patientId", "patient", "patient_id")
	displayPatientID := resolveDisplayPatientID(shaped, internalPatientID, opts.Patients)

	subtotal := resolveSubtotal(shaped)

	inv := domain.Invoice{
		ID:                id,
		Number:            number,
		PatientName:       String(shaped, "patientName", "customerName", "name"),
		PatientID:         displayPatientID,
		InternalPatientID: internalPatientID,
		Date:              Time(shaped, "date", "invoiceDate", "createdAt"),
		DueDate:           Time(shaped, "dueDate"),
		Subtotal:          subtotal,
		Discount:          Amount(shaped, "discount", "discountAmount"),
		DiscountType:      String(shaped, "discountType"),
		Tax:               Amount(shaped, "tax", "taxAmount"),
		Total:             Amount(shaped, "total", "totalAmount", "amount"),
		Items:             normalizeItems(shaped),
		GeneratedBy:       String(shaped, "generatedBy", "createdBy"),
		GeneratedAt:       Time(shaped, "generatedAt"),
		Notes:             String(shaped, "notes", "note"),
		CreatedAt:         String(shaped, "createdAt"),
	}
	inv.DiscountPercentage = Amount(shaped, "discountPercentage")
	inv.Status = deriveStatus(inv.ID, inv.Number, rawStatus(shaped), opts.Payments)
	return inv
}

// rawStatus lower-cases the upstream status, defaulting to unpaid.
func rawStatus(raw RawRecord) string {
	s := strings.ToLower(String(raw, "status", "state"))
	if s == "" {
		s = "unpaid"
	}
	return s
}

// deriveStatus applies the fixed precedence: a completed payment matched
// by invoice id, then invoice number, forces paid regardless of the raw
// status; otherwise the raw status collapses into the canonical set. The
// payment match itself lives in the match package.
func deriveStatus(id, number, raw string, payments []domain.Payment) domain.InvoiceStatus {
	if _, ok := match.SettlingPayment(payments, id, number); ok {
		return domain.InvoiceStatusPaid
	}

	switch raw {
	case "draft", "unpaid", "sent":
		return domain.InvoiceStatusPending
	case "completed":
		return domain.InvoiceStatusPaid
	default:
		return domain.InvoiceStatus(raw)
	}
}

func resolveDisplayPatientID(raw RawRecord, internalID string, patients []Patient) string {
	if display := String(raw, "patientNumber", "accountId"); display != "" {
		return display
	}
	if pid := String(raw, "patientId"); friendlyPatientID.MatchString(pid) {
		return pid
	}
	// Last resort: position in the previously-loaded patient list.
	if internalID != "" {
		for i, p := range patients {
			if p.InternalID == internalID {
				if p.Number != "" {
					return p.Number
				}
				return fmt.Sprintf("P%d", i+1)
			}
		}
	}
	return ""
}

func resolveSubtotal(raw RawRecord) float64 {
	if raw.Has("subtotal") {
		return Amount(raw, "subtotal")
	}
	if raw.Has("total") {
		return Amount(raw, "total") - Amount(raw, "tax") - Amount(raw, "discount")
	}
	return 0
}

func synthesizeNumber(id string, now time.Time) string {
	base := id
	if base == "" {
		if now.IsZero() {
			now = time.Now()
		}
		base = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if len(base) > 6 {
		base = base[len(base)-6:]
	}
	return "INV-" + base
}

func normalizeItems(raw RawRecord) []domain.InvoiceItem {
	rawItems := List(raw, "items", "lineItems", "medicines", "services")
	if len(rawItems) == 0 {
		return nil
	}
	items := make([]domain.InvoiceItem, 0, len(rawItems))
	for _, ri := range rawItems {
		qty := Amount(ri, "quantity", "qty")
		if qty == 0 {
			qty = 1
		}
		rate := Amount(ri, "rate", "unitPrice", "price")
		amount := Amount(ri, "amount", "totalPrice", "total")
		if amount == 0 {
			amount = qty * rate
		}
		items = append(items, domain.InvoiceItem{
			ID:          String(ri, "_id", "id"),
			Description: String(ri, "description", "name", "medicineName", "serviceName"),
			Quantity:    qty,
			Rate:        rate,
			Amount:      amount,
			Category:    String(ri, "category", "type"),
		})
	}
	return items
}

// reshape maps shape-specific aliases onto the shared invoice field
// names, one mapping per known source shape.
func reshape(raw RawRecord, source Source) RawRecord {
	switch source {
	case SourceSale:
		return aliased(raw, map[string][]string{
			"number":      {"saleNumber", "receiptNumber"},
			"patientId":   {"customerId"},
			"patientName": {"customerName"},
			"total":       {"grandTotal"},
		})
	case SourceAppointment:
		return aliased(raw, map[string][]string{
			"number":      {"appointmentNumber"},
			"total":       {"fee", "totalFee"},
			"date":        {"appointmentDate"},
			"patientName": {"patient"},
		})
	default:
		return raw
	}
}

// aliased returns a copy of raw where each target key, when absent, is
// filled from the first defined alias. The original record is never
// mutated; normalizers always produce fresh objects.
func aliased(raw RawRecord, aliases map[string][]string) RawRecord {
	out := make(RawRecord, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for target, candidates := range aliases {
		if out.Has(target) {
			continue
		}
		for _, c := range candidates {
			if out.Has(c) {
				out[target] = out[c]
				break
			}
		}
	}
	return out
}

// ActiveForQueue reports whether the invoice belongs in the cashier
// pending queue: not archived upstream, and still awaiting payment.
func ActiveForQueue(inv domain.Invoice) bool {
	if strings.Contains(strings.ToLower(inv.CreatedAt), "archived") {
		return false
	}
	switch inv.Status {
	case domain.InvoiceStatusPending, domain.InvoiceStatusDraft, domain.InvoiceStatusSent:
		return true
	default:
		return false
	}
}
