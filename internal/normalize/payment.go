package normalize

import (
	"strings"

	"github.com/carelink/billing/internal/billing/domain"
)

// Payment maps a raw payment record into the canonical Payment. Pure and
// total: missing or malformed numeric fields resolve to 0, a missing
// status defaults to completed.
func Payment(raw RawRecord) domain.Payment {
	p := domain.Payment{
		ID:            String(raw, "_id", "id"),
		InvoiceID:     String(raw, "invoiceId", "invoice"),
		InvoiceNumber: String(raw, "invoiceNumber", "invoiceNo"),
		PatientName:   String(raw, "patientName", "customerName", "name"),
		PatientID:     String(raw, "patientId", "patientNumber"),
		Amount:        Amount(raw, "amount", "total", "paymentAmount", "paid"),
		Subtotal:      Amount(raw, "subtotal", "amount", "total"),
		Discount:      Amount(raw, "discount", "discountAmount"),
		Tax:           Amount(raw, "tax", "taxAmount"),
		Method:        domain.PaymentMethod(strings.ToLower(String(raw, "method", "paymentMethod"))),
		Date:          Time(raw, "date", "paymentDate", "createdAt"),
		Reference:     String(raw, "reference", "referenceNumber"),
		CashReceived:  Amount(raw, "cashReceived"),
		Change:        Amount(raw, "change"),
		ProcessedBy:   String(raw, "processedBy", "cashier"),
		Items:         normalizeItems(raw),
	}

	status := strings.ToLower(String(raw, "status"))
	if status == "" {
		status = string(domain.PaymentStatusCompleted)
	}
	p.Status = domain.PaymentStatus(status)

	p.Time = String(raw, "time")
	if p.Time == "" {
		if created := Time(raw, "createdAt", "date", "paymentDate"); !created.IsZero() {
			p.Time = created.Format("3:04 PM")
		}
	}
	return p
}
