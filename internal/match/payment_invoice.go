// Package match resolves cross-source relationships: payments to the
// invoices they settle, and invoice line items to the EMR or pharmacy
// system they originated from.
package match

import (
	"math"
	"strings"

	"github.com/carelink/billing/internal/billing/domain"
)

// amountTolerance bounds the allowed drift between an invoice total and
// a payment amount in the fallback rule.
const amountTolerance = 0.01

// Rule identifies which matching rule produced a payment-invoice match.
type Rule string

const (
	RuleInvoiceID     Rule = "invoice_id"
	RuleInvoiceNumber Rule = "invoice_number"
	RuleDescription   Rule = "description"
	RulePatientAmount Rule = "patient_amount"
)

// byID and byNumber are the strict matching rules. Every caller that
// settles a payment against an invoice goes through these two.
func byID(inv domain.Invoice, pay domain.Payment) bool {
	return pay.InvoiceID != "" && inv.ID == pay.InvoiceID
}

func byNumber(inv domain.Invoice, pay domain.Payment) bool {
	return pay.InvoiceNumber != "" && inv.Number == pay.InvoiceNumber
}

// FindInvoiceForPayment matches a payment to an invoice with fixed
// precedence: (a) invoice id, (b) invoice number, (c) same patient with
// an amount within tolerance on a pending invoice. The search stops at
// the first rule that yields a match; a looser rule is never consulted
// once a stricter one has matched.
func FindInvoiceForPayment(invoices []domain.Invoice, pay domain.Payment) (*domain.Invoice, Rule, bool) {
	for i := range invoices {
		if byID(invoices[i], pay) {
			return &invoices[i], RuleInvoiceID, true
		}
	}
	for i := range invoices {
		if byNumber(invoices[i], pay) {
			return &invoices[i], RuleInvoiceNumber, true
		}
	}
	if pay.PatientID != "" {
		for i := range invoices {
			inv := &invoices[i]
			if inv.Status != domain.InvoiceStatusPending {
				continue
			}
			if inv.PatientID == pay.PatientID && math.Abs(inv.Total-pay.Amount) < amountTolerance {
				return inv, RulePatientAmount, true
			}
		}
	}
	return nil, "", false
}

// SettlingPayment returns the completed payment that settles the given
// invoice, applying the strict rules in order: by invoice id across all
// payments, then by invoice number. The loose patient+amount rule never
// forces a settle; it only guides the ledger automations.
func SettlingPayment(payments []domain.Payment, invoiceID, invoiceNumber string) (*domain.Payment, bool) {
	inv := domain.Invoice{ID: invoiceID, Number: invoiceNumber}
	for i := range payments {
		if payments[i].Completed() && byID(inv, payments[i]) {
			return &payments[i], true
		}
	}
	for i := range payments {
		if payments[i].Completed() && byNumber(inv, payments[i]) {
			return &payments[i], true
		}
	}
	return nil, false
}

// FindInvoiceRecord applies the payment-invoice precedence to the
// billing record shape used by the ledger automations: by invoice
// number, by the payment description containing the number, then by
// patient and amount within tolerance. Rule-major like
// FindInvoiceForPayment: each rule is exhausted across every candidate
// before the next looser rule is consulted.
func FindInvoiceRecord(invoices []*domain.BillingRecord, payment domain.BillingRecord) (*domain.BillingRecord, Rule, bool) {
	if payment.Number != "" {
		for _, inv := range invoices {
			if inv.Number != "" && inv.Number == payment.Number {
				return inv, RuleInvoiceNumber, true
			}
		}
	}
	if payment.Description != "" {
		for _, inv := range invoices {
			if inv.Number != "" && contains(payment.Description, inv.Number) {
				return inv, RuleDescription, true
			}
		}
	}
	if payment.PatientID != "" {
		for _, inv := range invoices {
			if inv.PatientID == payment.PatientID && math.Abs(inv.Amount-payment.Amount) < amountTolerance {
				return inv, RulePatientAmount, true
			}
		}
	}
	return nil, "", false
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
