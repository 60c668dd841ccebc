// Package service composes the billing core: it loads upstream data
// through the normalizers, derives amounts through the calculator, and
// records outcomes in the ledger.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/catalog"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/ledger"
	"github.com/carelink/billing/internal/match"
	"github.com/carelink/billing/internal/normalize"
	"github.com/carelink/billing/internal/pricing"
	"github.com/carelink/billing/internal/upstream"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// InvoiceDetail is the drill-down view of one invoice: the canonical
// invoice, the resolved upstream source records, and item class flags.
type InvoiceDetail struct {
	Invoice domain.Invoice        `json:"invoice"`
	Source  upstream.SourceDetail `json:"source"`

	HasPharmacyItems bool `json:"hasPharmacyItems"`
	HasEMRItems      bool `json:"hasEmrItems"`
}

// ProcessPaymentRequest is one cashier checkout submission.
type ProcessPaymentRequest struct {
	InvoiceID     string `json:"invoiceId"`
	InvoiceNumber string `json:"invoiceNumber"`

	PatientName string `json:"patientName"`
	PatientID   string `json:"patientId"`

	Subtotal float64              `json:"subtotal"`
	Items    []domain.InvoiceItem `json:"items"`

	DiscountCode        string  `json:"discountCode,omitempty"`
	ManualDiscountType  string  `json:"manualDiscountType,omitempty"`
	ManualDiscountValue float64 `json:"manualDiscountValue,omitempty"`

	Method       domain.PaymentMethod `json:"method"`
	CashReceived float64              `json:"cashReceived,omitempty"`
	ProcessedBy  string               `json:"processedBy,omitempty"`
	Note         string               `json:"note,omitempty"`
}

// createPaymentPayload is the wire shape the admin API accepts on
// payment creation. It is deliberately distinct from domain.Payment:
// the API names the timestamp paymentDate, not date.
type createPaymentPayload struct {
	InvoiceID     string    `json:"invoiceId,omitempty"`
	InvoiceNumber string    `json:"invoiceNumber,omitempty"`
	PatientID     string    `json:"patientId"`
	PatientName   string    `json:"patientName"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	PaymentDate   time.Time `json:"paymentDate"`
	Reference     string    `json:"reference"`
	Note          string    `json:"note"`
}

// PaymentResult is the outcome of a processed payment.
type PaymentResult struct {
	Payment   domain.Payment       `json:"payment"`
	Breakdown pricing.Breakdown    `json:"breakdown"`
	Record    domain.BillingRecord `json:"record"`
}

// DashboardSummary aggregates the ledger for the overview cards.
type DashboardSummary struct {
	TotalRevenue   float64 `json:"totalRevenue"`
	TodayRevenue   float64 `json:"todayRevenue"`
	PendingCount   int     `json:"pendingCount"`
	PendingAmount  float64 `json:"pendingAmount"`
	CompletedCount int     `json:"completedCount"`
	CancelledCount int     `json:"cancelledCount"`
	RecordCount    int     `json:"recordCount"`

	ByType   map[domain.RecordType]int `json:"byType"`
	ByMethod map[string]float64        `json:"byMethod"`
}

type ServiceParam struct {
	fx.In

	Client   *upstream.Client
	Catalog  *catalog.Catalog
	Ledger   *ledger.Service
	Resolver *upstream.Resolver
	Bus      *eventbus.Bus
	Clock    clock.Clock
	Log      *zap.Logger
}

type Service struct {
	client   *upstream.Client
	catalog  *catalog.Catalog
	ledger   *ledger.Service
	resolver *upstream.Resolver
	bus      *eventbus.Bus
	clock    clock.Clock
	log      *zap.Logger
}

func NewService(p ServiceParam) *Service {
	return &Service{
		client:   p.Client,
		catalog:  p.Catalog,
		ledger:   p.Ledger,
		resolver: p.Resolver,
		bus:      p.Bus,
		clock:    p.Clock,
		log:      p.Log.Named("billing.service"),
	}
}

// ListInvoices loads and normalizes the full upstream invoice list.
// Payments and patients are fetched alongside: payments feed status
// derivation, patients feed display-id resolution.
func (s *Service) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	rawInvoices, err := s.client.FetchInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch invoices: %w", err)
	}

	opts := normalize.InvoiceOptions{
		Source:   normalize.SourceInvoice,
		Payments: s.loadPayments(ctx),
		Patients: s.loadPatients(ctx),
		Now:      s.clock.Now(),
	}

	invoices := make([]domain.Invoice, 0, len(rawInvoices))
	for _, raw := range rawInvoices {
		invoices = append(invoices, normalize.Invoice(raw, opts))
	}
	return invoices, nil
}

// QueueInvoices returns the cashier pending queue. When remote sync is
// suppressed the upstream API is not consulted at all; the queue is
// rebuilt from pending ledger records instead.
func (s *Service) QueueInvoices(ctx context.Context) ([]domain.Invoice, error) {
	if s.ledger.IsRemoteSyncSuppressed() {
		return s.queueFromLedger(), nil
	}

	invoices, err := s.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	queue := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if normalize.ActiveForQueue(inv) {
			queue = append(queue, inv)
		}
	}
	return queue, nil
}

// GetInvoice resolves one invoice by id or number, including its
// upstream source drill-down and item classification.
func (s *Service) GetInvoice(ctx context.Context, idOrNumber string) (InvoiceDetail, error) {
	invoices, err := s.ListInvoices(ctx)
	if err != nil {
		return InvoiceDetail{}, err
	}

	for _, inv := range invoices {
		if inv.ID != idOrNumber && !strings.EqualFold(inv.Number, idOrNumber) {
			continue
		}

		detail := InvoiceDetail{Invoice: inv}
		patientID := inv.InternalPatientID
		if patientID == "" {
			patientID = inv.PatientID
		}
		detail.Source = s.resolver.ResolveSources(ctx, patientID)

		for _, item := range inv.Items {
			class := match.ClassifyItem(item)
			detail.HasPharmacyItems = detail.HasPharmacyItems || class.Pharmacy
			detail.HasEMRItems = detail.HasEMRItems || class.EMR
		}
		return detail, nil
	}
	return InvoiceDetail{}, domain.ErrRecordNotFound
}

// ProcessPayment runs the checkout flow: resolve the discount
// selection, derive the breakdown, create the payment upstream, and
// record both sides in the ledger. Marking the invoice paid upstream is
// best-effort; the ledger stays authoritative locally.
func (s *Service) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (PaymentResult, error) {
	sel := pricing.Selection{
		ManualType:  domain.DiscountType(strings.ToLower(req.ManualDiscountType)),
		ManualValue: req.ManualDiscountValue,
	}
	if req.DiscountCode != "" {
		d, err := s.catalog.Redeem(req.DiscountCode)
		if err != nil {
			return PaymentResult{}, err
		}
		sel.Discount = &d
	}

	breakdown := pricing.Compute(req.Subtotal, sel, req.Items)
	now := s.clock.Now()

	payment := domain.Payment{
		ID:            uuid.NewString(),
		InvoiceID:     req.InvoiceID,
		InvoiceNumber: req.InvoiceNumber,
		PatientName:   req.PatientName,
		PatientID:     req.PatientID,
		Amount:        breakdown.Total,
		Subtotal:      breakdown.Subtotal,
		Discount:      breakdown.DiscountAmount,
		Tax:           breakdown.TaxAmount,
		Method:        req.Method,
		Status:        domain.PaymentStatusCompleted,
		Date:          now,
		Time:          now.Format("3:04 PM"),
		Reference:     uuid.NewString(),
		ProcessedBy:   req.ProcessedBy,
		Items:         req.Items,
	}
	if req.Method == domain.PaymentMethodCash && req.CashReceived > 0 {
		payment.CashReceived = req.CashReceived
		if change := req.CashReceived - breakdown.Total; change > 0 {
			payment.Change = change
		}
	}

	created, err := s.client.CreatePayment(ctx, createPaymentPayload{
		InvoiceID:     payment.InvoiceID,
		InvoiceNumber: payment.InvoiceNumber,
		PatientID:     payment.PatientID,
		PatientName:   payment.PatientName,
		Amount:        payment.Amount,
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		PaymentDate:   payment.Date,
		Reference:     payment.Reference,
		Note:          req.Note,
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("create payment: %w", err)
	}
	if id := normalize.String(created, "_id", "id"); id != "" {
		payment.ID = id
	}

	if req.InvoiceID != "" {
		if err := s.client.MarkInvoicePaid(ctx, req.InvoiceID); err != nil {
			s.log.Warn("mark invoice paid failed",
				zap.String("invoice_id", req.InvoiceID), zap.Error(err))
		}
	}

	record := s.ledger.AddPaymentRecord(payment)
	s.ledger.RunAutomations()

	s.bus.Publish(eventbus.Event{
		Topic:     eventbus.TopicInvoiceCreated,
		DedupeKey: fmt.Sprintf("%d-%s", now.UnixMilli(), req.InvoiceNumber),
		Payload: map[string]any{
			"invoiceNumber": req.InvoiceNumber,
			"paymentId":     payment.ID,
			"amount":        breakdown.Total,
		},
	})

	return PaymentResult{Payment: payment, Breakdown: breakdown, Record: record}, nil
}

// Summary aggregates the ledger for the dashboard. It reads ledger
// state only, so it stays correct under remote-sync suppression.
func (s *Service) Summary(_ context.Context) DashboardSummary {
	records := s.ledger.GetAllRecords()
	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := DashboardSummary{
		ByType:   make(map[domain.RecordType]int),
		ByMethod: make(map[string]float64),
	}
	out.RecordCount = len(records)
	for _, rec := range records {
		out.ByType[rec.Type]++
		switch rec.Status {
		case domain.RecordStatusCompleted:
			out.CompletedCount++
			if rec.Type == domain.RecordTypePayment {
				out.TotalRevenue += rec.Amount
				if !rec.Date.Before(today) {
					out.TodayRevenue += rec.Amount
				}
				if rec.Method != "" {
					out.ByMethod[rec.Method] += rec.Amount
				}
			}
		case domain.RecordStatusPending:
			out.PendingCount++
			out.PendingAmount += rec.Amount
		case domain.RecordStatusCancelled:
			out.CancelledCount++
		}
	}
	return out
}

// queueFromLedger rebuilds a minimal pending queue from invoice-type
// ledger records.
func (s *Service) queueFromLedger() []domain.Invoice {
	records := s.ledger.GetRecordsByType(domain.RecordTypeInvoice)
	queue := make([]domain.Invoice, 0, len(records))
	for _, rec := range records {
		if rec.Status != domain.RecordStatusPending {
			continue
		}
		queue = append(queue, domain.Invoice{
			ID:          rec.ID,
			Number:      rec.Number,
			PatientName: rec.PatientName,
			PatientID:   rec.PatientID,
			Date:        rec.Date,
			Status:      domain.InvoiceStatusPending,
			Subtotal:    rec.Subtotal,
			Discount:    rec.Discount,
			Tax:         rec.Tax,
			Total:       rec.Amount,
		})
	}
	return queue
}

func (s *Service) loadPayments(ctx context.Context) []domain.Payment {
	raw, err := s.client.FetchPayments(ctx)
	if err != nil {
		s.log.Warn("payment fetch failed, deriving without payments", zap.Error(err))
		return nil
	}
	payments := make([]domain.Payment, 0, len(raw))
	for _, r := range raw {
		payments = append(payments, normalize.Payment(r))
	}
	return payments
}

func (s *Service) loadPatients(ctx context.Context) []normalize.Patient {
	raw, err := s.client.FetchPatients(ctx)
	if err != nil {
		s.log.Warn("patient fetch failed, resolving without roster", zap.Error(err))
		return nil
	}
	patients := make([]normalize.Patient, 0, len(raw))
	for _, r := range raw {
		patients = append(patients, normalize.PatientFromRaw(r))
	}
	return patients
}
