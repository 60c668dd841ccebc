// Package ledger owns the unified billing record list. It is the sole
// owner of the records: every mutation goes through its methods, and
// each mutation notifies subscribers synchronously, so a listener
// reading during its callback always sees post-mutation state.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/match"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Config controls the ledger automations.
type Config struct {
	// AutoVoidDays is the age at which a still-pending record is
	// cancelled. A record dated exactly this many days ago is voided.
	AutoVoidDays int
	// AutomationInterval is how often RunAutomations is scheduled.
	AutomationInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		AutoVoidDays:       30,
		AutomationInterval: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.AutoVoidDays <= 0 {
		c.AutoVoidDays = defaults.AutoVoidDays
	}
	if c.AutomationInterval <= 0 {
		c.AutomationInterval = defaults.AutomationInterval
	}
	return c
}

// Listener receives the full record list after every mutation.
type Listener func(records []domain.BillingRecord)

type subscriber struct {
	id uint64
	fn Listener
}

// Service is the in-memory billing ledger.
type Service struct {
	mu      sync.Mutex
	records []domain.BillingRecord
	subs    []subscriber
	nextSub uint64

	suppressRemoteSync bool

	cfg     Config
	clock   clock.Clock
	genID   *snowflake.Node
	archive *Archive
	metrics *obsmetrics.Metrics
	log     *zap.Logger
}

func NewService(cfg Config, clk clock.Clock, genID *snowflake.Node, archive *Archive, m *obsmetrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		cfg:     cfg.withDefaults(),
		clock:   clk,
		genID:   genID,
		archive: archive,
		metrics: m,
		log:     log.Named("ledger"),
	}
}

// AddInvoiceRecord appends a billing record derived from an invoice and
// notifies subscribers.
func (s *Service) AddInvoiceRecord(inv domain.Invoice) domain.BillingRecord {
	rec := domain.BillingRecord{
		ID:          s.recordID(inv.ID),
		Type:        domain.RecordTypeInvoice,
		Number:      inv.Number,
		PatientName: inv.PatientName,
		PatientID:   inv.PatientID,
		Date:        inv.Date,
		Amount:      inv.Total,
		Status:      invoiceRecordStatus(inv.Status),
		Subtotal:    inv.Subtotal,
		Discount:    inv.Discount,
		Tax:         inv.Tax,
	}
	s.addRecord(&rec)
	return rec
}

// AddPaymentRecord appends a billing record derived from a payment and
// notifies subscribers.
func (s *Service) AddPaymentRecord(pay domain.Payment) domain.BillingRecord {
	rec := domain.BillingRecord{
		ID:          s.recordID(pay.ID),
		Type:        domain.RecordTypePayment,
		Number:      pay.InvoiceNumber,
		Description: "Payment for " + pay.InvoiceNumber,
		PatientName: pay.PatientName,
		PatientID:   pay.PatientID,
		Date:        pay.Date,
		Amount:      pay.Amount,
		Status:      paymentRecordStatus(pay.Status),
		Subtotal:    pay.Subtotal,
		Discount:    pay.Discount,
		Tax:         pay.Tax,
		Method:      string(pay.Method),
	}
	if pay.Reference != "" || pay.ProcessedBy != "" {
		rec.Metadata = datatypes.JSONMap{}
		if pay.Reference != "" {
			rec.Metadata["reference"] = pay.Reference
		}
		if pay.ProcessedBy != "" {
			rec.Metadata["processedBy"] = pay.ProcessedBy
		}
	}
	s.addRecord(&rec)
	return rec
}

func (s *Service) addRecord(rec *domain.BillingRecord) {
	s.mu.Lock()
	now := s.clock.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Date.IsZero() {
		rec.Date = now
	}
	s.records = append(s.records, *rec)
	if s.metrics != nil {
		s.metrics.LedgerRecords.WithLabelValues(string(rec.Type)).Inc()
	}
	s.mirror(*rec)
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	deliver(subs, snap)
}

// UpdateRecordStatus transitions a record to the given status. Terminal
// statuses (cancelled, refunded) admit no further transition.
func (s *Service) UpdateRecordStatus(id string, status domain.RecordStatus) error {
	s.mu.Lock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].Status.Terminal() {
			s.mu.Unlock()
			return domain.ErrTerminalStatus
		}
		s.records[i].Status = status
		s.records[i].UpdatedAt = s.clock.Now()
		s.mirror(s.records[i])
		snap, subs := s.snapshotLocked()
		s.mu.Unlock()

		deliver(subs, snap)
		return nil
	}
	s.mu.Unlock()
	return domain.ErrRecordNotFound
}

// ClearAllRecords empties the ledger. Notification can be suppressed
// for bulk teardown.
func (s *Service) ClearAllRecords(notifySubscribers bool) {
	s.mu.Lock()
	s.records = nil
	if s.archive != nil {
		if err := s.archive.Clear(context.Background()); err != nil {
			s.log.Warn("archive clear failed", zap.Error(err))
		}
	}
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	if notifySubscribers {
		deliver(subs, snap)
	}
}

// GetAllRecords returns a copy of the full record list.
func (s *Service) GetAllRecords() []domain.BillingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, _ := s.snapshotLocked()
	return snap
}

// GetRecordsByPatient filters by display patient id.
func (s *Service) GetRecordsByPatient(patientID string) []domain.BillingRecord {
	return s.filter(func(r domain.BillingRecord) bool { return r.PatientID == patientID })
}

// GetRecordsByType filters by record type.
func (s *Service) GetRecordsByType(t domain.RecordType) []domain.BillingRecord {
	return s.filter(func(r domain.BillingRecord) bool { return r.Type == t })
}

// GetRecordsByDateRange filters by record date, inclusive on both ends.
// A zero "to" leaves the range open-ended.
func (s *Service) GetRecordsByDateRange(from, to time.Time) []domain.BillingRecord {
	return s.filter(func(r domain.BillingRecord) bool {
		if r.Date.Before(from) {
			return false
		}
		if !to.IsZero() && r.Date.After(to) {
			return false
		}
		return true
	})
}

func (s *Service) filter(keep func(domain.BillingRecord) bool) []domain.BillingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BillingRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Subscribe registers a listener. The listener receives the current
// record list immediately, then again after every mutation, in
// subscription order. The returned handle unsubscribes.
func (s *Service) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	snap, _ := s.snapshotLocked()
	s.mu.Unlock()

	fn(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SetRemoteSyncSuppressed stores the host-set flag instructing dependent
// read paths to skip the external API and serve ledger-local data.
func (s *Service) SetRemoteSyncSuppressed(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressRemoteSync = v
}

// IsRemoteSyncSuppressed reads the remote-sync suppression flag.
func (s *Service) IsRemoteSyncSuppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressRemoteSync
}

// RunAutomations applies both automation passes: completing pending
// invoice records that have a matching payment, and voiding pending
// records older than the auto-void cutoff. Subscribers are notified once
// at the end iff anything changed.
func (s *Service) RunAutomations() {
	s.mu.Lock()
	changed := false
	now := s.clock.Now()

	// Pass 1: payment-driven completion. Each completed payment record
	// flips the pending invoice record the matcher resolves, honoring the
	// rule precedence: a number match anywhere beats a patient+amount
	// match anywhere.
	for _, pay := range s.records {
		if pay.Type != domain.RecordTypePayment || pay.Status != domain.RecordStatusCompleted {
			continue
		}
		var pending []*domain.BillingRecord
		for i := range s.records {
			if s.records[i].Type == domain.RecordTypeInvoice && s.records[i].Status == domain.RecordStatusPending {
				pending = append(pending, &s.records[i])
			}
		}
		if inv, _, ok := match.FindInvoiceRecord(pending, pay); ok {
			inv.Status = domain.RecordStatusCompleted
			inv.UpdatedAt = now
			s.mirror(*inv)
			s.countFlip("pending_completed")
			changed = true
		}
	}

	// Pass 2: auto-void stale pending records. A record dated exactly
	// AutoVoidDays ago is voided; one day less is not.
	cutoff := now.AddDate(0, 0, -s.cfg.AutoVoidDays)
	for i := range s.records {
		rec := &s.records[i]
		if rec.Status != domain.RecordStatusPending || rec.Date.IsZero() {
			continue
		}
		if !rec.Date.After(cutoff) {
			rec.Status = domain.RecordStatusCancelled
			rec.UpdatedAt = now
			s.mirror(*rec)
			s.countFlip("pending_cancelled")
			changed = true
		}
	}

	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		deliver(subs, snap)
	}
}

// RunForever schedules RunAutomations on the configured interval until
// the context is cancelled. This is the only source of state changes
// without explicit user input.
func (s *Service) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.AutomationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAutomations()
		}
	}
}

// snapshotLocked copies the records and subscriber list. Caller holds
// s.mu. Listeners run outside the lock so they may call back into the
// ledger; the snapshot they receive is the post-mutation state.
func (s *Service) snapshotLocked() ([]domain.BillingRecord, []subscriber) {
	snap := make([]domain.BillingRecord, len(s.records))
	copy(snap, s.records)
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	return snap, subs
}

func deliver(subs []subscriber, snap []domain.BillingRecord) {
	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *Service) mirror(rec domain.BillingRecord) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(context.Background(), rec); err != nil {
		s.log.Warn("archive write failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

func (s *Service) countFlip(transition string) {
	if s.metrics != nil {
		s.metrics.AutomationFlips.WithLabelValues(transition).Inc()
	}
}

func (s *Service) recordID(sourceID string) string {
	if sourceID != "" {
		return sourceID
	}
	return s.genID.Generate().String()
}

func invoiceRecordStatus(status domain.InvoiceStatus) domain.RecordStatus {
	switch status {
	case domain.InvoiceStatusPaid:
		return domain.RecordStatusCompleted
	default:
		return domain.RecordStatusPending
	}
}

func paymentRecordStatus(status domain.PaymentStatus) domain.RecordStatus {
	switch status {
	case domain.PaymentStatusCompleted:
		return domain.RecordStatusCompleted
	case domain.PaymentStatusFailed:
		return domain.RecordStatusCancelled
	default:
		return domain.RecordStatusPending
	}
}
