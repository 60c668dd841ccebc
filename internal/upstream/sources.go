package upstream

import (
	"context"
	"strings"

	"github.com/carelink/billing/internal/normalize"
	"go.uber.org/zap"
)

// SourceType is the badge shown on an invoice detail view.
type SourceType string

const (
	SourceTypeEMR      SourceType = "emr"
	SourceTypePharmacy SourceType = "pharmacy"
	// SourceTypeAdmin means manually created, no external source found.
	SourceTypeAdmin SourceType = "admin"
)

// AppointmentFetcher reads EMR appointments for a patient.
type AppointmentFetcher interface {
	FetchAppointments(ctx context.Context) ([]normalize.RawRecord, error)
}

// PharmacyFetcher reads pharmacy sales/transactions.
type PharmacyFetcher interface {
	FetchPharmacySales(ctx context.Context) ([]normalize.RawRecord, error)
}

// SourceDetail is the result of the invoice drill-down: the matched
// records per upstream system and the resolved badge.
type SourceDetail struct {
	Type          SourceType            `json:"sourceType"`
	Appointments  []normalize.RawRecord `json:"appointments"`
	PharmacySales []normalize.RawRecord `json:"pharmacySales"`
}

// Resolver performs the invoice -> EMR/pharmacy drill-down.
type Resolver struct {
	emr      AppointmentFetcher
	pharmacy PharmacyFetcher
	log      *zap.Logger
}

func NewResolver(emr AppointmentFetcher, pharmacy PharmacyFetcher, log *zap.Logger) *Resolver {
	return &Resolver{emr: emr, pharmacy: pharmacy, log: log.Named("upstream.resolver")}
}

// ResolveSources queries both upstream systems for records belonging to
// the patient. Each fetch is independently fallible: a failure on one
// source resolves to an empty list and never blocks the other. The badge
// is emr when the EMR fetch found records, else pharmacy, else admin.
func (r *Resolver) ResolveSources(ctx context.Context, patientID string) SourceDetail {
	detail := SourceDetail{Type: SourceTypeAdmin}

	if r.emr != nil {
		records, err := r.emr.FetchAppointments(ctx)
		if err != nil {
			r.log.Warn("emr fetch failed", zap.String("patient_id", patientID), zap.Error(err))
		} else {
			detail.Appointments = filterByPatient(records, patientID)
		}
	}
	if r.pharmacy != nil {
		records, err := r.pharmacy.FetchPharmacySales(ctx)
		if err != nil {
			r.log.Warn("pharmacy fetch failed", zap.String("patient_id", patientID), zap.Error(err))
		} else {
			detail.PharmacySales = filterByPatient(records, patientID)
		}
	}

	if len(detail.Appointments) > 0 {
		detail.Type = SourceTypeEMR
	} else if len(detail.PharmacySales) > 0 {
		detail.Type = SourceTypePharmacy
	}
	return detail
}

// filterByPatient keeps records whose patient id equals the target,
// case-insensitive, across the known id field names.
func filterByPatient(records []normalize.RawRecord, patientID string) []normalize.RawRecord {
	if patientID == "" {
		return nil
	}
	out := make([]normalize.RawRecord, 0, len(records))
	for _, rec := range records {
		candidate := normalize.String(rec, "patientId", "customerId", "patientNumber")
		if strings.EqualFold(candidate, patientID) {
			out = append(out, rec)
		}
	}
	return out
}
