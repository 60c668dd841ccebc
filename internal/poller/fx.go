package poller

import (
	"context"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/normalize"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"github.com/carelink/billing/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Client  *upstream.Client
	Clock   clock.Clock
	Bus     *eventbus.Bus
	Metrics *obsmetrics.Metrics
	Log     *zap.Logger
}

// newPoller binds each polled source to its upstream count. The invoice
// count is post-filter: only invoices that belong in the cashier queue
// are counted, so archived or already-paid invoices never trigger
// activity notifications.
func newPoller(p Params) *Poller {
	counts := map[Source]CountFunc{
		SourceInvoices: func(ctx context.Context) (int, error) {
			return countQueueInvoices(ctx, p.Client, p.Clock)
		},
		SourcePayments: countOf(p.Client.FetchPayments),
		SourceEMR:      countOf(p.Client.FetchAppointments),
		SourcePharmacy: countOf(p.Client.FetchPharmacySales),
	}
	return New(Config{Interval: p.Config.PollInterval}, counts, p.Bus, p.Metrics, p.Log)
}

func countOf(fetch func(context.Context) ([]normalize.RawRecord, error)) CountFunc {
	return func(ctx context.Context) (int, error) {
		records, err := fetch(ctx)
		if err != nil {
			return 0, err
		}
		return len(records), nil
	}
}

func countQueueInvoices(ctx context.Context, client *upstream.Client, clk clock.Clock) (int, error) {
	rawInvoices, err := client.FetchInvoices(ctx)
	if err != nil {
		return 0, err
	}

	// Payments and patients feed status derivation and id resolution;
	// their own failures degrade to empty context, not a failed count.
	var payments []domain.Payment
	if rawPayments, err := client.FetchPayments(ctx); err == nil {
		for _, rp := range rawPayments {
			payments = append(payments, normalize.Payment(rp))
		}
	}
	var patients []normalize.Patient
	if rawPatients, err := client.FetchPatients(ctx); err == nil {
		for _, rp := range rawPatients {
			patients = append(patients, normalize.PatientFromRaw(rp))
		}
	}

	opts := normalize.InvoiceOptions{
		Source:   normalize.SourceInvoice,
		Payments: payments,
		Patients: patients,
		Now:      clk.Now(),
	}
	count := 0
	for _, raw := range rawInvoices {
		if normalize.ActiveForQueue(normalize.Invoice(raw, opts)) {
			count++
		}
	}
	return count, nil
}

func run(lc fx.Lifecycle, p *Poller) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				p.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Module wires the reconciliation poller and its tick loop.
var Module = fx.Module("poller",
	fx.Provide(newPoller),
	fx.Invoke(run),
)
