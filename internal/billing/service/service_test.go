package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/catalog"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/ledger"
	"github.com/carelink/billing/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	bus    *eventbus.Bus
}

func newFixture(t *testing.T, apiURL string) fixture {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	client := upstream.New(config.Config{
		APIBaseURL:      apiURL,
		UpstreamTimeout: 2 * time.Second,
	}, zap.NewNop())

	cat, err := catalog.New(catalog.Params{
		Config: config.Config{CatalogPath: t.TempDir()},
		Clock:  clk,
		Bus:    eventbus.New(),
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)

	led := ledger.NewService(ledger.Config{AutoVoidDays: 30, AutomationInterval: time.Minute}, clk, node, nil, nil, zap.NewNop())
	bus := eventbus.New()

	svc := NewService(ServiceParam{
		Client:   client,
		Catalog:  cat,
		Ledger:   led,
		Resolver: upstream.NewResolver(client, client, zap.NewNop()),
		Bus:      bus,
		Clock:    clk,
		Log:      zap.NewNop(),
	})
	return fixture{svc: svc, ledger: led, bus: bus}
}

func TestProcessPaymentSeniorDiscountFlow(t *testing.T) {
	var markedPaid bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.InDelta(t, 896.0, body["amount"], 1e-9)
			assert.Equal(t, "INV-1", body["invoiceNumber"])
			assert.Equal(t, "completed", body["status"])
			assert.NotEmpty(t, body["paymentDate"])
			assert.NotEmpty(t, body["reference"])
			assert.Equal(t, "senior discount applied", body["note"])
			// The timestamp travels as paymentDate, never as date.
			_, hasDate := body["date"]
			assert.False(t, hasDate)
			w.Write([]byte(`{"_id":"pay-1"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/invoices/inv-1":
			markedPaid = true
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	sub := f.bus.Subscribe(eventbus.TopicInvoiceCreated)
	defer sub.Close()

	result, err := f.svc.ProcessPayment(context.Background(), ProcessPaymentRequest{
		InvoiceID:     "inv-1",
		InvoiceNumber: "INV-1",
		PatientName:   "Juan",
		PatientID:     "P100",
		Subtotal:      1000,
		Items:         []domain.InvoiceItem{{Category: "pharmacy", Amount: 1000}},
		DiscountCode:  "SENIOR20",
		Method:        domain.PaymentMethodCash,
		CashReceived:  1000,
		Note:          "senior discount applied",
	})
	require.NoError(t, err)

	assert.Equal(t, 200.0, result.Breakdown.DiscountAmount)
	assert.InDelta(t, 96.0, result.Breakdown.TaxAmount, 1e-9)
	assert.InDelta(t, 896.0, result.Breakdown.Total, 1e-9)
	assert.Equal(t, "pay-1", result.Payment.ID)
	assert.InDelta(t, 104.0, result.Payment.Change, 1e-9)
	assert.True(t, markedPaid)

	records := f.ledger.GetRecordsByType(domain.RecordTypePayment)
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordStatusCompleted, records[0].Status)

	assert.Len(t, sub.C(), 1)
}

func TestProcessPaymentUnknownDiscountFailsBeforeUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	_, err := f.svc.ProcessPayment(context.Background(), ProcessPaymentRequest{
		InvoiceNumber: "INV-1",
		Subtotal:      100,
		DiscountCode:  "BOGUS",
	})

	assert.ErrorIs(t, err, domain.ErrUnknownDiscountCode)
	assert.False(t, called)
}

func TestQueueInvoicesFromUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/invoices":
			w.Write([]byte(`[
				{"id":"a","number":"INV-1","status":"unpaid"},
				{"id":"b","number":"INV-2","status":"unpaid"},
				{"id":"c","number":"INV-3","status":"paid"}
			]`))
		case "/payments":
			w.Write([]byte(`[{"invoiceId":"b","status":"completed"}]`))
		case "/patients":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	queue, err := f.svc.QueueInvoices(context.Background())
	require.NoError(t, err)

	// INV-2 settled by its payment, INV-3 already paid.
	require.Len(t, queue, 1)
	assert.Equal(t, "INV-1", queue[0].Number)
}

func TestQueueInvoicesSuppressedSkipsUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.AddInvoiceRecord(domain.Invoice{ID: "i1", Number: "INV-9", Status: domain.InvoiceStatusPending, Total: 50})
	f.ledger.SetRemoteSyncSuppressed(true)

	queue, err := f.svc.QueueInvoices(context.Background())
	require.NoError(t, err)

	require.Len(t, queue, 1)
	assert.Equal(t, "INV-9", queue[0].Number)
	assert.False(t, called)
}

func TestSummaryAggregatesLedger(t *testing.T) {
	f := newFixture(t, "http://unused")
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	f.ledger.AddPaymentRecord(domain.Payment{ID: "p1", Amount: 500, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusCompleted, Date: now})
	f.ledger.AddPaymentRecord(domain.Payment{ID: "p2", Amount: 300, Method: domain.PaymentMethodGCash, Status: domain.PaymentStatusCompleted, Date: now.AddDate(0, 0, -3)})
	f.ledger.AddInvoiceRecord(domain.Invoice{ID: "i1", Total: 250, Status: domain.InvoiceStatusPending})

	sum := f.svc.Summary(context.Background())

	assert.Equal(t, 800.0, sum.TotalRevenue)
	assert.Equal(t, 500.0, sum.TodayRevenue)
	assert.Equal(t, 1, sum.PendingCount)
	assert.Equal(t, 250.0, sum.PendingAmount)
	assert.Equal(t, 3, sum.RecordCount)
	assert.Equal(t, 2, sum.ByType[domain.RecordTypePayment])
	assert.Equal(t, 500.0, sum.ByMethod["cash"])
	assert.Equal(t, 300.0, sum.ByMethod["gcash"])
}
