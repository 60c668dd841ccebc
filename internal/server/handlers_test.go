package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/billing/service"
	"github.com/carelink/billing/internal/catalog"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/ledger"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"github.com/carelink/billing/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, apiURL string) (*Server, *ledger.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	client := upstream.New(config.Config{APIBaseURL: apiURL, UpstreamTimeout: time.Second}, zap.NewNop())
	cat, err := catalog.New(catalog.Params{
		Config: config.Config{CatalogPath: t.TempDir()},
		Clock:  clk,
		Bus:    eventbus.New(),
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)

	led := ledger.NewService(ledger.Config{}, clk, node, nil, nil, zap.NewNop())
	billing := service.NewService(service.ServiceParam{
		Client:   client,
		Catalog:  cat,
		Ledger:   led,
		Resolver: upstream.NewResolver(client, client, zap.NewNop()),
		Bus:      eventbus.New(),
		Clock:    clk,
		Log:      zap.NewNop(),
	})

	engine := NewEngine(config.Config{}, obsmetrics.New(), zap.NewNop())
	srv := NewServer(ServerParams{
		Gin:     engine,
		Billing: billing,
		Catalog: cat,
		Ledger:  led,
		Log:     zap.NewNop(),
	})
	return srv, led
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")
	w := doRequest(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListRecordsWithFilters(t *testing.T) {
	srv, led := newTestServer(t, "http://unused")
	led.AddInvoiceRecord(domain.Invoice{ID: "a", PatientID: "P100"})
	led.AddPaymentRecord(domain.Payment{ID: "b", PatientID: "P200", Status: domain.PaymentStatusCompleted})

	w := doRequest(srv, http.MethodGet, "/api/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Records []domain.BillingRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 2)

	w = doRequest(srv, http.MethodGet, "/api/records?patientId=P100", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 1)

	w = doRequest(srv, http.MethodGet, "/api/records?type=payment", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 1)
}

func TestUpdateRecordStatusErrors(t *testing.T) {
	srv, led := newTestServer(t, "http://unused")
	rec := led.AddInvoiceRecord(domain.Invoice{ID: "a"})

	w := doRequest(srv, http.MethodPatch, "/api/records/missing/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(srv, http.MethodPatch, "/api/records/"+rec.ID+"/status", `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Terminal status conflicts on further transition.
	w = doRequest(srv, http.MethodPatch, "/api/records/"+rec.ID+"/status", `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidateDiscountEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")

	w := doRequest(srv, http.MethodPost, "/api/discounts/validate", `{"code":"SENIOR20"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodPost, "/api/discounts/validate", `{"code":"BOGUS"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessPaymentRequiresInvoiceReference(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")

	w := doRequest(srv, http.MethodPost, "/api/payments", `{"subtotal":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoteSyncToggle(t *testing.T) {
	srv, led := newTestServer(t, "http://unused")

	w := doRequest(srv, http.MethodPut, "/api/settings/remote-sync", `{"suppressed":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, led.IsRemoteSyncSuppressed())

	// Suppressed queue reads never touch the upstream API.
	led.AddInvoiceRecord(domain.Invoice{ID: "i1", Number: "INV-1", Status: domain.InvoiceStatusPending})
	w = doRequest(srv, http.MethodGet, "/api/invoices/queue", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "INV-1")
}
