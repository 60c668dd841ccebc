// Package upstream is the HTTP client for the hospital systems the
// billing core reconciles against: the admin API, the EMR, and the
// pharmacy point of sale.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/normalize"
	"go.uber.org/zap"
)

// Client talks to the upstream systems. An empty EMR or pharmacy base
// URL means that system is not deployed; its fetches resolve to empty
// lists, never an error.
type Client struct {
	http *http.Client

	apiBase      string
	emrBase      string
	pharmacyBase string

	log *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		apiBase:      strings.TrimRight(cfg.APIBaseURL, "/"),
		emrBase:      strings.TrimRight(cfg.EMRBaseURL, "/"),
		pharmacyBase: strings.TrimRight(cfg.PharmacyBaseURL, "/"),
		log:          log.Named("upstream"),
	}
}

// FetchInvoices reads the raw invoice list from the admin API.
func (c *Client) FetchInvoices(ctx context.Context) ([]normalize.RawRecord, error) {
	return c.fetchList(ctx, c.apiBase+"/invoices", "invoices")
}

// FetchPayments reads the raw payment list from the admin API.
func (c *Client) FetchPayments(ctx context.Context) ([]normalize.RawRecord, error) {
	return c.fetchList(ctx, c.apiBase+"/payments", "payments")
}

// FetchPatients reads the patient roster from the admin API.
func (c *Client) FetchPatients(ctx context.Context) ([]normalize.RawRecord, error) {
	return c.fetchList(ctx, c.apiBase+"/patients", "patients")
}

// FetchAppointments reads EMR appointments. Resolves to an empty list
// when no EMR is configured.
func (c *Client) FetchAppointments(ctx context.Context) ([]normalize.RawRecord, error) {
	if c.emrBase == "" {
		return nil, nil
	}
	return c.fetchList(ctx, c.emrBase+"/appointments", "appointments")
}

// FetchPharmacySales reads pharmacy sales. Resolves to an empty list
// when no pharmacy system is configured.
func (c *Client) FetchPharmacySales(ctx context.Context) ([]normalize.RawRecord, error) {
	if c.pharmacyBase == "" {
		return nil, nil
	}
	return c.fetchList(ctx, c.pharmacyBase+"/sales", "sales", "transactions")
}

// CreatePayment posts a new payment to the admin API and returns the
// created record. The API answers either with the bare record or with a
// {"data": {...}} envelope.
func (c *Client) CreatePayment(ctx context.Context, payment any) (normalize.RawRecord, error) {
	body, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if data, ok := decoded["data"].(map[string]any); ok {
		return normalize.RawRecord(data), nil
	}
	return normalize.RawRecord(decoded), nil
}

// MarkInvoicePaid asks the admin API to flip an invoice to paid. Errors
// are reported but the caller treats the call as best-effort.
func (c *Client) MarkInvoicePaid(ctx context.Context, invoiceID string) error {
	body := []byte(`{"status":"paid"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.apiBase+"/invoices/"+invoiceID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// fetchList GETs a URL and decodes the result as a record list. The
// upstream APIs answer either with a bare JSON array or an envelope
// object keyed by "data" or an endpoint-specific name.
func (c *Client) fetchList(ctx context.Context, url string, envelopeKeys ...string) ([]normalize.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, envelopeKeys...)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

func decodeList(raw []byte, envelopeKeys ...string) ([]normalize.RawRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return toRecords(items), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	for _, key := range append([]string{"data"}, envelopeKeys...) {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, fmt.Errorf("decode envelope key %q: %w", key, err)
		}
		return toRecords(items), nil
	}
	return nil, nil
}

func toRecords(items []map[string]any) []normalize.RawRecord {
	out := make([]normalize.RawRecord, 0, len(items))
	for _, item := range items {
		out = append(out, normalize.RawRecord(item))
	}
	return out
}
