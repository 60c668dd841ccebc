// Package poller re-checks the upstream sources on a fixed interval and
// raises activity notifications when a source grows.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/carelink/billing/internal/eventbus"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"go.uber.org/zap"
)

// Source names one polled upstream collection.
type Source string

const (
	SourceInvoices Source = "invoices"
	SourcePayments Source = "payments"
	SourceEMR      Source = "emr"
	SourcePharmacy Source = "pharmacy"
)

// applyOrder fixes the order in which per-source state updates and
// notifications are applied within one tick. Fetches run concurrently;
// this keeps notification ordering deterministic regardless.
var applyOrder = []Source{SourceInvoices, SourcePayments, SourceEMR, SourcePharmacy}

// CountFunc reports how many relevant records a source currently holds.
type CountFunc func(ctx context.Context) (int, error)

// Notification is one source-growth observation.
type Notification struct {
	Source Source `json:"source"`
	Count  int    `json:"count"`
	Delta  int    `json:"delta"`
}

type Config struct {
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	return c
}

// Poller compares per-source record counts across ticks. A notification
// fires only when the new count strictly exceeds a positive previous
// baseline, so the first observation of a source never notifies.
type Poller struct {
	cfg     Config
	counts  map[Source]CountFunc
	bus     *eventbus.Bus
	metrics *obsmetrics.Metrics
	log     *zap.Logger

	baselines map[Source]int
}

func New(cfg Config, counts map[Source]CountFunc, bus *eventbus.Bus, m *obsmetrics.Metrics, log *zap.Logger) *Poller {
	return &Poller{
		cfg:       cfg.withDefaults(),
		counts:    counts,
		bus:       bus,
		metrics:   m,
		log:       log.Named("poller"),
		baselines: make(map[Source]int),
	}
}

// RunOnce performs one tick: fetch all sources concurrently, then apply
// baseline comparisons in the fixed source order. A failed fetch
// resolves to an empty result set for that source and never blocks the
// others. Baselines update every tick whether or not a notification
// fired. Returns the notifications emitted this tick, in apply order.
func (p *Poller) RunOnce(ctx context.Context) []Notification {
	type result struct {
		count int
		err   error
	}
	results := make(map[Source]result, len(p.counts))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for source, count := range p.counts {
		wg.Add(1)
		go func(source Source, count CountFunc) {
			defer wg.Done()
			n, err := count(ctx)
			mu.Lock()
			results[source] = result{count: n, err: err}
			mu.Unlock()
		}(source, count)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Cancelled mid-tick: discard the fetched counts instead of
		// mutating baselines after teardown.
		return nil
	}

	var fired []Notification
	for _, source := range applyOrder {
		res, polled := results[source]
		if !polled {
			continue
		}
		if res.err != nil {
			p.log.Warn("source fetch failed", zap.String("source", string(source)), zap.Error(res.err))
			if p.metrics != nil {
				p.metrics.FetchFailures.WithLabelValues(string(source)).Inc()
			}
			res.count = 0
		}

		baseline := p.baselines[source]
		if baseline > 0 && res.count > baseline {
			n := Notification{Source: source, Count: res.count, Delta: res.count - baseline}
			fired = append(fired, n)
			p.notify(n)
		}
		p.baselines[source] = res.count
	}
	return fired
}

// RunForever ticks until the context is cancelled.
func (p *Poller) RunForever(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

func (p *Poller) notify(n Notification) {
	p.log.Info("source activity",
		zap.String("source", string(n.Source)),
		zap.Int("count", n.Count),
		zap.Int("delta", n.Delta),
	)
	if p.metrics != nil {
		p.metrics.SourceNotifications.WithLabelValues(string(n.Source)).Inc()
	}
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Topic: eventbus.TopicSourceActivity,
			Payload: map[string]any{
				"source": string(n.Source),
				"count":  n.Count,
				"delta":  n.Delta,
			},
		})
	}
}
