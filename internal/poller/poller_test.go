package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/carelink/billing/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	count int
	err   error
}

func (f *fakeSource) fetch(context.Context) (int, error) {
	return f.count, f.err
}

func newTestPoller(sources map[Source]*fakeSource) *Poller {
	counts := make(map[Source]CountFunc, len(sources))
	for name, src := range sources {
		counts[name] = src.fetch
	}
	return New(Config{}, counts, nil, nil, zap.NewNop())
}

func TestFirstTickNeverNotifies(t *testing.T) {
	src := &fakeSource{count: 5}
	p := newTestPoller(map[Source]*fakeSource{SourceInvoices: src})

	fired := p.RunOnce(context.Background())
	assert.Empty(t, fired)

	src.count = 7
	fired = p.RunOnce(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, SourceInvoices, fired[0].Source)
	assert.Equal(t, 7, fired[0].Count)
	assert.Equal(t, 2, fired[0].Delta)
}

func TestZeroBaselineNeverNotifies(t *testing.T) {
	src := &fakeSource{count: 0}
	p := newTestPoller(map[Source]*fakeSource{SourcePayments: src})

	p.RunOnce(context.Background())

	// Growth from a zero baseline stays silent.
	src.count = 3
	assert.Empty(t, p.RunOnce(context.Background()))

	// The positive baseline from the previous tick arms notifications.
	src.count = 4
	fired := p.RunOnce(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, 1, fired[0].Delta)
}

func TestShrinkingCountNeverNotifiesButUpdatesBaseline(t *testing.T) {
	src := &fakeSource{count: 10}
	p := newTestPoller(map[Source]*fakeSource{SourceInvoices: src})

	p.RunOnce(context.Background())

	src.count = 4
	assert.Empty(t, p.RunOnce(context.Background()))

	// Baseline followed the shrink, so the next delta is against 4.
	src.count = 6
	fired := p.RunOnce(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, 2, fired[0].Delta)
}

func TestFailedFetchResolvesToEmptyAndIsolatesSources(t *testing.T) {
	emr := &fakeSource{err: errors.New("emr down")}
	pharmacy := &fakeSource{count: 2}
	p := newTestPoller(map[Source]*fakeSource{SourceEMR: emr, SourcePharmacy: pharmacy})

	assert.Empty(t, p.RunOnce(context.Background()))

	pharmacy.count = 5
	fired := p.RunOnce(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, SourcePharmacy, fired[0].Source)
	assert.Equal(t, 3, fired[0].Delta)

	// The failing source recovers: its baseline restarts from zero, so
	// the recovery tick itself stays silent.
	emr.err = nil
	emr.count = 4
	assert.Empty(t, p.RunOnce(context.Background()))
}

func TestNotificationsApplyInFixedSourceOrder(t *testing.T) {
	invoices := &fakeSource{count: 1}
	pharmacy := &fakeSource{count: 1}
	p := newTestPoller(map[Source]*fakeSource{SourcePharmacy: pharmacy, SourceInvoices: invoices})

	p.RunOnce(context.Background())

	invoices.count = 3
	pharmacy.count = 2
	fired := p.RunOnce(context.Background())

	require.Len(t, fired, 2)
	assert.Equal(t, SourceInvoices, fired[0].Source)
	assert.Equal(t, SourcePharmacy, fired[1].Source)
}

func TestCancelledTickDiscardsResults(t *testing.T) {
	src := &fakeSource{count: 5}
	p := newTestPoller(map[Source]*fakeSource{SourceInvoices: src})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, p.RunOnce(ctx))

	// The cancelled tick left no baseline behind.
	src.count = 7
	assert.Empty(t, p.RunOnce(context.Background()))
}

func TestNotificationPublishesToBus(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicSourceActivity)
	defer sub.Close()

	src := &fakeSource{count: 1}
	p := New(Config{}, map[Source]CountFunc{SourceInvoices: src.fetch}, bus, nil, zap.NewNop())

	p.RunOnce(context.Background())
	src.count = 2
	p.RunOnce(context.Background())

	select {
	case event := <-sub.C():
		assert.Equal(t, eventbus.TopicSourceActivity, event.Topic)
		assert.Equal(t, "invoices", event.Payload["source"])
		assert.Equal(t, 1, event.Payload["delta"])
	default:
		t.Fatal("expected a source activity event")
	}
}
