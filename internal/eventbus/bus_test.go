package eventbus

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicInvoiceCreated)
	defer sub.Close()
	other := b.Subscribe(TopicDiscountsChanged)
	defer other.Close()

	b.Publish(Event{Topic: TopicInvoiceCreated, Payload: map[string]any{"n": 1}})

	select {
	case event := <-sub.C():
		assert.Equal(t, TopicInvoiceCreated, event.Topic)
	default:
		t.Fatal("expected delivery to the topic subscriber")
	}
	assert.Empty(t, other.C())
}

func TestPublishDropsDuplicateDedupeKeys(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicInvoiceCreated)
	defer sub.Close()

	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "1700000000-INV-1"})
	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "1700000000-INV-1"})

	require.Len(t, sub.C(), 1)
}

func TestPublishDistinctKeysBothDeliver(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicInvoiceCreated)
	defer sub.Close()

	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "a"})
	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "b"})

	assert.Len(t, sub.C(), 2)
}

func TestPublishNonBlockingOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicSourceActivity)
	defer sub.Close()

	for i := 0; i < defaultSubscriberBuffer+5; i++ {
		b.Publish(Event{Topic: TopicSourceActivity})
	}
	assert.Len(t, sub.C(), defaultSubscriberBuffer)
}

func TestCloseUnregistersAndIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicInvoiceCreated)
	sub.Close()
	sub.Close()

	// Publishing after close must not panic or deliver.
	b.Publish(Event{Topic: TopicInvoiceCreated})
	assert.Empty(t, sub.C())
}

func TestCloseConcurrentWithPublishNeverPanics(t *testing.T) {
	b := New()

	// Close racing an in-flight delivery must not make Publish send on
	// a closed channel.
	for i := 0; i < 500; i++ {
		sub := b.Subscribe(TopicSourceActivity)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 20; j++ {
				b.Publish(Event{Topic: TopicSourceActivity})
			}
		}()
		sub.Close()
		<-done
	}
}

func TestDedupeWindowEvictsOldest(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicInvoiceCreated)
	defer sub.Close()

	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "first"})
	for i := 0; i < dedupeWindow; i++ {
		b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: strconv.Itoa(i)})
		for len(sub.C()) > 0 {
			<-sub.C()
		}
	}
	// "first" was evicted from the window, so it delivers again.
	b.Publish(Event{Topic: TopicInvoiceCreated, DedupeKey: "first"})
	assert.Len(t, sub.C(), 1)
}
