package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avellar/userdir/internal/platform/bus"
)

type published struct {
	topic string
	key   string
	value string
}

type fakeBroker struct {
	mu      sync.Mutex
	records []published
	err     error
}

func (f *fakeBroker) Publish(_ context.Context, topic string, key string, value string) (bus.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return bus.Metadata{}, f.err
	}
	f.records = append(f.records, published{topic: topic, key: key, value: value})
	return bus.Metadata{Topic: topic, Partition: 0, Offset: int64(len(f.records) - 1)}, nil
}

func (f *fakeBroker) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.records...)
}

func TestPublishLifecycleEnvelope(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	producer.clock = func() time.Time { return now }
	producer.newEventID = func() string { return "event-1" }

	producer.PublishLifecycle(context.Background(), "user-1", "user created: a@x.com")
	producer.Wait()

	records := broker.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 published record, got %d", len(records))
	}
	if records[0].topic != TopicLifecycle {
		t.Fatalf("expected topic %q, got %q", TopicLifecycle, records[0].topic)
	}
	if records[0].key != "user-1" {
		t.Fatalf("expected key user-1, got %q", records[0].key)
	}

	changeEvent, err := DecodeChangeEvent(records[0].value)
	if err != nil {
		t.Fatalf("decode published event: %v", err)
	}
	if changeEvent.ID != "event-1" {
		t.Fatalf("expected event id event-1, got %q", changeEvent.ID)
	}
	if changeEvent.Message != "user created: a@x.com" {
		t.Fatalf("unexpected message %q", changeEvent.Message)
	}
	if !changeEvent.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, changeEvent.Timestamp)
	}
}

func TestPublishNotificationIsUnkeyedPlainString(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)

	producer.PublishNotification(context.Background(), "system maintenance at noon")
	producer.Wait()

	records := broker.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 published record, got %d", len(records))
	}
	if records[0].topic != TopicNotifications {
		t.Fatalf("expected topic %q, got %q", TopicNotifications, records[0].topic)
	}
	if records[0].key != "" {
		t.Fatalf("expected empty key, got %q", records[0].key)
	}
	if records[0].value != "system maintenance at noon" {
		t.Fatalf("expected raw message payload, got %q", records[0].value)
	}
}

func TestPublishEventKeyedByEnvelopeID(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)
	producer.newEventID = func() string { return "event-7" }

	producer.PublishEvent(context.Background(), "manual event")
	producer.Wait()

	records := broker.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 published record, got %d", len(records))
	}
	if records[0].topic != TopicLifecycle {
		t.Fatalf("expected topic %q, got %q", TopicLifecycle, records[0].topic)
	}
	if records[0].key != "event-7" {
		t.Fatalf("expected envelope id as key, got %q", records[0].key)
	}
	changeEvent, err := DecodeChangeEvent(records[0].value)
	if err != nil {
		t.Fatalf("decode published event: %v", err)
	}
	if changeEvent.ID != "event-7" || changeEvent.Message != "manual event" {
		t.Fatalf("unexpected envelope %+v", changeEvent)
	}
}

func TestPublishPreservesCallOrderPerKey(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)

	const total = 50
	for i := 0; i < total; i++ {
		producer.PublishLifecycle(context.Background(), "user-1", fmt.Sprintf("message-%d", i))
	}
	producer.Wait()

	records := broker.all()
	if len(records) != total {
		t.Fatalf("expected %d published records, got %d", total, len(records))
	}
	for i, rec := range records {
		changeEvent, err := DecodeChangeEvent(rec.value)
		if err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
		if want := fmt.Sprintf("message-%d", i); changeEvent.Message != want {
			t.Fatalf("expected %q at position %d, got %q", want, i, changeEvent.Message)
		}
	}
}

func TestPublishUniqueEventIDs(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)

	producer.PublishLifecycle(context.Background(), "user-1", "first")
	producer.PublishLifecycle(context.Background(), "user-1", "second")
	producer.Wait()

	records := broker.all()
	if len(records) != 2 {
		t.Fatalf("expected 2 published records, got %d", len(records))
	}
	first, err := DecodeChangeEvent(records[0].value)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	second, err := DecodeChangeEvent(records[1].value)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected unique event ids, got %q twice", first.ID)
	}
}

func TestPublishFailureIsLoggedNotReturned(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{err: errors.New("broker down")}
	var mu sync.Mutex
	var logged []string
	producer := NewProducer(broker, func(format string, args ...any) {
		mu.Lock()
		logged = append(logged, format)
		mu.Unlock()
	})

	producer.PublishLifecycle(context.Background(), "user-1", "user created: a@x.com")
	producer.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(logged) != 1 || !strings.Contains(logged[0], "publish") {
		t.Fatalf("expected one publish failure log, got %v", logged)
	}
}

func TestPublishSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	producer := NewProducer(broker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	producer.PublishLifecycle(ctx, "user-1", "user created: a@x.com")
	cancel()
	producer.Wait()

	if len(broker.all()) != 1 {
		t.Fatal("expected publish to complete despite cancelled caller context")
	}
}
