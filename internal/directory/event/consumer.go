package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/avellar/userdir/internal/platform/bus"
)

// DefaultProcessedCapacity bounds the processed message log when the caller
// does not choose a capacity.
const DefaultProcessedCapacity = 1000

// Subscriber is the broker surface the consumer needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, group string) (<-chan bus.Delivery, error)
}

// ProcessedLog is a bounded, concurrency-safe record of processed lifecycle
// messages. When full, the oldest entries are dropped first.
type ProcessedLog struct {
	mu       sync.Mutex
	capacity int
	entries  []string
}

// NewProcessedLog constructs a log holding at most capacity entries. A
// non-positive capacity selects DefaultProcessedCapacity.
func NewProcessedLog(capacity int) *ProcessedLog {
	if capacity <= 0 {
		capacity = DefaultProcessedCapacity
	}
	return &ProcessedLog{capacity: capacity}
}

// Append records one processed message, evicting the oldest entry when full.
func (l *ProcessedLog) Append(message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, message)
	if overflow := len(l.entries) - l.capacity; overflow > 0 {
		l.entries = append([]string(nil), l.entries[overflow:]...)
	}
}

// Snapshot returns a copy of the current entries in processing order.
func (l *ProcessedLog) Snapshot() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Clear drops all entries and returns how many were removed.
func (l *ProcessedLog) Clear() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := len(l.entries)
	l.entries = nil
	return removed
}

// Len returns the current number of entries.
func (l *ProcessedLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Consumer drains the lifecycle and notification topics. Records are
// acknowledged only after processing succeeds, so a crash mid-batch causes
// redelivery rather than loss.
type Consumer struct {
	broker    Subscriber
	group     string
	processed *ProcessedLog
	logf      func(string, ...any)
}

// NewConsumer constructs a consumer in the given subscriber group. A nil
// logf discards diagnostics.
func NewConsumer(broker Subscriber, group string, processed *ProcessedLog, logf func(string, ...any)) *Consumer {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Consumer{
		broker:    broker,
		group:     group,
		processed: processed,
		logf:      logf,
	}
}

// ConsumeLifecycle processes lifecycle events until ctx is cancelled. Each
// decoded event is appended to the processed log before acknowledgement;
// undecodable records are negatively acknowledged for redelivery.
func (c *Consumer) ConsumeLifecycle(ctx context.Context) error {
	if c == nil || c.broker == nil {
		return fmt.Errorf("consumer is not configured")
	}
	deliveries, err := c.broker.Subscribe(ctx, TopicLifecycle, c.group)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicLifecycle, err)
	}

	for delivery := range deliveries {
		changeEvent, err := DecodeChangeEvent(delivery.Value)
		if err != nil {
			c.logf("event: lifecycle record %s/%d/%d: %v", delivery.Topic, delivery.Partition, delivery.Offset, err)
			delivery.Nack()
			continue
		}
		c.processed.Append(changeEvent.Message)
		c.logf("event: processed lifecycle %s: %s", changeEvent.ID, changeEvent.Message)
		delivery.Ack()
	}
	return nil
}

// ConsumeNotifications logs plain-string notification messages until ctx is
// cancelled. Notification payloads carry no envelope.
func (c *Consumer) ConsumeNotifications(ctx context.Context) error {
	if c == nil || c.broker == nil {
		return fmt.Errorf("consumer is not configured")
	}
	deliveries, err := c.broker.Subscribe(ctx, TopicNotifications, c.group)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicNotifications, err)
	}

	for delivery := range deliveries {
		c.logf("event: notification %s/%d/%d: %s", delivery.Topic, delivery.Partition, delivery.Offset, delivery.Value)
		delivery.Ack()
	}
	return nil
}
