package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avellar/userdir/internal/platform/bus"
)

// Publisher is the broker surface the producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value string) (bus.Metadata, error)
}

const publishQueueDepth = 64

type pendingRecord struct {
	ctx   context.Context
	topic string
	key   string
	value string
	label string
}

// Producer publishes change events asynchronously. Records are handed to a
// single sender goroutine in call order, so per-key ordering at the broker
// matches publish order; callers never block on the broker itself. Publish
// outcomes are logged with their partition placement. Failed publishes are
// logged and dropped, the durable store stays the source of truth.
type Producer struct {
	broker     Publisher
	newEventID func() string
	clock      func() time.Time
	logf       func(string, ...any)
	pending    chan pendingRecord
	wg         sync.WaitGroup
}

// NewProducer constructs a producer over the broker. A nil logf discards
// diagnostics.
func NewProducer(broker Publisher, logf func(string, ...any)) *Producer {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	p := &Producer{
		broker:     broker,
		newEventID: uuid.NewString,
		clock:      time.Now,
		logf:       logf,
		pending:    make(chan pendingRecord, publishQueueDepth),
	}
	go p.sendLoop()
	return p
}

// PublishLifecycle emits one change event to the lifecycle topic keyed by
// the user id, so all events for one user land on the same partition in
// publish order.
func (p *Producer) PublishLifecycle(ctx context.Context, key string, message string) {
	if p == nil || p.broker == nil {
		return
	}
	envelope := p.newEnvelope(message)
	payload, err := envelope.Encode()
	if err != nil {
		p.logf("event: encode %s for topic %s: %v", envelope.ID, TopicLifecycle, err)
		return
	}
	p.enqueue(ctx, TopicLifecycle, key, payload, envelope.ID)
}

// PublishEvent emits one freeform change event to the lifecycle topic keyed
// by its own envelope id.
func (p *Producer) PublishEvent(ctx context.Context, message string) {
	if p == nil || p.broker == nil {
		return
	}
	envelope := p.newEnvelope(message)
	payload, err := envelope.Encode()
	if err != nil {
		p.logf("event: encode %s for topic %s: %v", envelope.ID, TopicLifecycle, err)
		return
	}
	p.enqueue(ctx, TopicLifecycle, envelope.ID, payload, envelope.ID)
}

// PublishNotification emits one unkeyed plain-string message to the
// notification topic.
func (p *Producer) PublishNotification(ctx context.Context, message string) {
	if p == nil || p.broker == nil {
		return
	}
	p.enqueue(ctx, TopicNotifications, "", message, "notification")
}

// Wait blocks until all enqueued publishes settle.
func (p *Producer) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func (p *Producer) newEnvelope(message string) ChangeEvent {
	return ChangeEvent{
		ID:        p.newEventID(),
		Message:   message,
		Timestamp: p.clock().UTC(),
	}
}

func (p *Producer) enqueue(ctx context.Context, topic string, key string, value string, label string) {
	// Detach from the caller's cancellation so a finished request does not
	// abort an already-committed event.
	p.wg.Add(1)
	p.pending <- pendingRecord{
		ctx:   context.WithoutCancel(ctx),
		topic: topic,
		key:   key,
		value: value,
		label: label,
	}
}

func (p *Producer) sendLoop() {
	for rec := range p.pending {
		meta, err := p.broker.Publish(rec.ctx, rec.topic, rec.key, rec.value)
		if err != nil {
			p.logf("event: publish %s to topic %s: %v", rec.label, rec.topic, err)
		} else {
			p.logf("event: published %s to %s partition %d offset %d", rec.label, meta.Topic, meta.Partition, meta.Offset)
		}
		p.wg.Done()
	}
}
