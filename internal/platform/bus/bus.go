// Package bus is an embedded publish/subscribe broker with at-least-once
// delivery semantics.
//
// Topics hold append-only partition logs. Keyed records map to a partition by
// key hash, so ordering is guaranteed per key, not per topic. Subscribers
// acknowledge manually; a record that is nacked (or never acknowledged before
// the subscriber is torn down) is delivered again. The broker stands in for an
// external message broker; producers and consumers depend only on its small
// surface so a server-backed client can replace it.
package bus

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnknownTopic indicates a publish or subscribe against a topic that was
// never provisioned.
var ErrUnknownTopic = errors.New("unknown topic")

const (
	defaultRedeliverDelay = 100 * time.Millisecond
	deliveryBuffer        = 16
)

// Metadata identifies where a published record landed.
type Metadata struct {
	Topic     string
	Partition int
	Offset    int64
}

// Delivery is one record handed to a subscriber. The subscriber must call
// exactly one of Ack or Nack after processing; Nack schedules redelivery.
type Delivery struct {
	Topic     string
	Group     string
	Key       string
	Value     string
	Partition int
	Offset    int64
	Ack       func()
	Nack      func()
}

type record struct {
	key   string
	value string
}

type partition struct {
	mu      sync.Mutex
	cond    *sync.Cond
	records []record
}

func newPartition() *partition {
	p := &partition{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *partition) append(r record) int64 {
	p.mu.Lock()
	p.records = append(p.records, r)
	offset := int64(len(p.records) - 1)
	p.cond.Broadcast()
	p.mu.Unlock()
	return offset
}

// wait blocks until a record exists at offset or ctx is cancelled.
func (p *partition) wait(ctx context.Context, offset int64) (record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for int64(len(p.records)) <= offset {
		if ctx.Err() != nil {
			return record{}, false
		}
		p.cond.Wait()
	}
	return p.records[offset], true
}

type topic struct {
	name       string
	partitions []*partition
	roundRobin atomic.Uint64
}

func (t *topic) partitionFor(key string) int {
	if len(t.partitions) == 1 {
		return 0
	}
	if key == "" {
		return int(t.roundRobin.Add(1) % uint64(len(t.partitions)))
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(t.partitions)))
}

// Broker routes published records to topic partitions and drives subscriber
// delivery loops.
type Broker struct {
	mu             sync.RWMutex
	topics         map[string]*topic
	redeliverDelay time.Duration
}

// New constructs an empty broker.
func New() *Broker {
	return &Broker{
		topics:         make(map[string]*topic),
		redeliverDelay: defaultRedeliverDelay,
	}
}

// EnsureTopic provisions a topic with the given partition count. It is
// idempotent: an existing topic is left untouched.
func (b *Broker) EnsureTopic(name string, partitions int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("topic name is required")
	}
	if partitions <= 0 {
		partitions = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[name]; ok {
		return nil
	}
	t := &topic{name: name, partitions: make([]*partition, 0, partitions)}
	for i := 0; i < partitions; i++ {
		t.partitions = append(t.partitions, newPartition())
	}
	b.topics[name] = t
	return nil
}

// Publish appends one record to the topic partition selected by key and
// returns its placement. An empty key selects partitions round-robin.
func (b *Broker) Publish(ctx context.Context, topicName string, key string, value string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	t, err := b.topic(topicName)
	if err != nil {
		return Metadata{}, err
	}

	idx := t.partitionFor(key)
	offset := t.partitions[idx].append(record{key: key, value: value})
	return Metadata{Topic: t.name, Partition: idx, Offset: offset}, nil
}

// Subscribe registers a new subscriber group position at the start of the
// topic and returns its delivery channel. The channel closes when ctx is
// cancelled. Unacknowledged records are redelivered, so subscribers must
// tolerate duplicates.
func (b *Broker) Subscribe(ctx context.Context, topicName string, group string) (<-chan Delivery, error) {
	t, err := b.topic(topicName)
	if err != nil {
		return nil, err
	}
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, fmt.Errorf("subscriber group is required")
	}

	deliveries := make(chan Delivery, deliveryBuffer)
	var wg sync.WaitGroup
	for idx, p := range t.partitions {
		wg.Add(1)
		go func(idx int, p *partition) {
			defer wg.Done()
			b.consumePartition(ctx, t.name, group, idx, p, deliveries)
		}(idx, p)

		// Wake cond waiters when the subscriber context ends. The broadcast
		// must happen under the partition lock: a waiter between its ctx
		// check and cond.Wait has no notify ticket yet, and an unlocked
		// broadcast in that window would be lost, parking the waiter forever.
		go func(p *partition) {
			<-ctx.Done()
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		}(p)
	}
	go func() {
		wg.Wait()
		close(deliveries)
	}()
	return deliveries, nil
}

func (b *Broker) consumePartition(ctx context.Context, topicName string, group string, idx int, p *partition, deliveries chan<- Delivery) {
	for offset := int64(0); ; {
		rec, ok := p.wait(ctx, offset)
		if !ok {
			return
		}

	redeliver:
		for {
			outcome := make(chan bool, 1)
			var once sync.Once
			delivery := Delivery{
				Topic:     topicName,
				Group:     group,
				Key:       rec.key,
				Value:     rec.value,
				Partition: idx,
				Offset:    offset,
				Ack:       func() { once.Do(func() { outcome <- true }) },
				Nack:      func() { once.Do(func() { outcome <- false }) },
			}

			select {
			case deliveries <- delivery:
			case <-ctx.Done():
				return
			}

			select {
			case acked := <-outcome:
				if acked {
					offset++
					break redeliver
				}
				select {
				case <-time.After(b.redeliverDelay):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Broker) topic(name string) (*topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	b.mu.RLock()
	t, ok := b.topics[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}
	return t, nil
}
