package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"agora/contexts/governance/polling-ledger/ports"
)

const groupQueueSize = 128

// Kafka is the ledger's event bus. Delivery is in-process: every consumer
// group receives each event once and the members of a group compete for it.
// Broker addresses are kept so the wiring matches an external deployment.
type Kafka struct {
	mu      sync.Mutex
	brokers []string
	topics  map[string]map[string]*consumerGroup
	wg      sync.WaitGroup
	logger  *slog.Logger
}

type consumerGroup struct {
	name    string
	queue   chan ports.EventEnvelope
	done    chan struct{}
	members int
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers: append([]string(nil), brokers...),
		topics:  make(map[string]map[string]*consumerGroup),
		logger:  logger,
	}, nil
}

func (k *Kafka) Brokers() []string {
	return append([]string(nil), k.brokers...)
}

// Publish hands event to every consumer group on topic. It waits while a
// group's queue is full, so a slow payout consumer holds the outbox relay
// back instead of losing a claim.
func (k *Kafka) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := event.Validate(); err != nil {
		return err
	}
	groups := k.groups(topic)
	for _, group := range groups {
		select {
		case group.queue <- event:
		case <-group.done:
		case <-ctx.Done():
			k.logger.Warn("ledger event delivery interrupted",
				"event", "ledger_bus_publish_interrupted",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", group.name,
				"event_id", event.EventID,
			)
			return ctx.Err()
		}
	}
	k.logger.Debug("ledger event published",
		"event", "ledger_bus_published",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"partition_key", event.PartitionKey,
		"consumer_groups", len(groups),
	)
	return nil
}

// Subscribe joins consumerGroup on topic and runs handler for the group's
// events until ctx is done. A failed handler is logged and its event dropped.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if handler == nil {
		return errors.New("messaging: nil handler")
	}
	group := k.join(topic, consumerGroup)

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer k.leave(topic, group)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-group.queue:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("ledger event handler failed",
						"event", "ledger_bus_handler_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", group.name,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Wait blocks until every subscription goroutine has exited.
func (k *Kafka) Wait() {
	k.wg.Wait()
}

func (k *Kafka) groups(topic string) []*consumerGroup {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*consumerGroup, 0, len(k.topics[topic]))
	for _, group := range k.topics[topic] {
		out = append(out, group)
	}
	return out
}

func (k *Kafka) join(topic string, name string) *consumerGroup {
	k.mu.Lock()
	defer k.mu.Unlock()
	groups, ok := k.topics[topic]
	if !ok {
		groups = make(map[string]*consumerGroup)
		k.topics[topic] = groups
	}
	group, ok := groups[name]
	if !ok {
		group = &consumerGroup{
			name:  name,
			queue: make(chan ports.EventEnvelope, groupQueueSize),
			done:  make(chan struct{}),
		}
		groups[name] = group
	}
	group.members++
	return group
}

// leave drops one member. The last member out closes the group and any
// events still queued for it are discarded.
func (k *Kafka) leave(topic string, group *consumerGroup) {
	k.mu.Lock()
	defer k.mu.Unlock()
	group.members--
	if group.members > 0 {
		return
	}
	close(group.done)
	delete(k.topics[topic], group.name)
	if len(k.topics[topic]) == 0 {
		delete(k.topics, topic)
	}
}

var _ ports.EventPublisher = (*Kafka)(nil)
var _ ports.EventSubscriber = (*Kafka)(nil)
