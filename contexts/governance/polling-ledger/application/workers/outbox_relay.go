package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "agora/contexts/governance/polling-ledger/application"
	"agora/contexts/governance/polling-ledger/ports"
)

const defaultRelayBatch = 100

// OutboxRelay moves committed ledger events onto the bus in commit order.
// A row is marked published only after the bus accepted it.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce relays up to BatchSize rows and returns how many were published.
// It stops at the first row that fails so later events for the same poll
// never overtake it; the next cycle resumes from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultRelayBatch
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("ledger outbox read failed",
			"event", "ledger_outbox_read_failed",
			"module", application.LogModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	now := resolveNow(r.Clock)
	byType := make(map[string]int)
	for i, row := range pending {
		eventType, err := r.relay(ctx, row, now)
		if err != nil {
			logger.Error("ledger event relay stalled",
				"event", "ledger_outbox_relay_stalled",
				"module", application.LogModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"partition_key", row.PartitionKey,
				"published_count", i,
				"remaining_count", len(pending)-i,
				"error", err.Error(),
			)
			return i, err
		}
		byType[eventType]++
	}

	if len(pending) > 0 {
		logger.Info("ledger events relayed",
			"event", "ledger_outbox_relayed",
			"module", application.LogModule,
			"layer", "worker",
			"published_count", len(pending),
			"event_types", byType,
			"batch_full", len(pending) == limit,
		)
	}
	return len(pending), nil
}

// relay publishes one row on the topic named by its event type.
func (r OutboxRelay) relay(ctx context.Context, row ports.OutboxMessage, now time.Time) (string, error) {
	var event ports.EventEnvelope
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return "", fmt.Errorf("decode outbox row: %w", err)
	}
	if event.EventType == "" {
		event.EventType = row.EventType
	}
	if err := r.Publisher.Publish(ctx, event.EventType, event); err != nil {
		return event.EventType, fmt.Errorf("publish %s: %w", event.EventType, err)
	}
	if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
		return event.EventType, fmt.Errorf("mark %s published: %w", row.OutboxID, err)
	}
	return event.EventType, nil
}
