package ports

import (
	"context"
	"math/big"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	eventsv1 "agora/contracts/gen/events/v1"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// BalanceOracle reports an account's holding of an asset in base units.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, account string, assetID string) (*big.Int, error)
}

// Mutation runs against the live ledger under the exclusive lock. Returned
// envelopes are appended to the outbox only if the mutation succeeds.
type Mutation func(state *entities.State) ([]EventEnvelope, error)

// LedgerStore owns the single ledger state. Update is exclusive, View is shared.
type LedgerStore interface {
	Update(ctx context.Context, fn Mutation) error
	View(ctx context.Context, fn func(state *entities.State) error) error
}

type SnapshotRecord struct {
	SnapshotID string
	TakenAt    time.Time
	PollCount  int
	Payload    []byte
}

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, record SnapshotRecord) error
	LoadLatestSnapshot(ctx context.Context) (SnapshotRecord, bool, error)
}

type EventEnvelope = eventsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

// PayoutGateway moves claimed rewards out of the ledger.
type PayoutGateway interface {
	Transfer(ctx context.Context, account string, amount *big.Int, reference string) error
}
