package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"agora/contexts/governance/polling-ledger/ports"
	eventsv1 "agora/contracts/gen/events/v1"
)

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func resolveNow(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}

// newPollEnvelope builds worker-produced poll events, partitioned by poll id.
func newPollEnvelope(
	ctx context.Context,
	idGen ports.IDGenerator,
	eventType string,
	pollID uint64,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	data["poll_id"] = pollID
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "polling-ledger",
		TraceID:          eventID,
		SchemaVersion:    eventsv1.SchemaVersion,
		PartitionKeyPath: "poll_id",
		PartitionKey:     strconv.FormatUint(pollID, 10),
		Data:             payload,
	}, nil
}
