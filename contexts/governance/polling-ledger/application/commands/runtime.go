package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	application "agora/contexts/governance/polling-ledger/application"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
	eventsv1 "agora/contracts/gen/events/v1"
)

const sourceService = "polling-ledger"

// Runtime carries the collaborators shared by every ledger command.
type Runtime struct {
	Store    ports.LedgerStore
	Balances ports.BalanceOracle
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Policy   entities.Policy
	Logger   *slog.Logger
}

func (r Runtime) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}

func (r Runtime) logger() *slog.Logger {
	return application.ResolveLogger(r.Logger)
}

func (r Runtime) logRejected(ctx context.Context, event string, err error, attrs ...any) {
	args := append([]any{
		"event", event,
		"module", application.LogModule,
		"layer", "application",
		"error_kind", string(domainerrors.KindOf(err)),
		"error", err.Error(),
	}, attrs...)
	r.logger().WarnContext(ctx, "ledger command rejected", args...)
}

func (r Runtime) newEnvelope(
	ctx context.Context,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	eventID, err := r.newID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    eventsv1.SchemaVersion,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}

func (r Runtime) pollEnvelope(
	ctx context.Context,
	eventType string,
	pollID uint64,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	data["poll_id"] = pollID
	return r.newEnvelope(ctx, eventType, "poll_id", strconv.FormatUint(pollID, 10), occurredAt, data)
}

func (r Runtime) accountEnvelope(
	ctx context.Context,
	eventType string,
	account string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	data["account"] = account
	return r.newEnvelope(ctx, eventType, "account", account, occurredAt, data)
}

// expiryEvents returns the status event for a poll that is past its end time
// but still stored as active. Callers materialize the expiry only after every
// other check and envelope has succeeded.
func (r Runtime) expiryEvents(ctx context.Context, poll *entities.Poll, now time.Time) ([]ports.EventEnvelope, error) {
	if poll.EffectiveStatus(now) == poll.Status {
		return nil, nil
	}
	envelope, err := r.pollEnvelope(ctx, "poll.status_changed", poll.ID, now, map[string]any{
		"action":      "expire",
		"from_status": string(entities.PollStatusActive),
		"to_status":   string(entities.PollStatusExpired),
		"actor":       entities.SystemAccount,
	})
	if err != nil {
		return nil, err
	}
	return []ports.EventEnvelope{envelope}, nil
}

func (r Runtime) newID(ctx context.Context) (string, error) {
	if r.IDGen == nil {
		return "", domainerrors.ErrDependencyUnavailable
	}
	return r.IDGen.NewID(ctx)
}

func (r Runtime) requireOperator(caller string) error {
	if !r.Policy.IsOperator(caller) {
		return domainerrors.ErrNotOperator
	}
	return nil
}

func lookupPoll(state *entities.State, pollID uint64) (*entities.Poll, error) {
	poll, ok := state.Poll(pollID)
	if !ok {
		return nil, domainerrors.ErrPollNotFound
	}
	return poll, nil
}

func normalizeAccount(raw string) (string, error) {
	account := strings.TrimSpace(raw)
	if account == "" {
		return "", domainerrors.ErrInvalidAddress
	}
	return account, nil
}
