package workers

import (
	"context"
	"log/slog"

	application "agora/contexts/governance/polling-ledger/application"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/contexts/governance/polling-ledger/ports"
)

// ExpirySweeper persists the lazy Active to Expired transition for polls past
// their end time so downstream consumers see a status event.
type ExpirySweeper struct {
	Ledger ports.LedgerStore
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (s ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	var expired []uint64
	err := s.Ledger.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		now := resolveNow(s.Clock)
		var due []*entities.Poll
		events := make([]ports.EventEnvelope, 0)
		for _, poll := range state.Polls {
			if poll.Status != entities.PollStatusActive || now.Before(poll.EndTime) {
				continue
			}
			envelope, err := newPollEnvelope(ctx, s.IDGen, "poll.status_changed", poll.ID, now, map[string]any{
				"action":      "expire",
				"from_status": string(entities.PollStatusActive),
				"to_status":   string(entities.PollStatusExpired),
				"actor":       entities.SystemAccount,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, envelope)
			due = append(due, poll)
		}
		for _, poll := range due {
			poll.MaterializeExpiry(now)
			expired = append(expired, poll.ID)
		}
		return events, nil
	})
	if err != nil {
		logger.Error("ledger expiry sweep failed",
			"event", "ledger_expiry_sweep_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(expired) > 0 {
		logger.Info("ledger expiry sweep completed",
			"event", "ledger_expiry_sweep_completed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"expired_count", len(expired),
		)
	}
	return len(expired), nil
}
