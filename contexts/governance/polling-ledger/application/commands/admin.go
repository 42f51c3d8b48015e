package commands

import (
	"context"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/contexts/governance/polling-ledger/ports"
)

type AdminUseCase struct {
	Runtime
}

// SetPaused blocks or unblocks poll creation, voting and delegation changes.
func (uc AdminUseCase) SetPaused(ctx context.Context, caller string, paused bool) error {
	caller = strings.TrimSpace(caller)
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if err := uc.requireOperator(caller); err != nil {
			return nil, err
		}
		if state.Paused == paused {
			return nil, nil
		}
		envelope, err := uc.accountEnvelope(ctx, "platform.paused", caller, uc.now(), map[string]any{
			"paused": paused,
		})
		if err != nil {
			return nil, err
		}
		state.Paused = paused
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_pause_rejected", err, "caller", caller)
		return err
	}
	uc.logger().Info("platform pause updated",
		"event", "ledger_platform_pause_updated",
		"module", "governance/polling-ledger",
		"layer", "application",
		"caller", caller,
		"paused", paused,
	)
	return nil
}
