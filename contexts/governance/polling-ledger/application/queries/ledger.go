package queries

import (
	"context"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
)

type LedgerStatus struct {
	Paused      bool
	PollCount   int
	ActivePolls int
	Templates   int
}

func (uc QueryUseCase) GetAnalytics(ctx context.Context) (entities.Analytics, error) {
	var out entities.Analytics
	err := uc.Store.View(ctx, func(state *entities.State) error {
		out = state.Analytics.Clone()
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetTemplate(ctx context.Context, templateID uint64) (entities.Template, error) {
	var out entities.Template
	err := uc.Store.View(ctx, func(state *entities.State) error {
		template, ok := state.Template(templateID)
		if !ok {
			return domainerrors.ErrTemplateNotFound
		}
		out = template.Clone()
		return nil
	})
	return out, err
}

func (uc QueryUseCase) ListTemplates(ctx context.Context, activeOnly bool) ([]entities.Template, error) {
	var out []entities.Template
	err := uc.Store.View(ctx, func(state *entities.State) error {
		for _, template := range state.Templates {
			if activeOnly && !template.Active {
				continue
			}
			out = append(out, template.Clone())
		}
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetRewardPool(ctx context.Context) (entities.RewardPool, error) {
	var out entities.RewardPool
	err := uc.Store.View(ctx, func(state *entities.State) error {
		out = state.RewardPool.Clone()
		return nil
	})
	return out, err
}

// GetPollReward reports whether rewards were distributed for the poll.
func (uc QueryUseCase) GetPollReward(ctx context.Context, pollID uint64) (entities.PollReward, bool, error) {
	var (
		out   entities.PollReward
		found bool
	)
	err := uc.withPoll(ctx, pollID, func(state *entities.State, _ *entities.Poll) error {
		if record, ok := state.PollRewards[pollID]; ok {
			out, found = record.Clone(), true
		}
		return nil
	})
	return out, found, err
}

func (uc QueryUseCase) GetLedgerStatus(ctx context.Context) (LedgerStatus, error) {
	var out LedgerStatus
	err := uc.Store.View(ctx, func(state *entities.State) error {
		now := uc.now()
		out.Paused = state.Paused
		out.PollCount = len(state.Polls)
		out.Templates = len(state.Templates)
		for _, poll := range state.Polls {
			if poll.IsActive(now) {
				out.ActivePolls++
			}
		}
		return nil
	})
	return out, err
}
