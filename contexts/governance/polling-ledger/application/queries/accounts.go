package queries

import (
	"context"
	"math/big"
	"sort"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/contexts/governance/polling-ledger/domain/services"
)

type UserStats struct {
	Account           string
	PollsCreated      int
	PollsVoted        int
	TotalVotingWeight uint64
	ReputationScore   uint64
}

func (uc QueryUseCase) GetUserCreatedPolls(ctx context.Context, account string) ([]uint64, error) {
	var ids []uint64
	err := uc.Store.View(ctx, func(state *entities.State) error {
		ids = append([]uint64(nil), state.CreatedBy[strings.TrimSpace(account)]...)
		return nil
	})
	return ids, err
}

func (uc QueryUseCase) GetUserVotedPolls(ctx context.Context, account string) ([]uint64, error) {
	var ids []uint64
	err := uc.Store.View(ctx, func(state *entities.State) error {
		ids = append([]uint64(nil), state.VotedBy[strings.TrimSpace(account)]...)
		return nil
	})
	return ids, err
}

func (uc QueryUseCase) GetUserStats(ctx context.Context, account string) (UserStats, error) {
	account = strings.TrimSpace(account)
	stats := UserStats{Account: account}
	err := uc.Store.View(ctx, func(state *entities.State) error {
		stats.PollsCreated = len(state.CreatedBy[account])
		stats.PollsVoted = len(state.VotedBy[account])
		for _, pollID := range state.VotedBy[account] {
			if poll, ok := state.Poll(pollID); ok {
				stats.TotalVotingWeight += poll.Ballots[account].Weight
			}
		}
		stats.ReputationScore = services.DecayedScore(state.Reputation[account], uc.now(), uc.Policy.Reputation)
		return nil
	})
	return stats, err
}

// GetReputation reports the stored record with decay applied up to now.
func (uc QueryUseCase) GetReputation(ctx context.Context, account string) (entities.UserReputation, error) {
	account = strings.TrimSpace(account)
	out := entities.UserReputation{Account: account}
	err := uc.Store.View(ctx, func(state *entities.State) error {
		record, ok := state.Reputation[account]
		if !ok {
			return nil
		}
		out = *record
		out.Score = services.DecayedScore(record, uc.now(), uc.Policy.Reputation)
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetDelegationInfo(ctx context.Context, account string) (entities.DelegationInfo, bool, error) {
	var (
		out   entities.DelegationInfo
		found bool
	)
	err := uc.Store.View(ctx, func(state *entities.State) error {
		record, ok := state.Delegations[strings.TrimSpace(account)]
		if !ok {
			return nil
		}
		out, found = *record, true
		return nil
	})
	return out, found, err
}

// GetDelegate returns "" when the account has no active delegate.
func (uc QueryUseCase) GetDelegate(ctx context.Context, account string) (string, error) {
	var delegate string
	err := uc.Store.View(ctx, func(state *entities.State) error {
		if info, ok := state.ActiveDelegation(strings.TrimSpace(account)); ok {
			delegate = info.Delegate
		}
		return nil
	})
	return delegate, err
}

func (uc QueryUseCase) GetDelegators(ctx context.Context, delegate string) ([]string, error) {
	var delegators []string
	err := uc.Store.View(ctx, func(state *entities.State) error {
		delegators = append([]string(nil), state.Delegators[strings.TrimSpace(delegate)]...)
		return nil
	})
	sort.Strings(delegators)
	return delegators, err
}

func (uc QueryUseCase) GetUserRewards(ctx context.Context, account string) (entities.UserRewards, error) {
	account = strings.TrimSpace(account)
	out := entities.UserRewards{Account: account, Pending: new(big.Int), Claimed: new(big.Int)}
	err := uc.Store.View(ctx, func(state *entities.State) error {
		if record, ok := state.UserRewards[account]; ok {
			out = record.Clone()
		}
		return nil
	})
	return out, err
}
