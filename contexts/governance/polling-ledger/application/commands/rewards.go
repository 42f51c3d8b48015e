package commands

import (
	"context"
	"math/big"
	"sort"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
)

type FundRewardPoolCommand struct {
	Caller string
	Amount *big.Int
}

type ConfigureRewardsCommand struct {
	Caller         string
	CreatorPercent uint64
	VoterPercent   uint64
}

type DistributeRewardsCommand struct {
	Caller string
	PollID uint64
}

// RewardUseCase keeps the shared pool and the per-account pending ledger.
// Amounts are base units.
type RewardUseCase struct {
	Runtime
}

func (uc RewardUseCase) FundRewardPool(ctx context.Context, cmd FundRewardPoolCommand) (*big.Int, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var balance *big.Int
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if err := uc.requireOperator(caller); err != nil {
			return nil, err
		}
		if cmd.Amount == nil || cmd.Amount.Sign() <= 0 {
			return nil, domainerrors.ErrInvalidAmount
		}
		amount := new(big.Int).Set(cmd.Amount)
		next := new(big.Int).Add(state.RewardPool.Balance, amount)
		envelope, err := uc.accountEnvelope(ctx, "rewards.funded", caller, uc.now(), map[string]any{
			"amount":  amount.String(),
			"balance": next.String(),
		})
		if err != nil {
			return nil, err
		}
		state.RewardPool.Balance = next
		state.RewardPool.TotalFunded.Add(state.RewardPool.TotalFunded, amount)
		balance = new(big.Int).Set(next)
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_reward_fund_rejected", err, "caller", caller)
		return nil, err
	}
	uc.logger().Info("reward pool funded",
		"event", "ledger_reward_pool_funded",
		"module", "governance/polling-ledger",
		"layer", "application",
		"caller", caller,
		"balance", balance.String(),
	)
	return balance, nil
}

func (uc RewardUseCase) ConfigureRewards(ctx context.Context, cmd ConfigureRewardsCommand) error {
	caller := strings.TrimSpace(cmd.Caller)
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if err := uc.requireOperator(caller); err != nil {
			return nil, err
		}
		if cmd.CreatorPercent+cmd.VoterPercent != 100 || cmd.CreatorPercent > 100 {
			return nil, domainerrors.ErrInvalidRewardSplit
		}
		envelope, err := uc.accountEnvelope(ctx, "rewards.configured", caller, uc.now(), map[string]any{
			"creator_percent": cmd.CreatorPercent,
			"voter_percent":   cmd.VoterPercent,
		})
		if err != nil {
			return nil, err
		}
		state.RewardPool.CreatorPercent = cmd.CreatorPercent
		state.RewardPool.VoterPercent = cmd.VoterPercent
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_reward_configure_rejected", err, "caller", caller)
		return err
	}
	uc.logger().Info("reward split configured",
		"event", "ledger_reward_split_configured",
		"module", "governance/polling-ledger",
		"layer", "application",
		"creator_percent", cmd.CreatorPercent,
		"voter_percent", cmd.VoterPercent,
	)
	return nil
}

// DistributeRewards pays a finished poll once. The reward is base plus a
// per-vote bonus, capped by the pool. The creator share is credited whole;
// the voter share is split pro-rata by ballot weight and rounding dust stays
// in the pool.
func (uc RewardUseCase) DistributeRewards(ctx context.Context, cmd DistributeRewardsCommand) (entities.PollReward, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var record entities.PollReward
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		poll, err := lookupPoll(state, cmd.PollID)
		if err != nil {
			return nil, err
		}
		if caller != poll.Creator && !uc.Policy.IsOperator(caller) {
			return nil, domainerrors.ErrNotOperator
		}
		if _, done := state.PollRewards[poll.ID]; done {
			return nil, domainerrors.ErrRewardsAlreadyDistributed
		}
		now := uc.now()
		switch poll.EffectiveStatus(now) {
		case entities.PollStatusActive:
			return nil, domainerrors.ErrPollStillActive
		case entities.PollStatusCancelled:
			return nil, domainerrors.ErrInvalidStatusTransition
		}
		pool := &state.RewardPool
		if pool.Balance.Sign() <= 0 {
			return nil, domainerrors.ErrRewardPoolExhausted
		}

		reward := new(big.Int).Mul(uc.perVoteBonus(), new(big.Int).SetUint64(poll.TotalVotes))
		reward.Add(reward, uc.baseReward())
		if reward.Cmp(pool.Balance) > 0 {
			reward.Set(pool.Balance)
		}
		creatorShare := percentOf(reward, pool.CreatorPercent)
		voterShare := new(big.Int).Sub(reward, creatorShare)
		credits := voterCredits(poll, voterShare)

		paid := new(big.Int).Set(creatorShare)
		for _, credit := range credits {
			paid.Add(paid, credit.amount)
		}
		record = entities.PollReward{
			PollID:        poll.ID,
			Amount:        reward,
			CreatorShare:  creatorShare,
			VoterShare:    voterShare,
			Undistributed: new(big.Int).Sub(reward, paid),
			DistributedBy: caller,
			DistributedAt: now,
		}
		events, err := uc.expiryEvents(ctx, poll, now)
		if err != nil {
			return nil, err
		}
		envelope, err := uc.pollEnvelope(ctx, "rewards.distributed", poll.ID, now, map[string]any{
			"amount":         reward.String(),
			"creator":        poll.Creator,
			"creator_share":  creatorShare.String(),
			"voter_share":    voterShare.String(),
			"voters_paid":    len(credits),
			"undistributed":  record.Undistributed.String(),
			"distributed_by": caller,
		})
		if err != nil {
			return nil, err
		}

		poll.MaterializeExpiry(now)
		creditPending(state, poll.Creator, creatorShare)
		for _, credit := range credits {
			creditPending(state, credit.account, credit.amount)
		}
		pool.Balance.Sub(pool.Balance, paid)
		pool.TotalDistributed.Add(pool.TotalDistributed, paid)
		stored := record.Clone()
		state.PollRewards[poll.ID] = &stored
		return append(events, envelope), nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_reward_distribute_rejected", err, "poll_id", cmd.PollID, "caller", caller)
		return entities.PollReward{}, err
	}
	uc.logger().Info("poll rewards distributed",
		"event", "ledger_rewards_distributed",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", cmd.PollID,
		"amount", record.Amount.String(),
	)
	return record, nil
}

// ClaimRewards zeroes the caller's pending balance. The transfer itself is
// performed by the payout worker from the rewards.claimed event.
func (uc RewardUseCase) ClaimRewards(ctx context.Context, caller string) (*big.Int, error) {
	caller = strings.TrimSpace(caller)
	var claimed *big.Int
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if caller == "" {
			return nil, domainerrors.ErrInvalidAddress
		}
		rewards, ok := state.UserRewards[caller]
		if !ok || rewards.Pending == nil || rewards.Pending.Sign() <= 0 {
			return nil, domainerrors.ErrNothingToClaim
		}
		now := uc.now()
		amount := new(big.Int).Set(rewards.Pending)
		envelope, err := uc.accountEnvelope(ctx, "rewards.claimed", caller, now, map[string]any{
			"amount": amount.String(),
		})
		if err != nil {
			return nil, err
		}
		rewards.Claimed.Add(rewards.Claimed, amount)
		rewards.Pending = new(big.Int)
		claimedAt := now
		rewards.LastClaimedAt = &claimedAt
		state.RewardPool.TotalClaimed.Add(state.RewardPool.TotalClaimed, amount)
		claimed = amount
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_reward_claim_rejected", err, "account", caller)
		return nil, err
	}
	uc.logger().Info("rewards claimed",
		"event", "ledger_rewards_claimed",
		"module", "governance/polling-ledger",
		"layer", "application",
		"account", caller,
		"amount", claimed.String(),
	)
	return claimed, nil
}

func (uc RewardUseCase) baseReward() *big.Int {
	if uc.Policy.Rewards.BaseReward == nil {
		return new(big.Int)
	}
	return uc.Policy.Rewards.BaseReward
}

func (uc RewardUseCase) perVoteBonus() *big.Int {
	if uc.Policy.Rewards.PerVoteBonus == nil {
		return new(big.Int)
	}
	return uc.Policy.Rewards.PerVoteBonus
}

type voterCredit struct {
	account string
	amount  *big.Int
}

func voterCredits(poll *entities.Poll, share *big.Int) []voterCredit {
	if share.Sign() <= 0 || poll.TotalWeight == 0 {
		return nil
	}
	voters := make([]string, 0, len(poll.Ballots))
	for voter := range poll.Ballots {
		voters = append(voters, voter)
	}
	sort.Strings(voters)
	total := new(big.Int).SetUint64(poll.TotalWeight)
	credits := make([]voterCredit, 0, len(voters))
	for _, voter := range voters {
		amount := new(big.Int).Mul(share, new(big.Int).SetUint64(poll.Ballots[voter].Weight))
		amount.Quo(amount, total)
		if amount.Sign() <= 0 {
			continue
		}
		credits = append(credits, voterCredit{account: voter, amount: amount})
	}
	return credits
}

func creditPending(state *entities.State, account string, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	rewards := state.RewardsOf(account)
	rewards.Pending.Add(rewards.Pending, amount)
}

func percentOf(amount *big.Int, percent uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, big.NewInt(100))
}
