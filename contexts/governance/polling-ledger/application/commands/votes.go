package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/domain/services"
	"agora/contexts/governance/polling-ledger/ports"
)

type VoteCommand struct {
	Caller string
	PollID uint64
	Option int
}

type RankedVoteCommand struct {
	Caller  string
	PollID  uint64
	Ranking []int
}

type ApprovalVoteCommand struct {
	Caller  string
	PollID  uint64
	Options []int
}

type DelegateVoteCommand struct {
	Caller    string
	PollID    uint64
	Option    int
	Delegator string
}

type BatchVoteCommand struct {
	Caller  string
	PollIDs []uint64
	Options []int
}

type VoteResult struct {
	PollID  uint64
	Voter   string
	CastBy  string
	Options []int
	Weight  uint64
}

type LiquidVoteResult struct {
	Own         VoteResult
	Delegated   []VoteResult
	TotalWeight uint64
}

// VoteUseCase records ballots. Every variant validates all of its ballots
// before the first write, so a rejected call leaves accumulators untouched.
type VoteUseCase struct {
	Runtime
}

type ballotMode int

const (
	anySingleChoice ballotMode = iota
	exactType
)

type ballotRequest struct {
	pollID   uint64
	voter    string
	castBy   string
	options  []int
	mode     ballotMode
	pollType entities.PollType
}

type ballotPlan struct {
	poll       *entities.Poll
	voter      string
	castBy     string
	options    []int
	weight     uint64
	holdingKey string
	at         time.Time
}

// ballotBatch tracks ballots prepared in one Update but not yet applied.
type ballotBatch struct {
	pending map[string]struct{}
	weight  map[uint64]uint64
}

func newBallotBatch() *ballotBatch {
	return &ballotBatch{
		pending: make(map[string]struct{}),
		weight:  make(map[uint64]uint64),
	}
}

func (b *ballotBatch) key(pollID uint64, voter string) string {
	return fmt.Sprintf("%d|%s", pollID, voter)
}

func (uc VoteUseCase) Vote(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	return uc.castOne(ctx, cmd.Caller, ballotRequest{
		pollID:  cmd.PollID,
		options: []int{cmd.Option},
		mode:    anySingleChoice,
	})
}

func (uc VoteUseCase) VoteTimeWeighted(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	return uc.castOne(ctx, cmd.Caller, ballotRequest{
		pollID:   cmd.PollID,
		options:  []int{cmd.Option},
		mode:     exactType,
		pollType: entities.PollTypeTimeWeighted,
	})
}

func (uc VoteUseCase) VoteReputationBased(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	return uc.castOne(ctx, cmd.Caller, ballotRequest{
		pollID:   cmd.PollID,
		options:  []int{cmd.Option},
		mode:     exactType,
		pollType: entities.PollTypeReputationBased,
	})
}

// VoteRankedChoice stores the full preference order; the first preference
// feeds the live accumulators and the runoff query reads the rest.
func (uc VoteUseCase) VoteRankedChoice(ctx context.Context, cmd RankedVoteCommand) (VoteResult, error) {
	return uc.castOne(ctx, cmd.Caller, ballotRequest{
		pollID:   cmd.PollID,
		options:  append([]int(nil), cmd.Ranking...),
		mode:     exactType,
		pollType: entities.PollTypeRankedChoice,
	})
}

// VoteApproval adds the voter's weight to every approved option while the
// poll's total weight counts the voter once.
func (uc VoteUseCase) VoteApproval(ctx context.Context, cmd ApprovalVoteCommand) (VoteResult, error) {
	return uc.castOne(ctx, cmd.Caller, ballotRequest{
		pollID:   cmd.PollID,
		options:  append([]int(nil), cmd.Options...),
		mode:     exactType,
		pollType: entities.PollTypeApproval,
	})
}

// VoteAsDelegate casts the delegator's ballot. The delegator's slot is
// consumed, the delegate's own slot is not.
func (uc VoteUseCase) VoteAsDelegate(ctx context.Context, cmd DelegateVoteCommand) (VoteResult, error) {
	caller := strings.TrimSpace(cmd.Caller)
	delegator := strings.TrimSpace(cmd.Delegator)
	var result VoteResult
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if state.Paused {
			return nil, domainerrors.ErrPlatformPaused
		}
		if caller == "" || delegator == "" {
			return nil, domainerrors.ErrInvalidAddress
		}
		info, ok := state.ActiveDelegation(delegator)
		if !ok || info.Delegate != caller {
			return nil, domainerrors.ErrNotDelegate
		}
		plans, events, err := uc.prepareAll(ctx, state, []ballotRequest{{
			pollID:  cmd.PollID,
			voter:   delegator,
			castBy:  caller,
			options: []int{cmd.Option},
			mode:    anySingleChoice,
		}})
		if err != nil {
			return nil, err
		}
		result = uc.apply(state, plans[0])
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_delegate_vote_rejected", err,
			"poll_id", cmd.PollID,
			"delegate", caller,
			"delegator", delegator,
		)
		return VoteResult{}, err
	}
	uc.logger().Info("delegate vote cast",
		"event", "ledger_delegate_vote_cast",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", cmd.PollID,
		"delegate", caller,
		"delegator", delegator,
		"weight", result.Weight,
	)
	return result, nil
}

// VoteLiquidDemocracy casts the caller's ballot and one ballot for every
// active delegator of the caller who has not voted yet. Delegators below the
// poll's asset gate are skipped.
func (uc VoteUseCase) VoteLiquidDemocracy(ctx context.Context, cmd VoteCommand) (LiquidVoteResult, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var result LiquidVoteResult
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		batch := newBallotBatch()
		now := uc.now()
		own, err := uc.prepare(ctx, state, ballotRequest{
			pollID:   cmd.PollID,
			voter:    caller,
			options:  []int{cmd.Option},
			mode:     exactType,
			pollType: entities.PollTypeLiquidDemocracy,
		}, now, batch)
		if err != nil {
			return nil, err
		}
		plans := []ballotPlan{own}

		delegators := append([]string(nil), state.Delegators[caller]...)
		sort.Strings(delegators)
		for _, delegator := range delegators {
			info, ok := state.ActiveDelegation(delegator)
			if !ok || info.Delegate != caller {
				continue
			}
			plan, err := uc.prepare(ctx, state, ballotRequest{
				pollID:   cmd.PollID,
				voter:    delegator,
				castBy:   caller,
				options:  []int{cmd.Option},
				mode:     exactType,
				pollType: entities.PollTypeLiquidDemocracy,
			}, now, batch)
			if errors.Is(err, domainerrors.ErrAlreadyVoted) || errors.Is(err, domainerrors.ErrInsufficientTokenBalance) {
				continue
			}
			if err != nil {
				return nil, err
			}
			plans = append(plans, plan)
		}

		events, err := uc.ballotEvents(ctx, plans)
		if err != nil {
			return nil, err
		}
		result = LiquidVoteResult{}
		for idx, plan := range plans {
			applied := uc.apply(state, plan)
			result.TotalWeight += applied.Weight
			if idx == 0 {
				result.Own = applied
				continue
			}
			result.Delegated = append(result.Delegated, applied)
		}
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_liquid_vote_rejected", err, "poll_id", cmd.PollID, "voter", caller)
		return LiquidVoteResult{}, err
	}
	uc.logger().Info("liquid democracy vote cast",
		"event", "ledger_liquid_vote_cast",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", cmd.PollID,
		"voter", caller,
		"delegated_ballots", len(result.Delegated),
		"total_weight", result.TotalWeight,
	)
	return result, nil
}

// BatchVote is all-or-nothing: the first failing pair aborts the whole batch.
func (uc VoteUseCase) BatchVote(ctx context.Context, cmd BatchVoteCommand) ([]VoteResult, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var results []VoteResult
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if len(cmd.PollIDs) != len(cmd.Options) {
			return nil, domainerrors.ErrMismatchedLengths
		}
		if len(cmd.PollIDs) == 0 || (uc.Policy.MaxBatchSize > 0 && len(cmd.PollIDs) > uc.Policy.MaxBatchSize) {
			return nil, domainerrors.ErrEmptyBatch
		}
		requests := make([]ballotRequest, 0, len(cmd.PollIDs))
		for idx, pollID := range cmd.PollIDs {
			requests = append(requests, ballotRequest{
				pollID:  pollID,
				voter:   caller,
				options: []int{cmd.Options[idx]},
				mode:    anySingleChoice,
			})
		}
		plans, events, err := uc.prepareAll(ctx, state, requests)
		if err != nil {
			return nil, err
		}
		results = make([]VoteResult, 0, len(plans))
		for _, plan := range plans {
			results = append(results, uc.apply(state, plan))
		}
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_batch_vote_rejected", err, "voter", caller, "batch_size", len(cmd.PollIDs))
		return nil, err
	}
	uc.logger().Info("batch vote cast",
		"event", "ledger_batch_vote_cast",
		"module", "governance/polling-ledger",
		"layer", "application",
		"voter", caller,
		"batch_size", len(results),
	)
	return results, nil
}

func (uc VoteUseCase) castOne(ctx context.Context, caller string, req ballotRequest) (VoteResult, error) {
	req.voter = strings.TrimSpace(caller)
	var result VoteResult
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		plans, events, err := uc.prepareAll(ctx, state, []ballotRequest{req})
		if err != nil {
			return nil, err
		}
		result = uc.apply(state, plans[0])
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_vote_rejected", err, "poll_id", req.pollID, "voter", req.voter)
		return VoteResult{}, err
	}
	uc.logger().Info("vote cast",
		"event", "ledger_vote_cast",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", result.PollID,
		"voter", result.Voter,
		"weight", result.Weight,
	)
	return result, nil
}

func (uc VoteUseCase) prepareAll(
	ctx context.Context,
	state *entities.State,
	requests []ballotRequest,
) ([]ballotPlan, []ports.EventEnvelope, error) {
	batch := newBallotBatch()
	now := uc.now()
	plans := make([]ballotPlan, 0, len(requests))
	for idx, req := range requests {
		plan, err := uc.prepare(ctx, state, req, now, batch)
		if err != nil {
			if len(requests) > 1 {
				return nil, nil, fmt.Errorf("batch item %d: %w", idx, err)
			}
			return nil, nil, err
		}
		plans = append(plans, plan)
	}
	events, err := uc.ballotEvents(ctx, plans)
	if err != nil {
		return nil, nil, err
	}
	return plans, events, nil
}

// prepare runs every check for one ballot and writes nothing.
func (uc VoteUseCase) prepare(
	ctx context.Context,
	state *entities.State,
	req ballotRequest,
	now time.Time,
	batch *ballotBatch,
) (ballotPlan, error) {
	if state.Paused {
		return ballotPlan{}, domainerrors.ErrPlatformPaused
	}
	if req.voter == "" {
		return ballotPlan{}, domainerrors.ErrInvalidAddress
	}
	poll, err := lookupPoll(state, req.pollID)
	if err != nil {
		return ballotPlan{}, err
	}
	if !poll.IsActive(now) {
		return ballotPlan{}, domainerrors.ErrPollNotActive
	}
	switch req.mode {
	case anySingleChoice:
		if !poll.Type.IsSingleChoice() {
			return ballotPlan{}, domainerrors.ErrPollTypeMismatch
		}
	case exactType:
		if poll.Type != req.pollType {
			return ballotPlan{}, domainerrors.ErrPollTypeMismatch
		}
	}
	key := batch.key(poll.ID, req.voter)
	if _, pending := batch.pending[key]; pending || poll.HasVoted(req.voter) {
		return ballotPlan{}, domainerrors.ErrAlreadyVoted
	}
	options, err := validateBallotOptions(poll, req.options)
	if err != nil {
		return ballotPlan{}, err
	}

	plan := ballotPlan{
		poll:    poll,
		voter:   req.voter,
		castBy:  req.castBy,
		options: options,
		at:      now,
	}
	input := services.WeightInput{
		Type:   poll.Type,
		Gate:   poll.Asset,
		Now:    now,
		Policy: uc.Policy,
	}
	if poll.RequiresAsset() {
		balance, err := uc.balanceOf(ctx, req.voter, poll.Asset.AssetID)
		if err != nil {
			return ballotPlan{}, err
		}
		input.Balance = balance
		holdingKey := entities.HoldingKey(req.voter, poll.Asset.AssetID)
		since, seen := state.HoldingSince[holdingKey]
		if !seen && balance.Sign() > 0 {
			since = now
			plan.holdingKey = holdingKey
		}
		input.HoldingSince = since
	}
	if poll.Type == entities.PollTypeReputationBased {
		input.ReputationScore = services.DecayedScore(state.Reputation[req.voter], now, uc.Policy.Reputation)
	}
	weight, err := services.ComputeWeight(input)
	if err != nil {
		return ballotPlan{}, err
	}
	added := batch.weight[poll.ID] + weight
	if added < weight || poll.TotalWeight+added < poll.TotalWeight {
		return ballotPlan{}, domainerrors.ErrWeightOverflow
	}
	plan.weight = weight
	batch.pending[key] = struct{}{}
	batch.weight[poll.ID] = added
	return plan, nil
}

func (uc VoteUseCase) balanceOf(ctx context.Context, account string, assetID string) (*big.Int, error) {
	if uc.Balances == nil {
		return nil, domainerrors.ErrDependencyUnavailable
	}
	balance, err := uc.Balances.BalanceOf(ctx, account, assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: balance oracle: %v", domainerrors.ErrDependencyUnavailable, err)
	}
	if balance == nil {
		return new(big.Int), nil
	}
	return balance, nil
}

func (uc VoteUseCase) apply(state *entities.State, plan ballotPlan) VoteResult {
	poll := plan.poll
	ballot := entities.Ballot{
		Options: plan.options,
		Weight:  plan.weight,
		CastAt:  plan.at,
	}
	if plan.castBy != "" && plan.castBy != plan.voter {
		ballot.CastBy = plan.castBy
	}
	poll.Ballots[plan.voter] = ballot
	switch poll.Type {
	case entities.PollTypeApproval:
		for _, option := range plan.options {
			poll.Votes[option] += plan.weight
		}
	default:
		poll.Votes[plan.options[0]] += plan.weight
	}
	poll.TotalWeight += plan.weight
	poll.TotalVotes++

	state.VotedBy[plan.voter] = append(state.VotedBy[plan.voter], poll.ID)
	firstVote := !state.UniqueVoters[plan.voter]
	state.UniqueVoters[plan.voter] = true
	state.Analytics.RecordVote(firstVote)
	services.ApplyReputation(state.ReputationOf(plan.voter), entities.ReputationActionVote, plan.at, uc.Policy.Reputation)
	if ballot.CastBy != "" {
		if info, ok := state.Delegations[plan.voter]; ok {
			info.TotalDelegatedWeight += plan.weight
		}
	}
	if plan.holdingKey != "" {
		if _, ok := state.HoldingSince[plan.holdingKey]; !ok {
			state.HoldingSince[plan.holdingKey] = plan.at
		}
	}
	return VoteResult{
		PollID:  poll.ID,
		Voter:   plan.voter,
		CastBy:  ballot.CastBy,
		Options: append([]int(nil), plan.options...),
		Weight:  plan.weight,
	}
}

func (uc VoteUseCase) ballotEvents(ctx context.Context, plans []ballotPlan) ([]ports.EventEnvelope, error) {
	events := make([]ports.EventEnvelope, 0, len(plans))
	for _, plan := range plans {
		data := map[string]any{
			"voter":     plan.voter,
			"options":   plan.options,
			"weight":    plan.weight,
			"poll_type": string(plan.poll.Type),
		}
		if plan.castBy != "" && plan.castBy != plan.voter {
			data["cast_by"] = plan.castBy
		}
		envelope, err := uc.pollEnvelope(ctx, "poll.vote_cast", plan.poll.ID, plan.at, data)
		if err != nil {
			return nil, err
		}
		events = append(events, envelope)
	}
	return events, nil
}

func validateBallotOptions(poll *entities.Poll, options []int) ([]int, error) {
	switch poll.Type {
	case entities.PollTypeRankedChoice:
		if !distinctInRange(options, len(poll.Options)) {
			return nil, domainerrors.ErrInvalidRanking
		}
	case entities.PollTypeApproval:
		if !distinctInRange(options, len(poll.Options)) {
			return nil, domainerrors.ErrInvalidOption
		}
	default:
		if len(options) != 1 || options[0] < 0 || options[0] >= len(poll.Options) {
			return nil, domainerrors.ErrInvalidOption
		}
	}
	return append([]int(nil), options...), nil
}

func distinctInRange(options []int, count int) bool {
	if len(options) == 0 || len(options) > count {
		return false
	}
	seen := make(map[int]struct{}, len(options))
	for _, option := range options {
		if option < 0 || option >= count {
			return false
		}
		if _, ok := seen[option]; ok {
			return false
		}
		seen[option] = struct{}{}
	}
	return true
}
