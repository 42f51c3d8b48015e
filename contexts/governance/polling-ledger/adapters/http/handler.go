package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	httptransport "agora/contexts/governance/polling-ledger/transport/http"
)

type Handler struct {
	Polls      commands.PollUseCase
	Votes      commands.VoteUseCase
	Lifecycle  commands.LifecycleUseCase
	Delegation commands.DelegationUseCase
	Templates  commands.TemplateUseCase
	Rewards    commands.RewardUseCase
	Admin      commands.AdminUseCase
	Queries    queries.QueryUseCase
	Logger     *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	caller string,
	req httptransport.CreatePollRequest,
) (httptransport.CreatePollResponse, error) {
	gate, err := parseGate(req.AssetID, req.MinBalance)
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	fee, err := parseOptionalAmount(req.Fee)
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	pollID, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		Caller:           caller,
		Question:         req.Question,
		Options:          req.Options,
		Duration:         seconds(req.DurationSeconds, h.Polls.Policy.DefaultDuration),
		Type:             entities.PollType(req.PollType),
		Category:         entities.Category(req.Category),
		MinParticipation: req.MinParticipation,
		Asset:            gate,
		Description:      req.Description,
		Tags:             req.Tags,
		Fee:              fee,
	})
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	return httptransport.CreatePollResponse{PollID: pollID}, nil
}

func (h Handler) CreatePollFromTemplateHandler(
	ctx context.Context,
	caller string,
	req httptransport.CreateFromTemplateRequest,
) (httptransport.CreatePollResponse, error) {
	fee, err := parseOptionalAmount(req.Fee)
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	pollID, err := h.Polls.CreatePollFromTemplate(ctx, commands.CreateFromTemplateCommand{
		Caller:      caller,
		TemplateID:  req.TemplateID,
		Question:    req.Question,
		Options:     req.Options,
		Description: req.Description,
		Tags:        req.Tags,
		Fee:         fee,
	})
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	return httptransport.CreatePollResponse{PollID: pollID}, nil
}

// VoteHandler routes a single-choice ballot by mode: "", "time_weighted" or "reputation".
func (h Handler) VoteHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	mode string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	cmd := commands.VoteCommand{Caller: caller, PollID: pollID, Option: req.Option}
	var (
		result commands.VoteResult
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		result, err = h.Votes.Vote(ctx, cmd)
	case "time_weighted", "time-weighted":
		result, err = h.Votes.VoteTimeWeighted(ctx, cmd)
	case "reputation", "reputation_based":
		result, err = h.Votes.VoteReputationBased(ctx, cmd)
	default:
		return httptransport.VoteResponse{}, domainerrors.ErrPollTypeMismatch
	}
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(result), nil
}

func (h Handler) RankedVoteHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	req httptransport.RankedVoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.VoteRankedChoice(ctx, commands.RankedVoteCommand{
		Caller:  caller,
		PollID:  pollID,
		Ranking: req.Ranking,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(result), nil
}

func (h Handler) ApprovalVoteHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	req httptransport.ApprovalVoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.VoteApproval(ctx, commands.ApprovalVoteCommand{
		Caller:  caller,
		PollID:  pollID,
		Options: req.Options,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(result), nil
}

func (h Handler) DelegateVoteHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	req httptransport.DelegateVoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.VoteAsDelegate(ctx, commands.DelegateVoteCommand{
		Caller:    caller,
		PollID:    pollID,
		Option:    req.Option,
		Delegator: req.Delegator,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(result), nil
}

func (h Handler) LiquidVoteHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	req httptransport.VoteRequest,
) (httptransport.LiquidVoteResponse, error) {
	result, err := h.Votes.VoteLiquidDemocracy(ctx, commands.VoteCommand{Caller: caller, PollID: pollID, Option: req.Option})
	if err != nil {
		return httptransport.LiquidVoteResponse{}, err
	}
	delegated := make([]httptransport.VoteResponse, 0, len(result.Delegated))
	for _, item := range result.Delegated {
		delegated = append(delegated, mapVote(item))
	}
	return httptransport.LiquidVoteResponse{
		Own:         mapVote(result.Own),
		Delegated:   delegated,
		TotalWeight: result.TotalWeight,
	}, nil
}

func (h Handler) BatchVoteHandler(
	ctx context.Context,
	caller string,
	req httptransport.BatchVoteRequest,
) (httptransport.BatchVoteResponse, error) {
	results, err := h.Votes.BatchVote(ctx, commands.BatchVoteCommand{
		Caller:  caller,
		PollIDs: req.PollIDs,
		Options: req.Options,
	})
	if err != nil {
		return httptransport.BatchVoteResponse{}, err
	}
	items := make([]httptransport.VoteResponse, 0, len(results))
	for _, item := range results {
		items = append(items, mapVote(item))
	}
	return httptransport.BatchVoteResponse{Items: items}, nil
}

func (h Handler) ClosePollHandler(ctx context.Context, caller string, pollID uint64) (httptransport.StatusChangeResponse, error) {
	if err := h.Lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: caller, PollID: pollID}); err != nil {
		return httptransport.StatusChangeResponse{}, err
	}
	return httptransport.StatusChangeResponse{PollID: pollID, Status: string(entities.PollStatusClosed)}, nil
}

func (h Handler) ArchivePollHandler(ctx context.Context, caller string, pollID uint64) (httptransport.StatusChangeResponse, error) {
	if err := h.Lifecycle.ArchivePoll(ctx, commands.PollActionCommand{Caller: caller, PollID: pollID}); err != nil {
		return httptransport.StatusChangeResponse{}, err
	}
	return httptransport.StatusChangeResponse{PollID: pollID, Status: string(entities.PollStatusArchived)}, nil
}

func (h Handler) EmergencyClosePollHandler(ctx context.Context, caller string, pollID uint64) (httptransport.StatusChangeResponse, error) {
	if err := h.Lifecycle.EmergencyClosePoll(ctx, commands.PollActionCommand{Caller: caller, PollID: pollID}); err != nil {
		return httptransport.StatusChangeResponse{}, err
	}
	return httptransport.StatusChangeResponse{PollID: pollID, Status: string(entities.PollStatusCancelled)}, nil
}

func (h Handler) ExtendPollHandler(
	ctx context.Context,
	caller string,
	pollID uint64,
	req httptransport.ExtendPollRequest,
) (httptransport.ExtendPollResponse, error) {
	endTime, err := h.Lifecycle.ExtendPoll(ctx, commands.ExtendPollCommand{
		Caller: caller,
		PollID: pollID,
		Extra:  time.Duration(req.ExtraSeconds) * time.Second,
	})
	if err != nil {
		return httptransport.ExtendPollResponse{}, err
	}
	return httptransport.ExtendPollResponse{PollID: pollID, EndTime: endTime}, nil
}

func (h Handler) SetDelegateHandler(ctx context.Context, caller string, req httptransport.SetDelegateRequest) error {
	return h.Delegation.SetDelegate(ctx, commands.SetDelegateCommand{
		Caller:   caller,
		Delegate: req.Delegate,
		Kind:     entities.DelegationKind(req.Kind),
	})
}

func (h Handler) RemoveDelegateHandler(ctx context.Context, caller string) error {
	return h.Delegation.RemoveDelegate(ctx, caller)
}

func (h Handler) CreateTemplateHandler(
	ctx context.Context,
	caller string,
	req httptransport.CreateTemplateRequest,
) (httptransport.CreateTemplateResponse, error) {
	gate, err := parseGate(req.AssetID, req.MinBalance)
	if err != nil {
		return httptransport.CreateTemplateResponse{}, err
	}
	templateID, err := h.Templates.CreatePollTemplate(ctx, commands.CreateTemplateCommand{
		Caller:           caller,
		Name:             req.Name,
		Type:             entities.PollType(req.PollType),
		Category:         entities.Category(req.Category),
		Duration:         seconds(req.DurationSeconds, h.Templates.Policy.DefaultDuration),
		MinParticipation: req.MinParticipation,
		Asset:            gate,
		DefaultTags:      req.DefaultTags,
	})
	if err != nil {
		return httptransport.CreateTemplateResponse{}, err
	}
	return httptransport.CreateTemplateResponse{TemplateID: templateID}, nil
}

func (h Handler) ToggleTemplateHandler(ctx context.Context, caller string, templateID uint64) (httptransport.ToggleTemplateResponse, error) {
	active, err := h.Templates.ToggleTemplate(ctx, commands.ToggleTemplateCommand{Caller: caller, TemplateID: templateID})
	if err != nil {
		return httptransport.ToggleTemplateResponse{}, err
	}
	return httptransport.ToggleTemplateResponse{TemplateID: templateID, Active: active}, nil
}

func (h Handler) FundRewardPoolHandler(
	ctx context.Context,
	caller string,
	req httptransport.FundRewardPoolRequest,
) (httptransport.RewardPoolResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return httptransport.RewardPoolResponse{}, err
	}
	if _, err := h.Rewards.FundRewardPool(ctx, commands.FundRewardPoolCommand{Caller: caller, Amount: amount}); err != nil {
		return httptransport.RewardPoolResponse{}, err
	}
	return h.RewardPoolHandler(ctx)
}

func (h Handler) ConfigureRewardsHandler(
	ctx context.Context,
	caller string,
	req httptransport.ConfigureRewardsRequest,
) (httptransport.RewardPoolResponse, error) {
	err := h.Rewards.ConfigureRewards(ctx, commands.ConfigureRewardsCommand{
		Caller:         caller,
		CreatorPercent: req.CreatorPercent,
		VoterPercent:   req.VoterPercent,
	})
	if err != nil {
		return httptransport.RewardPoolResponse{}, err
	}
	return h.RewardPoolHandler(ctx)
}

func (h Handler) DistributeRewardsHandler(ctx context.Context, caller string, pollID uint64) (httptransport.PollRewardResponse, error) {
	reward, err := h.Rewards.DistributeRewards(ctx, commands.DistributeRewardsCommand{Caller: caller, PollID: pollID})
	if err != nil {
		return httptransport.PollRewardResponse{}, err
	}
	return mapPollReward(pollID, reward, true), nil
}

func (h Handler) ClaimRewardsHandler(ctx context.Context, caller string) (httptransport.ClaimRewardsResponse, error) {
	amount, err := h.Rewards.ClaimRewards(ctx, caller)
	if err != nil {
		return httptransport.ClaimRewardsResponse{}, err
	}
	return httptransport.ClaimRewardsResponse{
		Account: strings.TrimSpace(caller),
		Amount:  amount.String(),
	}, nil
}

func (h Handler) SetPausedHandler(ctx context.Context, caller string, req httptransport.PauseRequest) (httptransport.LedgerStatusResponse, error) {
	if err := h.Admin.SetPaused(ctx, caller, req.Paused); err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	return h.StatusHandler(ctx)
}

func seconds(value int64, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, domainerrors.ErrInvalidAmount
	}
	return amount, nil
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(raw)
}

func parseGate(assetID string, minBalance string) (*entities.AssetGate, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, nil
	}
	balance, err := parseOptionalAmount(minBalance)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = new(big.Int)
	}
	return &entities.AssetGate{AssetID: assetID, MinBalance: balance}, nil
}
