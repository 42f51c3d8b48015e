package httpadapter

import (
	"context"
	"math/big"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	httptransport "agora/contexts/governance/polling-ledger/transport/http"
)

func (h Handler) GetPollHandler(ctx context.Context, pollID uint64) (httptransport.PollResponse, error) {
	poll, err := h.Queries.GetPoll(ctx, pollID)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll), nil
}

func (h Handler) PollResultsHandler(ctx context.Context, pollID uint64) (httptransport.PollResultsResponse, error) {
	results, err := h.Queries.GetPollResults(ctx, pollID)
	if err != nil {
		return httptransport.PollResultsResponse{}, err
	}
	return httptransport.PollResultsResponse{
		PollID:      results.PollID,
		Status:      string(results.Status),
		Options:     results.Options,
		Votes:       results.Votes,
		TotalVotes:  results.TotalVotes,
		TotalWeight: results.TotalWeight,
	}, nil
}

func (h Handler) PollSummaryHandler(ctx context.Context, pollID uint64) (httptransport.PollSummaryResponse, error) {
	summary, err := h.Queries.GetPollSummary(ctx, pollID)
	if err != nil {
		return httptransport.PollSummaryResponse{}, err
	}
	return mapSummary(summary), nil
}

// ListPollsHandler pages newest first unless any filter is set.
func (h Handler) ListPollsHandler(
	ctx context.Context,
	filter queries.PollFilter,
	offset int,
	limit int,
) (httptransport.PollListResponse, error) {
	if filter == (queries.PollFilter{}) {
		page, err := h.Queries.GetPollsForFrontend(ctx, offset, limit)
		if err != nil {
			return httptransport.PollListResponse{}, err
		}
		return httptransport.PollListResponse{
			Items:  mapSummaries(page.Items),
			Total:  page.Total,
			Offset: page.Offset,
			Limit:  page.Limit,
		}, nil
	}
	items, err := h.Queries.GetFilteredPolls(ctx, filter)
	if err != nil {
		return httptransport.PollListResponse{}, err
	}
	return httptransport.PollListResponse{Items: mapSummaries(items), Total: len(items)}, nil
}

func (h Handler) PollsByCategoryHandler(ctx context.Context, category string) (httptransport.PollIDsResponse, error) {
	parsed, ok := entities.ParseCategory(category)
	if !ok {
		return httptransport.PollIDsResponse{}, domainerrors.ErrInvalidCategory
	}
	ids, err := h.Queries.GetPollsByCategory(ctx, parsed)
	return pollIDs(ids, err)
}

func (h Handler) PollsByTagHandler(ctx context.Context, tag string) (httptransport.PollIDsResponse, error) {
	return pollIDs(h.Queries.GetPollsByTag(ctx, tag))
}

func (h Handler) UserCreatedPollsHandler(ctx context.Context, account string) (httptransport.PollIDsResponse, error) {
	return pollIDs(h.Queries.GetUserCreatedPolls(ctx, account))
}

func (h Handler) UserVotedPollsHandler(ctx context.Context, account string) (httptransport.PollIDsResponse, error) {
	return pollIDs(h.Queries.GetUserVotedPolls(ctx, account))
}

func (h Handler) HasVotedHandler(ctx context.Context, pollID uint64, account string) (httptransport.FlagResponse, error) {
	voted, err := h.Queries.HasUserVoted(ctx, pollID, account)
	if err != nil {
		return httptransport.FlagResponse{}, err
	}
	return httptransport.FlagResponse{Value: voted}, nil
}

func (h Handler) IsActiveHandler(ctx context.Context, pollID uint64) (httptransport.FlagResponse, error) {
	active, err := h.Queries.IsPollActive(ctx, pollID)
	if err != nil {
		return httptransport.FlagResponse{}, err
	}
	return httptransport.FlagResponse{Value: active}, nil
}

func (h Handler) ActivePollsCountHandler(ctx context.Context) (httptransport.CountResponse, error) {
	count, err := h.Queries.GetActivePollsCount(ctx)
	if err != nil {
		return httptransport.CountResponse{}, err
	}
	return httptransport.CountResponse{Count: count}, nil
}

func (h Handler) RankedChoiceHandler(ctx context.Context, pollID uint64) (httptransport.RankedChoiceResponse, error) {
	result, err := h.Queries.GetRankedChoiceResult(ctx, pollID)
	if err != nil {
		return httptransport.RankedChoiceResponse{}, err
	}
	rounds := make([]httptransport.RunoffRoundResponse, 0, len(result.Rounds))
	for _, round := range result.Rounds {
		rounds = append(rounds, httptransport.RunoffRoundResponse{
			Tallies:    round.Tallies,
			Exhausted:  round.Exhausted,
			Eliminated: round.Eliminated,
		})
	}
	response := httptransport.RankedChoiceResponse{
		PollID: result.PollID,
		Winner: result.Winner,
		Rounds: rounds,
	}
	if result.Winner >= 0 && result.Winner < len(result.Options) {
		response.WinnerLabel = result.Options[result.Winner]
	}
	return response, nil
}

func (h Handler) PollAnalyticsHandler(ctx context.Context, pollID uint64) (httptransport.PollAnalyticsResponse, error) {
	stats, err := h.Queries.GetPollAnalytics(ctx, pollID)
	if err != nil {
		return httptransport.PollAnalyticsResponse{}, err
	}
	return httptransport.PollAnalyticsResponse{
		PollID:               stats.PollID,
		Status:               string(stats.Status),
		TotalVotes:           stats.TotalVotes,
		TotalWeight:          stats.TotalWeight,
		LeadingOption:        stats.LeadingOption,
		LeadingLabel:         stats.LeadingLabel,
		Margin:               stats.Margin,
		Percentages:          stats.Percentages,
		Participation:        stats.Participation,
		TimeRemainingSeconds: int64(stats.TimeRemaining / time.Second),
	}, nil
}

func (h Handler) ExportPollHandler(ctx context.Context, pollID uint64, format string) ([]byte, queries.ExportFormat, error) {
	parsed, err := queries.ParseExportFormat(format)
	if err != nil {
		return nil, "", err
	}
	body, err := h.Queries.ExportPoll(ctx, pollID, parsed)
	if err != nil {
		return nil, "", err
	}
	return body, parsed, nil
}

func (h Handler) AnalyticsHandler(ctx context.Context) (httptransport.AnalyticsResponse, error) {
	stats, err := h.Queries.GetAnalytics(ctx)
	if err != nil {
		return httptransport.AnalyticsResponse{}, err
	}
	byCategory := make(map[string]uint64, len(stats.ByCategory))
	for key, value := range stats.ByCategory {
		byCategory[string(key)] = value
	}
	byType := make(map[string]uint64, len(stats.ByType))
	for key, value := range stats.ByType {
		byType[string(key)] = value
	}
	return httptransport.AnalyticsResponse{
		TotalPolls:           stats.TotalPolls,
		TotalVotes:           stats.TotalVotes,
		TotalUniqueVoters:    stats.TotalUniqueVoters,
		AverageParticipation: stats.AverageParticipation,
		ByCategory:           byCategory,
		ByType:               byType,
	}, nil
}

func (h Handler) UserStatsHandler(ctx context.Context, account string) (httptransport.UserStatsResponse, error) {
	stats, err := h.Queries.GetUserStats(ctx, account)
	if err != nil {
		return httptransport.UserStatsResponse{}, err
	}
	return httptransport.UserStatsResponse{
		Account:           stats.Account,
		PollsCreated:      stats.PollsCreated,
		PollsVoted:        stats.PollsVoted,
		TotalVotingWeight: stats.TotalVotingWeight,
		ReputationScore:   stats.ReputationScore,
	}, nil
}

func (h Handler) ReputationHandler(ctx context.Context, account string) (httptransport.ReputationResponse, error) {
	record, err := h.Queries.GetReputation(ctx, account)
	if err != nil {
		return httptransport.ReputationResponse{}, err
	}
	response := httptransport.ReputationResponse{
		Account:         record.Account,
		Score:           record.Score,
		VoteCount:       record.VoteCount,
		PollsCreated:    record.PollsCreated,
		SuccessfulPolls: record.SuccessfulPolls,
		Active:          record.Active,
	}
	if !record.LastActivity.IsZero() {
		lastActivity := record.LastActivity
		response.LastActivity = &lastActivity
	}
	return response, nil
}

func (h Handler) DelegationHandler(ctx context.Context, account string) (httptransport.DelegationResponse, error) {
	info, found, err := h.Queries.GetDelegationInfo(ctx, account)
	if err != nil {
		return httptransport.DelegationResponse{}, err
	}
	delegators, err := h.Queries.GetDelegators(ctx, account)
	if err != nil {
		return httptransport.DelegationResponse{}, err
	}
	response := httptransport.DelegationResponse{
		Account:    strings.TrimSpace(account),
		Delegators: delegators,
	}
	if found {
		delegatedAt := info.DelegatedAt
		response.Delegate = info.Delegate
		response.Kind = string(info.Kind)
		response.DelegatedAt = &delegatedAt
		response.TotalDelegatedWeight = info.TotalDelegatedWeight
		response.Active = info.Active
	}
	return response, nil
}

func (h Handler) GetTemplateHandler(ctx context.Context, templateID uint64) (httptransport.TemplateResponse, error) {
	template, err := h.Queries.GetTemplate(ctx, templateID)
	if err != nil {
		return httptransport.TemplateResponse{}, err
	}
	return mapTemplate(template), nil
}

func (h Handler) ListTemplatesHandler(ctx context.Context, activeOnly bool) (httptransport.TemplateListResponse, error) {
	templates, err := h.Queries.ListTemplates(ctx, activeOnly)
	if err != nil {
		return httptransport.TemplateListResponse{}, err
	}
	items := make([]httptransport.TemplateResponse, 0, len(templates))
	for _, template := range templates {
		items = append(items, mapTemplate(template))
	}
	return httptransport.TemplateListResponse{Items: items}, nil
}

func (h Handler) RewardPoolHandler(ctx context.Context) (httptransport.RewardPoolResponse, error) {
	pool, err := h.Queries.GetRewardPool(ctx)
	if err != nil {
		return httptransport.RewardPoolResponse{}, err
	}
	return httptransport.RewardPoolResponse{
		Balance:          amountString(pool.Balance),
		CreatorPercent:   pool.CreatorPercent,
		VoterPercent:     pool.VoterPercent,
		TotalFunded:      amountString(pool.TotalFunded),
		TotalDistributed: amountString(pool.TotalDistributed),
		TotalClaimed:     amountString(pool.TotalClaimed),
	}, nil
}

func (h Handler) PollRewardHandler(ctx context.Context, pollID uint64) (httptransport.PollRewardResponse, error) {
	reward, found, err := h.Queries.GetPollReward(ctx, pollID)
	if err != nil {
		return httptransport.PollRewardResponse{}, err
	}
	return mapPollReward(pollID, reward, found), nil
}

func (h Handler) UserRewardsHandler(ctx context.Context, account string) (httptransport.UserRewardsResponse, error) {
	rewards, err := h.Queries.GetUserRewards(ctx, account)
	if err != nil {
		return httptransport.UserRewardsResponse{}, err
	}
	return httptransport.UserRewardsResponse{
		Account: rewards.Account,
		Pending: amountString(rewards.Pending),
		Claimed: amountString(rewards.Claimed),
	}, nil
}

func (h Handler) StatusHandler(ctx context.Context) (httptransport.LedgerStatusResponse, error) {
	status, err := h.Queries.GetLedgerStatus(ctx)
	if err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	return httptransport.LedgerStatusResponse{
		Paused:      status.Paused,
		PollCount:   status.PollCount,
		ActivePolls: status.ActivePolls,
		Templates:   status.Templates,
	}, nil
}

func pollIDs(ids []uint64, err error) (httptransport.PollIDsResponse, error) {
	if err != nil {
		return httptransport.PollIDsResponse{}, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return httptransport.PollIDsResponse{PollIDs: ids}, nil
}

func mapVote(result commands.VoteResult) httptransport.VoteResponse {
	response := httptransport.VoteResponse{
		PollID:  result.PollID,
		Voter:   result.Voter,
		Options: result.Options,
		Weight:  result.Weight,
	}
	if result.CastBy != result.Voter {
		response.CastBy = result.CastBy
	}
	return response
}

func mapPoll(poll entities.Poll) httptransport.PollResponse {
	response := httptransport.PollResponse{
		ID:               poll.ID,
		Question:         poll.Question,
		Options:          poll.Options,
		Votes:            poll.Votes,
		Creator:          poll.Creator,
		CreatedAt:        poll.CreatedAt,
		EndTime:          poll.EndTime,
		Status:           string(poll.Status),
		PollType:         string(poll.Type),
		Category:         string(poll.Category),
		MinParticipation: poll.MinParticipation,
		TotalVotes:       poll.TotalVotes,
		TotalWeight:      poll.TotalWeight,
		Description:      poll.Description,
		Tags:             poll.Tags,
		TemplateID:       poll.TemplateID,
		Archived:         poll.Archived,
		ArchivedAt:       poll.ArchivedAt,
	}
	if poll.Asset != nil {
		response.AssetID = poll.Asset.AssetID
		response.MinBalance = amountString(poll.Asset.MinBalance)
	}
	return response
}

func mapSummary(summary entities.PollSummary) httptransport.PollSummaryResponse {
	return httptransport.PollSummaryResponse{
		ID:          summary.ID,
		Question:    summary.Question,
		Creator:     summary.Creator,
		Status:      string(summary.Status),
		PollType:    string(summary.Type),
		Category:    string(summary.Category),
		OptionCount: summary.OptionCount,
		TotalVotes:  summary.TotalVotes,
		TotalWeight: summary.TotalWeight,
		EndTime:     summary.EndTime,
		Tags:        summary.Tags,
		Leading:     summary.Leading,
	}
}

func mapSummaries(items []entities.PollSummary) []httptransport.PollSummaryResponse {
	out := make([]httptransport.PollSummaryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, mapSummary(item))
	}
	return out
}

func mapTemplate(template entities.Template) httptransport.TemplateResponse {
	response := httptransport.TemplateResponse{
		ID:               template.ID,
		Name:             template.Name,
		PollType:         string(template.Type),
		Category:         string(template.Category),
		DurationSeconds:  int64(template.Duration / time.Second),
		MinParticipation: template.MinParticipation,
		DefaultTags:      template.DefaultTags,
		Active:           template.Active,
		CreatedBy:        template.CreatedBy,
	}
	if template.Asset != nil {
		response.AssetID = template.Asset.AssetID
		response.MinBalance = amountString(template.Asset.MinBalance)
	}
	return response
}

func mapPollReward(pollID uint64, reward entities.PollReward, found bool) httptransport.PollRewardResponse {
	if !found {
		return httptransport.PollRewardResponse{PollID: pollID}
	}
	return httptransport.PollRewardResponse{
		PollID:        pollID,
		Distributed:   true,
		Amount:        amountString(reward.Amount),
		CreatorShare:  amountString(reward.CreatorShare),
		VoterShare:    amountString(reward.VoterShare),
		Undistributed: amountString(reward.Undistributed),
		DistributedBy: reward.DistributedBy,
		DistributedAt: reward.DistributedAt,
	}
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
