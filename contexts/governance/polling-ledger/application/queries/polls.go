package queries

import (
	"context"
	"sort"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/domain/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PollResults struct {
	PollID      uint64
	Status      entities.PollStatus
	Options     []string
	Votes       []uint64
	TotalVotes  uint64
	TotalWeight uint64
}

type PollFilter struct {
	Category        entities.Category
	Tag             string
	Status          entities.PollStatus
	Type            entities.PollType
	Creator         string
	ActiveOnly      bool
	IncludeArchived bool
}

type PollPage struct {
	Items  []entities.PollSummary
	Total  int
	Offset int
	Limit  int
}

type RankedChoiceResult struct {
	PollID  uint64
	Options []string
	Winner  int
	Rounds  []services.RunoffRound
}

func (uc QueryUseCase) GetPoll(ctx context.Context, pollID uint64) (entities.Poll, error) {
	var out entities.Poll
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		out = snapshotPoll(poll, uc.now())
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetPollResults(ctx context.Context, pollID uint64) (PollResults, error) {
	var out PollResults
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		out = PollResults{
			PollID:      poll.ID,
			Status:      poll.EffectiveStatus(uc.now()),
			Options:     append([]string(nil), poll.Options...),
			Votes:       append([]uint64(nil), poll.Votes...),
			TotalVotes:  poll.TotalVotes,
			TotalWeight: poll.TotalWeight,
		}
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetPollSummary(ctx context.Context, pollID uint64) (entities.PollSummary, error) {
	var out entities.PollSummary
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		out = poll.Summary(uc.now())
		return nil
	})
	return out, err
}

func (uc QueryUseCase) GetPollsByCategory(ctx context.Context, category entities.Category) ([]uint64, error) {
	var ids []uint64
	err := uc.Store.View(ctx, func(state *entities.State) error {
		ids = append([]uint64(nil), state.CategoryIndex[category]...)
		return nil
	})
	return ids, err
}

func (uc QueryUseCase) GetPollsByTag(ctx context.Context, tag string) ([]uint64, error) {
	var ids []uint64
	err := uc.Store.View(ctx, func(state *entities.State) error {
		ids = append([]uint64(nil), state.TagIndex[strings.ToLower(strings.TrimSpace(tag))]...)
		return nil
	})
	return ids, err
}

// GetFilteredPolls returns summaries in id order. Archived polls are hidden
// unless asked for or filtered by status.
func (uc QueryUseCase) GetFilteredPolls(ctx context.Context, filter PollFilter) ([]entities.PollSummary, error) {
	var items []entities.PollSummary
	err := uc.Store.View(ctx, func(state *entities.State) error {
		now := uc.now()
		tag := strings.ToLower(strings.TrimSpace(filter.Tag))
		for _, poll := range state.Polls {
			status := poll.EffectiveStatus(now)
			if filter.Category != "" && poll.Category != filter.Category {
				continue
			}
			if tag != "" && !poll.HasTag(tag) {
				continue
			}
			if filter.Status != "" && status != filter.Status {
				continue
			}
			if filter.Type != "" && poll.Type != filter.Type {
				continue
			}
			if filter.Creator != "" && poll.Creator != strings.TrimSpace(filter.Creator) {
				continue
			}
			if filter.ActiveOnly && status != entities.PollStatusActive {
				continue
			}
			if poll.Archived && !filter.IncludeArchived && filter.Status != entities.PollStatusArchived {
				continue
			}
			items = append(items, poll.Summary(now))
		}
		return nil
	})
	return items, err
}

// GetPollsForFrontend pages newest first.
func (uc QueryUseCase) GetPollsForFrontend(ctx context.Context, offset int, limit int) (PollPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := PollPage{Offset: offset, Limit: limit}
	err := uc.Store.View(ctx, func(state *entities.State) error {
		now := uc.now()
		page.Total = len(state.Polls)
		for idx := len(state.Polls) - 1 - offset; idx >= 0 && len(page.Items) < limit; idx-- {
			page.Items = append(page.Items, state.Polls[idx].Summary(now))
		}
		return nil
	})
	return page, err
}

func (uc QueryUseCase) HasUserVoted(ctx context.Context, pollID uint64, account string) (bool, error) {
	var voted bool
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		voted = poll.HasVoted(strings.TrimSpace(account))
		return nil
	})
	return voted, err
}

func (uc QueryUseCase) IsPollActive(ctx context.Context, pollID uint64) (bool, error) {
	var active bool
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		active = poll.IsActive(uc.now())
		return nil
	})
	return active, err
}

func (uc QueryUseCase) GetActivePollsCount(ctx context.Context) (int, error) {
	var count int
	err := uc.Store.View(ctx, func(state *entities.State) error {
		now := uc.now()
		for _, poll := range state.Polls {
			if poll.IsActive(now) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (uc QueryUseCase) PollCount(ctx context.Context) (int, error) {
	var count int
	err := uc.Store.View(ctx, func(state *entities.State) error {
		count = len(state.Polls)
		return nil
	})
	return count, err
}

// GetRankedChoiceResult runs instant runoff over the stored rankings.
func (uc QueryUseCase) GetRankedChoiceResult(ctx context.Context, pollID uint64) (RankedChoiceResult, error) {
	var out RankedChoiceResult
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		if poll.Type != entities.PollTypeRankedChoice {
			return domainerrors.ErrPollTypeMismatch
		}
		ballots := make([]services.RankedBallot, 0, len(poll.Ballots))
		for voter, ballot := range poll.Ballots {
			ballots = append(ballots, services.RankedBallot{
				Voter:   voter,
				Ranking: append([]int(nil), ballot.Options...),
				Weight:  ballot.Weight,
			})
		}
		runoff := services.InstantRunoff(len(poll.Options), ballots)
		out = RankedChoiceResult{
			PollID:  poll.ID,
			Options: append([]string(nil), poll.Options...),
			Winner:  runoff.Winner,
			Rounds:  runoff.Rounds,
		}
		return nil
	})
	return out, err
}

// GetPollAnalytics reports the leader, its margin over the runner-up and
// each option's share of the counted weight.
func (uc QueryUseCase) GetPollAnalytics(ctx context.Context, pollID uint64) (entities.PollAnalytics, error) {
	var out entities.PollAnalytics
	err := uc.withPoll(ctx, pollID, func(_ *entities.State, poll *entities.Poll) error {
		now := uc.now()
		out = entities.PollAnalytics{
			PollID:        poll.ID,
			Status:        poll.EffectiveStatus(now),
			TotalVotes:    poll.TotalVotes,
			TotalWeight:   poll.TotalWeight,
			LeadingOption: -1,
			Percentages:   make([]float64, len(poll.Options)),
		}
		var counted uint64
		for _, votes := range poll.Votes {
			counted += votes
		}
		order := make([]int, len(poll.Votes))
		for idx := range order {
			order[idx] = idx
		}
		sort.SliceStable(order, func(i, j int) bool {
			return poll.Votes[order[i]] > poll.Votes[order[j]]
		})
		if counted > 0 {
			out.LeadingOption = order[0]
			out.LeadingLabel = poll.Options[order[0]]
			out.Margin = poll.Votes[order[0]]
			if len(order) > 1 {
				out.Margin -= poll.Votes[order[1]]
			}
			for idx, votes := range poll.Votes {
				out.Percentages[idx] = float64(votes) * 100 / float64(counted)
			}
		}
		if poll.MinParticipation > 0 {
			out.Participation = float64(poll.TotalVotes) * 100 / float64(poll.MinParticipation)
		}
		if out.Status == entities.PollStatusActive {
			out.TimeRemaining = poll.EndTime.Sub(now)
		}
		return nil
	})
	return out, err
}
