package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/adapters/memory"
	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"

	"github.com/google/go-cmp/cmp"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	polls      commands.PollUseCase
	votes      commands.VoteUseCase
	lifecycle  commands.LifecycleUseCase
	delegation commands.DelegationUseCase
	templates  commands.TemplateUseCase
	rewards    commands.RewardUseCase
	admin      commands.AdminUseCase
	queries    queries.QueryUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	policy := entities.DefaultPolicy()
	policy.Operators = []string{"operator"}
	store := memory.NewStore(entities.NewState(policy, start))
	store.SetNow(start)
	runtime := commands.Runtime{
		Store:    store,
		Balances: store,
		Clock:    store,
		IDGen:    store,
		Policy:   policy,
	}
	return fixture{
		store:      store,
		polls:      commands.PollUseCase{Runtime: runtime},
		votes:      commands.VoteUseCase{Runtime: runtime},
		lifecycle:  commands.LifecycleUseCase{Runtime: runtime},
		delegation: commands.DelegationUseCase{Runtime: runtime},
		templates:  commands.TemplateUseCase{Runtime: runtime},
		rewards:    commands.RewardUseCase{Runtime: runtime},
		admin:      commands.AdminUseCase{Runtime: runtime},
		queries:    queries.QueryUseCase{Store: store, Clock: store, Policy: policy},
	}
}

func (f fixture) createPoll(t *testing.T, cmd commands.CreatePollCommand) uint64 {
	t.Helper()
	if cmd.Caller == "" {
		cmd.Caller = "alice"
	}
	if cmd.Question == "" {
		cmd.Question = "Fund the public goods round?"
	}
	if cmd.Options == nil {
		cmd.Options = []string{"yes", "no"}
	}
	if cmd.Duration == 0 {
		cmd.Duration = 24 * time.Hour
	}
	pollID, err := f.polls.CreatePoll(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	return pollID
}

func (f fixture) results(t *testing.T, pollID uint64) []uint64 {
	t.Helper()
	results, err := f.queries.GetPollResults(context.Background(), pollID)
	if err != nil {
		t.Fatalf("poll results failed: %v", err)
	}
	return results.Votes
}

func TestStandardVoteCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{})

	result, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID, Option: 0})
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if result.Weight != 1 {
		t.Fatalf("expected weight 1, got %d", result.Weight)
	}
	if diff := cmp.Diff([]uint64{1, 0}, f.results(t, pollID)); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}

	_, err = f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID, Option: 1})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 0}, f.results(t, pollID)); diff != "" {
		t.Fatalf("rejected vote changed tallies (-want +got):\n%s", diff)
	}
}

func TestCreatePollValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		cmd  commands.CreatePollCommand
		want error
	}{
		{"empty question", commands.CreatePollCommand{Caller: "alice", Question: "  ", Options: []string{"a", "b"}, Duration: time.Hour}, domainerrors.ErrEmptyQuestion},
		{"single option", commands.CreatePollCommand{Caller: "alice", Question: "q", Options: []string{"a", " "}, Duration: time.Hour}, domainerrors.ErrInsufficientOptions},
		{"too short", commands.CreatePollCommand{Caller: "alice", Question: "q", Options: []string{"a", "b"}, Duration: time.Minute}, domainerrors.ErrInvalidDuration},
		{"too long", commands.CreatePollCommand{Caller: "alice", Question: "q", Options: []string{"a", "b"}, Duration: 31 * 24 * time.Hour}, domainerrors.ErrInvalidDuration},
		{"weighted without asset", commands.CreatePollCommand{Caller: "alice", Question: "q", Options: []string{"a", "b"}, Duration: time.Hour, Type: entities.PollTypeWeighted}, domainerrors.ErrInvalidAddress},
		{"unknown type", commands.CreatePollCommand{Caller: "alice", Question: "q", Options: []string{"a", "b"}, Duration: time.Hour, Type: "lottery"}, domainerrors.ErrInvalidPollType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.polls.CreatePoll(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	count, err := f.queries.PollCount(ctx)
	if err != nil {
		t.Fatalf("poll count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no polls after rejected creates, got %d", count)
	}
}

func TestWeightedVoteUsesBalanceUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{
		Type:  entities.PollTypeWeighted,
		Asset: &entities.AssetGate{AssetID: "AGORA", MinBalance: entities.Tokens(1000)},
	})
	f.store.SetBalance("whale", "AGORA", entities.Tokens(10000))
	f.store.SetBalance("minnow", "AGORA", entities.Tokens(500))

	result, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "whale", PollID: pollID, Option: 1})
	if err != nil {
		t.Fatalf("weighted vote failed: %v", err)
	}
	if result.Weight != 10 {
		t.Fatalf("expected weight 10, got %d", result.Weight)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "minnow", PollID: pollID, Option: 0}); !errors.Is(err, domainerrors.ErrInsufficientTokenBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if diff := cmp.Diff([]uint64{0, 10}, f.results(t, pollID)); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}
}

func TestVoteAfterEndTimeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{Duration: time.Hour})

	f.store.Advance(time.Hour)
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); !errors.Is(err, domainerrors.ErrPollNotActive) {
		t.Fatalf("expected poll not active, got %v", err)
	}
	active, err := f.queries.IsPollActive(ctx, pollID)
	if err != nil {
		t.Fatalf("is active failed: %v", err)
	}
	if active {
		t.Fatalf("expected poll to report inactive at end time")
	}
}

func TestDelegateVoteConsumesDelegatorSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{})

	if err := f.delegation.SetDelegate(ctx, commands.SetDelegateCommand{Caller: "bob", Delegate: "carol"}); err != nil {
		t.Fatalf("set delegate failed: %v", err)
	}
	if _, err := f.votes.VoteAsDelegate(ctx, commands.DelegateVoteCommand{Caller: "mallory", PollID: pollID, Option: 0, Delegator: "bob"}); !errors.Is(err, domainerrors.ErrNotDelegate) {
		t.Fatalf("expected not delegate, got %v", err)
	}
	result, err := f.votes.VoteAsDelegate(ctx, commands.DelegateVoteCommand{Caller: "carol", PollID: pollID, Option: 0, Delegator: "bob"})
	if err != nil {
		t.Fatalf("delegate vote failed: %v", err)
	}
	if result.Voter != "bob" || result.CastBy != "carol" {
		t.Fatalf("unexpected ballot attribution: %+v", result)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID, Option: 1}); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected delegator slot consumed, got %v", err)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "carol", PollID: pollID, Option: 1}); err != nil {
		t.Fatalf("delegate own vote failed: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 1}, f.results(t, pollID)); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}

	info, ok, err := f.queries.GetDelegationInfo(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("delegation info failed: ok=%v err=%v", ok, err)
	}
	if info.TotalDelegatedWeight != 1 {
		t.Fatalf("expected delegated weight 1, got %d", info.TotalDelegatedWeight)
	}
}

func TestDelegationRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.delegation.SetDelegate(ctx, commands.SetDelegateCommand{Caller: "bob", Delegate: "bob"}); !errors.Is(err, domainerrors.ErrCannotDelegateToSelf) {
		t.Fatalf("expected self delegation rejected, got %v", err)
	}
	if err := f.delegation.RemoveDelegate(ctx, "bob"); !errors.Is(err, domainerrors.ErrNoDelegateSet) {
		t.Fatalf("expected no delegate set, got %v", err)
	}
	if err := f.delegation.SetDelegate(ctx, commands.SetDelegateCommand{Caller: "bob", Delegate: "carol"}); err != nil {
		t.Fatalf("set delegate failed: %v", err)
	}
	if err := f.delegation.SetDelegate(ctx, commands.SetDelegateCommand{Caller: "bob", Delegate: "dave"}); err != nil {
		t.Fatalf("replace delegate failed: %v", err)
	}
	carols, _ := f.queries.GetDelegators(ctx, "carol")
	daves, _ := f.queries.GetDelegators(ctx, "dave")
	if len(carols) != 0 || len(daves) != 1 {
		t.Fatalf("reverse index not updated: carol=%v dave=%v", carols, daves)
	}
	if err := f.delegation.RemoveDelegate(ctx, "bob"); err != nil {
		t.Fatalf("remove delegate failed: %v", err)
	}
	if delegate, _ := f.queries.GetDelegate(ctx, "bob"); delegate != "" {
		t.Fatalf("expected no delegate after removal, got %q", delegate)
	}
}

func TestLiquidVoteCarriesDelegators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{
		Type:  entities.PollTypeLiquidDemocracy,
		Asset: &entities.AssetGate{AssetID: "AGORA", MinBalance: new(big.Int)},
	})
	f.store.SetBalance("carol", "AGORA", entities.Tokens(3000))
	f.store.SetBalance("bob", "AGORA", entities.Tokens(2000))
	f.store.SetBalance("dave", "AGORA", entities.Tokens(1000))
	for _, delegator := range []string{"bob", "dave"} {
		if err := f.delegation.SetDelegate(ctx, commands.SetDelegateCommand{Caller: delegator, Delegate: "carol"}); err != nil {
			t.Fatalf("set delegate failed: %v", err)
		}
	}
	result, err := f.votes.VoteLiquidDemocracy(ctx, commands.VoteCommand{Caller: "carol", PollID: pollID, Option: 0})
	if err != nil {
		t.Fatalf("liquid vote failed: %v", err)
	}
	if result.TotalWeight != 6 || len(result.Delegated) != 2 {
		t.Fatalf("unexpected liquid result: %+v", result)
	}
	if diff := cmp.Diff([]uint64{6, 0}, f.results(t, pollID)); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchVoteIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createPoll(t, commands.CreatePollCommand{})
	second := f.createPoll(t, commands.CreatePollCommand{})

	_, err := f.votes.BatchVote(ctx, commands.BatchVoteCommand{Caller: "bob", PollIDs: []uint64{first, second}, Options: []int{0, 5}})
	if !errors.Is(err, domainerrors.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	if diff := cmp.Diff([]uint64{0, 0}, f.results(t, first)); diff != "" {
		t.Fatalf("failed batch wrote a ballot (-want +got):\n%s", diff)
	}
	if _, err := f.votes.BatchVote(ctx, commands.BatchVoteCommand{Caller: "bob", PollIDs: []uint64{first, first}, Options: []int{0, 1}}); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected duplicate poll in batch rejected, got %v", err)
	}
	if _, err := f.votes.BatchVote(ctx, commands.BatchVoteCommand{Caller: "bob", PollIDs: []uint64{first}, Options: []int{0, 1}}); !errors.Is(err, domainerrors.ErrMismatchedLengths) {
		t.Fatalf("expected mismatched lengths, got %v", err)
	}

	results, err := f.votes.BatchVote(ctx, commands.BatchVoteCommand{Caller: "bob", PollIDs: []uint64{first, second}, Options: []int{0, 1}})
	if err != nil {
		t.Fatalf("batch vote failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two ballots, got %d", len(results))
	}
	if diff := cmp.Diff([]uint64{0, 1}, f.results(t, second)); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}
}

func TestClosePollRequiresParticipation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{MinParticipation: 2})
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	if err := f.lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: "bob", PollID: pollID}); !errors.Is(err, domainerrors.ErrNotPollCreator) {
		t.Fatalf("expected not creator, got %v", err)
	}
	if err := f.lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: "alice", PollID: pollID}); !errors.Is(err, domainerrors.ErrMinParticipationNotMet) {
		t.Fatalf("expected participation gate, got %v", err)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "carol", PollID: pollID}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if err := f.lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: "alice", PollID: pollID}); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	poll, err := f.queries.GetPoll(ctx, pollID)
	if err != nil {
		t.Fatalf("get poll failed: %v", err)
	}
	if poll.Status != entities.PollStatusClosed || poll.ClosedAt == nil {
		t.Fatalf("expected closed poll, got status %s", poll.Status)
	}
}

func TestArchiveWaitsForDelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{Duration: time.Hour})
	action := commands.PollActionCommand{Caller: "alice", PollID: pollID}

	if err := f.lifecycle.ArchivePoll(ctx, action); !errors.Is(err, domainerrors.ErrInvalidStatusTransition) {
		t.Fatalf("expected active poll not archivable, got %v", err)
	}
	if err := f.lifecycle.ClosePoll(ctx, action); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	f.store.Advance(time.Hour + 6*24*time.Hour)
	if err := f.lifecycle.ArchivePoll(ctx, action); !errors.Is(err, domainerrors.ErrPollTooRecentToArchive) {
		t.Fatalf("expected archive delay gate, got %v", err)
	}
	f.store.Advance(24 * time.Hour)
	if err := f.lifecycle.ArchivePoll(ctx, action); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if err := f.lifecycle.ArchivePoll(ctx, action); !errors.Is(err, domainerrors.ErrPollArchived) {
		t.Fatalf("expected already archived, got %v", err)
	}
}

func TestEmergencyCloseAndExtend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{Duration: time.Hour})

	endTime, err := f.lifecycle.ExtendPoll(ctx, commands.ExtendPollCommand{Caller: "alice", PollID: pollID, Extra: 2 * time.Hour})
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if !endTime.Equal(start.Add(3 * time.Hour)) {
		t.Fatalf("unexpected end time %s", endTime)
	}
	if _, err := f.lifecycle.ExtendPoll(ctx, commands.ExtendPollCommand{Caller: "alice", PollID: pollID, Extra: 31 * 24 * time.Hour}); !errors.Is(err, domainerrors.ErrInvalidDuration) {
		t.Fatalf("expected extension beyond max rejected, got %v", err)
	}
	if err := f.lifecycle.EmergencyClosePoll(ctx, commands.PollActionCommand{Caller: "alice", PollID: pollID}); !errors.Is(err, domainerrors.ErrNotOperator) {
		t.Fatalf("expected not operator, got %v", err)
	}
	if err := f.lifecycle.EmergencyClosePoll(ctx, commands.PollActionCommand{Caller: "Operator", PollID: pollID}); err != nil {
		t.Fatalf("emergency close failed: %v", err)
	}
	poll, _ := f.queries.GetPoll(ctx, pollID)
	if poll.Status != entities.PollStatusCancelled {
		t.Fatalf("expected cancelled, got %s", poll.Status)
	}
}

func TestRewardsDistributeAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.rewards.FundRewardPool(ctx, commands.FundRewardPoolCommand{Caller: "alice", Amount: entities.Tokens(10)}); !errors.Is(err, domainerrors.ErrNotOperator) {
		t.Fatalf("expected fund restricted to operators, got %v", err)
	}
	if _, err := f.rewards.FundRewardPool(ctx, commands.FundRewardPoolCommand{Caller: "operator", Amount: entities.Tokens(10)}); err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	pollID := f.createPoll(t, commands.CreatePollCommand{})
	for _, voter := range []string{"bob", "carol"} {
		if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: voter, PollID: pollID}); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	if _, err := f.rewards.DistributeRewards(ctx, commands.DistributeRewardsCommand{Caller: "alice", PollID: pollID}); !errors.Is(err, domainerrors.ErrPollStillActive) {
		t.Fatalf("expected active poll rejected, got %v", err)
	}
	if err := f.lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: "alice", PollID: pollID}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	record, err := f.rewards.DistributeRewards(ctx, commands.DistributeRewardsCommand{Caller: "alice", PollID: pollID})
	if err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	tenth := new(big.Int).Div(entities.TokenUnit(), big.NewInt(10))
	wantAmount := new(big.Int).Add(entities.Tokens(1), new(big.Int).Mul(tenth, big.NewInt(2)))
	if record.Amount.Cmp(wantAmount) != 0 {
		t.Fatalf("expected reward %s, got %s", wantAmount, record.Amount)
	}
	if record.Undistributed.Sign() != 0 {
		t.Fatalf("expected no dust, got %s", record.Undistributed)
	}
	if _, err := f.rewards.DistributeRewards(ctx, commands.DistributeRewardsCommand{Caller: "alice", PollID: pollID}); !errors.Is(err, domainerrors.ErrRewardsAlreadyDistributed) {
		t.Fatalf("expected second distribution rejected, got %v", err)
	}

	creatorRewards, _ := f.queries.GetUserRewards(ctx, "alice")
	wantCreator := new(big.Int).Div(new(big.Int).Mul(wantAmount, big.NewInt(30)), big.NewInt(100))
	if creatorRewards.Pending.Cmp(wantCreator) != 0 {
		t.Fatalf("expected creator pending %s, got %s", wantCreator, creatorRewards.Pending)
	}
	claimed, err := f.rewards.ClaimRewards(ctx, "bob")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	wantVoter := new(big.Int).Div(new(big.Int).Sub(wantAmount, wantCreator), big.NewInt(2))
	if claimed.Cmp(wantVoter) != 0 {
		t.Fatalf("expected voter claim %s, got %s", wantVoter, claimed)
	}
	if _, err := f.rewards.ClaimRewards(ctx, "bob"); !errors.Is(err, domainerrors.ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim, got %v", err)
	}
	pool, _ := f.queries.GetRewardPool(ctx)
	wantBalance := new(big.Int).Sub(entities.Tokens(10), wantAmount)
	if pool.Balance.Cmp(wantBalance) != 0 {
		t.Fatalf("expected pool balance %s, got %s", wantBalance, pool.Balance)
	}
}

func TestConfigureRewardsValidatesSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.rewards.ConfigureRewards(ctx, commands.ConfigureRewardsCommand{Caller: "operator", CreatorPercent: 60, VoterPercent: 50})
	if !errors.Is(err, domainerrors.ErrInvalidRewardSplit) {
		t.Fatalf("expected invalid split, got %v", err)
	}
	if err := f.rewards.ConfigureRewards(ctx, commands.ConfigureRewardsCommand{Caller: "operator", CreatorPercent: 50, VoterPercent: 50}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
}

func TestTemplatesSeedPolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	templateID, err := f.templates.CreatePollTemplate(ctx, commands.CreateTemplateCommand{
		Caller:           "operator",
		Name:             "Quarterly budget",
		Type:             entities.PollTypeStandard,
		Category:         entities.CategoryGeneral,
		Duration:         48 * time.Hour,
		MinParticipation: 3,
		DefaultTags:      []string{"Budget", "budget", "q3"},
	})
	if err != nil {
		t.Fatalf("create template failed: %v", err)
	}
	pollID, err := f.polls.CreatePollFromTemplate(ctx, commands.CreateFromTemplateCommand{
		Caller:     "alice",
		TemplateID: templateID,
		Question:   "Approve the Q3 budget?",
		Options:    []string{"approve", "reject"},
	})
	if err != nil {
		t.Fatalf("create from template failed: %v", err)
	}
	poll, _ := f.queries.GetPoll(ctx, pollID)
	if diff := cmp.Diff([]string{"budget", "q3"}, poll.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if poll.MinParticipation != 3 || !poll.EndTime.Equal(start.Add(48*time.Hour)) {
		t.Fatalf("template settings not applied: %+v", poll)
	}

	if _, err := f.templates.ToggleTemplate(ctx, commands.ToggleTemplateCommand{Caller: "operator", TemplateID: templateID}); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if _, err := f.polls.CreatePollFromTemplate(ctx, commands.CreateFromTemplateCommand{
		Caller:     "alice",
		TemplateID: templateID,
		Question:   "Again?",
		Options:    []string{"a", "b"},
	}); !errors.Is(err, domainerrors.ErrTemplateNotActive) {
		t.Fatalf("expected inactive template rejected, got %v", err)
	}
}

func TestPauseBlocksWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{})
	if err := f.admin.SetPaused(ctx, "alice", true); !errors.Is(err, domainerrors.ErrNotOperator) {
		t.Fatalf("expected not operator, got %v", err)
	}
	if err := f.admin.SetPaused(ctx, "operator", true); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); !errors.Is(err, domainerrors.ErrPlatformPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := f.admin.SetPaused(ctx, "operator", false); err != nil {
		t.Fatalf("unpause failed: %v", err)
	}
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); err != nil {
		t.Fatalf("vote after unpause failed: %v", err)
	}
}

func TestCommandsWriteOutbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{})
	if _, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	_, _ = f.votes.Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID})

	pending, err := f.store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	types := make([]string, 0, len(pending))
	for _, message := range pending {
		types = append(types, message.EventType)
		if message.PartitionKey != "0" {
			t.Fatalf("expected poll partition key, got %q", message.PartitionKey)
		}
	}
	if diff := cmp.Diff([]string{"poll.created", "poll.vote_cast"}, types); diff != "" {
		t.Fatalf("outbox mismatch (-want +got):\n%s", diff)
	}
}

func TestLifecycleAnnouncesLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{Duration: time.Hour})
	f.store.Advance(2 * time.Hour)

	if _, err := f.lifecycle.ExtendPoll(ctx, commands.ExtendPollCommand{Caller: "alice", PollID: pollID, Extra: time.Hour}); !errors.Is(err, domainerrors.ErrPollNotActive) {
		t.Fatalf("expected poll not active, got %v", err)
	}
	stored, err := f.queries.GetPoll(ctx, pollID)
	if err != nil {
		t.Fatalf("get poll failed: %v", err)
	}
	if stored.Status != entities.PollStatusActive {
		t.Fatalf("rejected extend wrote status %s", stored.Status)
	}

	if err := f.lifecycle.ClosePoll(ctx, commands.PollActionCommand{Caller: "alice", PollID: pollID}); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	pending, err := f.store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	actions := make([]string, 0, len(pending))
	for _, message := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			t.Fatalf("decode outbox row: %v", err)
		}
		var data struct {
			Action string `json:"action"`
		}
		_ = envelope.DecodeData(&data)
		actions = append(actions, message.EventType+":"+data.Action)
	}
	want := []string{"poll.created:", "poll.status_changed:expire", "poll.status_changed:close"}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Fatalf("outbox mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentVotesCountEachVoterOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pollID := f.createPoll(t, commands.CreatePollCommand{})

	const voters = 50
	const attempts = 4
	var accepted, duplicates atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < voters*attempts; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			voter := fmt.Sprintf("voter-%d", i%voters)
			_, err := f.votes.Vote(ctx, commands.VoteCommand{Caller: voter, PollID: pollID, Option: i % 2})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domainerrors.ErrAlreadyVoted):
				duplicates.Add(1)
			default:
				t.Errorf("vote by %s failed: %v", voter, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			poll, err := f.queries.GetPoll(ctx, pollID)
			if err != nil {
				t.Errorf("get poll failed: %v", err)
				return
			}
			if poll.TotalVotes != uint64(len(poll.Ballots)) {
				t.Errorf("torn read: total %d with %d ballots", poll.TotalVotes, len(poll.Ballots))
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != voters || duplicates.Load() != voters*(attempts-1) {
		t.Fatalf("expected %d accepted and %d duplicates, got %d and %d",
			voters, voters*(attempts-1), accepted.Load(), duplicates.Load())
	}
	poll, err := f.queries.GetPoll(ctx, pollID)
	if err != nil {
		t.Fatalf("get poll failed: %v", err)
	}
	var weight uint64
	for _, ballot := range poll.Ballots {
		weight += ballot.Weight
	}
	if poll.TotalVotes != voters || len(poll.Ballots) != voters {
		t.Fatalf("expected %d ballots, got total=%d ballots=%d", voters, poll.TotalVotes, len(poll.Ballots))
	}
	if poll.TotalWeight != weight {
		t.Fatalf("total weight %d does not match ballot sum %d", poll.TotalWeight, weight)
	}
	var tallied uint64
	for _, votes := range poll.Votes {
		tallied += votes
	}
	if tallied != weight {
		t.Fatalf("option tallies %v do not sum to %d", poll.Votes, weight)
	}
}
