package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/adapters/memory"
	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/application/workers"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"

	"github.com/google/go-cmp/cmp"
)

var start = time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type capturingSubscriber struct {
	topic   string
	group   string
	handler func(context.Context, ports.EventEnvelope) error
}

func (s *capturingSubscriber) Subscribe(
	_ context.Context,
	topic string,
	group string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.topic = topic
	s.group = group
	s.handler = handler
	return nil
}

func newLedger(t *testing.T) (*memory.Store, commands.Runtime) {
	t.Helper()
	policy := entities.DefaultPolicy()
	policy.Operators = []string{"operator"}
	store := memory.NewStore(entities.NewState(policy, start))
	store.SetNow(start)
	return store, commands.Runtime{Store: store, Balances: store, Clock: store, IDGen: store, Policy: policy}
}

func createPoll(t *testing.T, runtime commands.Runtime, duration time.Duration) uint64 {
	t.Helper()
	pollID, err := commands.PollUseCase{Runtime: runtime}.CreatePoll(context.Background(), commands.CreatePollCommand{
		Caller:   "alice",
		Question: "Adopt the charter?",
		Options:  []string{"yes", "no"},
		Duration: duration,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	return pollID
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	pollID := createPoll(t, runtime, time.Hour)
	if _, err := (commands.VoteUseCase{Runtime: runtime}).Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	publisher := &recordingPublisher{failOn: "poll.vote_cast"}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 10}
	published, err := relay.RunOnce(ctx)
	if err == nil {
		t.Fatalf("expected publish failure")
	}
	if published != 1 {
		t.Fatalf("expected one row before failure, got %d", published)
	}

	publisher.failOn = ""
	published, err = relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected retry of remaining row, got %d", published)
	}
	if diff := cmp.Diff([]string{"poll.created", "poll.vote_cast"}, publisher.topics); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
	for _, event := range publisher.events {
		if err := event.Validate(); err != nil {
			t.Fatalf("relayed invalid envelope: %v", err)
		}
	}
}

func TestExpirySweeperMaterializesStatus(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	short := createPoll(t, runtime, time.Hour)
	long := createPoll(t, runtime, 48*time.Hour)

	sweeper := workers.ExpirySweeper{Ledger: store, Clock: store, IDGen: store}
	if count, err := sweeper.RunOnce(ctx); err != nil || count != 0 {
		t.Fatalf("expected nothing to expire, got %d %v", count, err)
	}
	store.Advance(2 * time.Hour)
	count, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expired poll, got %d", count)
	}
	err = store.View(ctx, func(state *entities.State) error {
		if state.Polls[short].Status != entities.PollStatusExpired {
			t.Errorf("expected short poll expired, got %s", state.Polls[short].Status)
		}
		if state.Polls[long].Status != entities.PollStatusActive {
			t.Errorf("expected long poll active, got %s", state.Polls[long].Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if count, _ := sweeper.RunOnce(ctx); count != 0 {
		t.Fatalf("expected sweep to be idempotent, got %d", count)
	}
}

func TestOutboxRelayHonoursBatchSize(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	pollID := createPoll(t, runtime, time.Hour)
	votes := commands.VoteUseCase{Runtime: runtime}
	for _, voter := range []string{"bob", "carol"} {
		if _, err := votes.Vote(ctx, commands.VoteCommand{Caller: voter, PollID: pollID}); err != nil {
			t.Fatalf("vote by %s failed: %v", voter, err)
		}
	}

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 2}
	var cycles []int
	for {
		published, err := relay.RunOnce(ctx)
		if err != nil {
			t.Fatalf("relay failed: %v", err)
		}
		if published == 0 {
			break
		}
		cycles = append(cycles, published)
	}
	if diff := cmp.Diff([]int{2, 1}, cycles); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"poll.created", "poll.vote_cast", "poll.vote_cast"}, publisher.topics); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectedVoteLeavesExpiryToSweeper(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	pollID := createPoll(t, runtime, time.Hour)
	store.Advance(2 * time.Hour)

	_, err := (commands.VoteUseCase{Runtime: runtime}).Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID})
	if !errors.Is(err, domainerrors.ErrPollNotActive) {
		t.Fatalf("expected poll not active, got %v", err)
	}

	sweeper := workers.ExpirySweeper{Ledger: store, Clock: store, IDGen: store}
	count, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the sweeper to expire the poll, got %d", count)
	}

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 10}
	if _, err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if diff := cmp.Diff([]string{"poll.created", "poll.status_changed"}, publisher.topics); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
	var data struct {
		Action   string `json:"action"`
		ToStatus string `json:"to_status"`
	}
	if err := publisher.events[1].DecodeData(&data); err != nil {
		t.Fatalf("decode status event: %v", err)
	}
	if data.Action != "expire" || data.ToStatus != string(entities.PollStatusExpired) {
		t.Fatalf("unexpected status event %+v", data)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	pollID := createPoll(t, runtime, time.Hour)
	if _, err := (commands.VoteUseCase{Runtime: runtime}).Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID, Option: 1}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	writer := workers.SnapshotWriter{Ledger: store, Snapshots: store, Clock: store, IDGen: store}
	record, err := writer.RunOnce(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if record.PollCount != 1 || !record.TakenAt.Equal(start) {
		t.Fatalf("unexpected snapshot record: %+v", record)
	}
	latest, ok, err := store.LoadLatestSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("load snapshot failed: ok=%v err=%v", ok, err)
	}
	restored, err := workers.RestoreState(latest)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	poll, ok := restored.Poll(pollID)
	if !ok {
		t.Fatalf("restored state lost poll %d", pollID)
	}
	if diff := cmp.Diff([]uint64{0, 1}, poll.Votes); diff != "" {
		t.Fatalf("restored votes mismatch (-want +got):\n%s", diff)
	}
	if !poll.HasVoted("bob") {
		t.Fatalf("restored state lost ballot")
	}
}

func TestPayoutConsumerTransfersOncePerEvent(t *testing.T) {
	store, runtime := newLedger(t)
	ctx := context.Background()
	rewards := commands.RewardUseCase{Runtime: runtime}
	if _, err := rewards.FundRewardPool(ctx, commands.FundRewardPoolCommand{Caller: "operator", Amount: entities.Tokens(5)}); err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	pollID := createPoll(t, runtime, time.Hour)
	if _, err := (commands.VoteUseCase{Runtime: runtime}).Vote(ctx, commands.VoteCommand{Caller: "bob", PollID: pollID}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	store.Advance(time.Hour)
	if _, err := rewards.DistributeRewards(ctx, commands.DistributeRewardsCommand{Caller: "alice", PollID: pollID}); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	claimed, err := rewards.ClaimRewards(ctx, "bob")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	publisher := &recordingPublisher{}
	if _, err := (workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}).RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	var claimEvent ports.EventEnvelope
	for idx, topic := range publisher.topics {
		if topic == "rewards.claimed" {
			claimEvent = publisher.events[idx]
		}
	}
	if claimEvent.EventID == "" {
		t.Fatalf("rewards.claimed was not relayed; topics=%v", publisher.topics)
	}

	subscriber := &capturingSubscriber{}
	consumer := workers.PayoutConsumer{Subscriber: subscriber, Dedup: store, Gateway: store, Clock: store}
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.topic != "rewards.claimed" || subscriber.group == "" {
		t.Fatalf("unexpected subscription %q/%q", subscriber.topic, subscriber.group)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := subscriber.handler(ctx, claimEvent); err != nil {
			t.Fatalf("handler attempt %d failed: %v", attempt, err)
		}
	}
	payouts := store.Payouts()
	if len(payouts) != 1 {
		t.Fatalf("expected one payout, got %d", len(payouts))
	}
	if payouts[0].Account != "bob" || payouts[0].Amount.Cmp(claimed) != 0 || payouts[0].Reference != claimEvent.EventID {
		t.Fatalf("unexpected payout: %+v", payouts[0])
	}
}

func TestPayoutConsumerDisabled(t *testing.T) {
	subscriber := &capturingSubscriber{}
	consumer := workers.PayoutConsumer{Subscriber: subscriber, Disabled: true}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.handler != nil {
		t.Fatalf("disabled consumer subscribed")
	}
}
