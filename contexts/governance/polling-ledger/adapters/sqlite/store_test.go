package sqliteadapter

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/ports"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSnapshotsReturnNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, found, err := store.LoadLatestSnapshot(ctx); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}
	for i, id := range []string{"snap-a", "snap-b", "snap-c"} {
		err := store.SaveSnapshot(ctx, ports.SnapshotRecord{
			SnapshotID: id,
			TakenAt:    base.Add(time.Duration(i) * time.Minute),
			PollCount:  i,
			Payload:    []byte(`{"polls":[]}`),
		})
		if err != nil {
			t.Fatalf("save snapshot %s: %v", id, err)
		}
	}

	latest, found, err := store.LoadLatestSnapshot(ctx)
	if err != nil || !found {
		t.Fatalf("load latest: found=%v err=%v", found, err)
	}
	if latest.SnapshotID != "snap-c" || latest.PollCount != 2 {
		t.Fatalf("unexpected latest snapshot: %+v", latest)
	}
	if !latest.TakenAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected taken_at: %s", latest.TakenAt)
	}

	removed, err := store.PruneSnapshots(ctx, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned snapshots, got %d", removed)
	}
}

func TestPublishJournalsOncePerEvent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	event := ports.EventEnvelope{
		EventID:       "evt-1",
		EventType:     "poll.created",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceService: "polling-ledger",
		SchemaVersion: 1,
		PartitionKey:  "0",
		Data:          []byte(`{"poll_id":0}`),
	}
	for i := 0; i < 2; i++ {
		if err := store.Publish(ctx, event.EventType, event); err != nil {
			t.Fatalf("publish attempt %d: %v", i, err)
		}
	}
	if err := store.Publish(ctx, "poll.vote_cast", ports.EventEnvelope{EventID: "evt-2", EventType: "poll.vote_cast", PartitionKey: "0"}); err != nil {
		t.Fatalf("publish vote: %v", err)
	}

	created, err := store.ListEvents(ctx, "poll.created", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if diff := cmp.Diff([]string{"evt-1"}, eventIDs(created)); diff != "" {
		t.Fatalf("unexpected created events (-want +got):\n%s", diff)
	}
	all, err := store.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if diff := cmp.Diff([]string{"evt-1", "evt-2"}, eventIDs(all)); diff != "" {
		t.Fatalf("unexpected journal order (-want +got):\n%s", diff)
	}
}

func eventIDs(events []ports.EventEnvelope) []string {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.EventID)
	}
	return ids
}

func TestBalanceBook(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	balance, err := store.BalanceOf(ctx, "alice", "AGORA")
	if err != nil {
		t.Fatalf("balance of unknown holder: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}

	amount, _ := new(big.Int).SetString("10000000000000000000000", 10)
	if err := store.SetBalance(ctx, "alice", "AGORA", amount); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := store.SetBalance(ctx, "alice", "AGORA", new(big.Int).Mul(amount, big.NewInt(2))); err != nil {
		t.Fatalf("overwrite balance: %v", err)
	}
	balance, err = store.BalanceOf(ctx, "alice", "AGORA")
	if err != nil {
		t.Fatalf("balance of alice: %v", err)
	}
	if balance.String() != "20000000000000000000000" {
		t.Fatalf("unexpected balance: %s", balance)
	}
	if err := store.SetBalance(ctx, "bob", "AGORA", big.NewInt(-1)); err == nil {
		t.Fatal("expected negative balance to be rejected")
	}
}
