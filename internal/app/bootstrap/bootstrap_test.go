package bootstrap

import (
	"context"
	"log/slog"
	"testing"
	"time"

	pollingledger "agora/contexts/governance/polling-ledger"
	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/internal/platform/messaging"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":       ":8080",
		"9090":   ":9090",
		":7000":  ":7000",
		" 8081 ": ":8081",
	}
	for input, want := range cases {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestWorkerLoopDrainsOutboxAndSnapshots(t *testing.T) {
	policy := entities.DefaultPolicy()
	module := pollingledger.NewInMemoryModule(nil, policy, nil)
	bus, err := messaging.NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("new bus failed: %v", err)
	}
	module.Relay.Publisher = bus
	module.Payouts.Disabled = true

	_, err = module.Handler.Polls.CreatePoll(context.Background(), commands.CreatePollCommand{
		Caller:   "alice",
		Question: "Keep the loop?",
		Options:  []string{"yes", "no"},
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}

	loop := &workerLoop{
		module:           module,
		pollInterval:     10 * time.Millisecond,
		snapshotInterval: time.Hour,
		sweep:            true,
		snapshot:         true,
		logger:           slog.Default(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, _ := module.Store.ListPendingOutbox(context.Background(), 10)
		_, snapshotted, _ := module.Store.LoadLatestSnapshot(context.Background())
		if len(pending) == 0 && snapshotted {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("worker loop did not drain outbox (pending=%d snapshot=%v)", len(pending), snapshotted)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker loop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker loop did not stop")
	}
}
