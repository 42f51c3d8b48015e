package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/ports"
	eventsv1 "agora/contracts/gen/events/v1"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEvent(id string) ports.EventEnvelope {
	return ports.EventEnvelope{
		EventID:       id,
		EventType:     "rewards.claimed",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceService: "polling-ledger",
		SchemaVersion: eventsv1.SchemaVersion,
		PartitionKey:  "alice",
		Data:          []byte(`{"account":"alice","amount":"1"}`),
	}
}

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	bus, err := NewKafka([]string{"localhost:9092"}, nil)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan string, 4)
	for _, group := range []string{"payout-cg", "audit-cg"} {
		group := group
		err := bus.Subscribe(ctx, "rewards.claimed", group, func(_ context.Context, event ports.EventEnvelope) error {
			received <- group + ":" + event.EventID
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe %s: %v", group, err)
		}
	}

	if err := bus.Publish(ctx, "rewards.claimed", testEvent("evt-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case value := <-received:
			got[value] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery, got %v", got)
		}
	}
	if !got["payout-cg:evt-1"] || !got["audit-cg:evt-1"] {
		t.Fatalf("unexpected deliveries: %v", got)
	}

	cancel()
	bus.Wait()
}

func TestHandlerErrorDoesNotStopSubscription(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		bus.Wait()
	}()

	calls := make(chan string, 2)
	err := bus.Subscribe(ctx, "rewards.claimed", "payout-cg", func(_ context.Context, event ports.EventEnvelope) error {
		calls <- event.EventID
		if event.EventID == "evt-1" {
			return errors.New("transfer failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for _, id := range []string{"evt-1", "evt-2"} {
		if err := bus.Publish(ctx, "rewards.claimed", testEvent(id)); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	for _, want := range []string{"evt-1", "evt-2"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPublishRejectsInvalidEnvelope(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	event := testEvent("")
	if err := bus.Publish(context.Background(), "rewards.claimed", event); !errors.Is(err, eventsv1.ErrInvalidEnvelope) {
		t.Fatalf("expected invalid envelope error, got %v", err)
	}
}

func TestConsumerGroupMembersShareDeliveries(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		bus.Wait()
	}()

	received := make(chan string, 8)
	for _, member := range []string{"api-1", "api-2"} {
		err := bus.Subscribe(ctx, "rewards.claimed", "payout-cg", func(_ context.Context, event ports.EventEnvelope) error {
			received <- event.EventID
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe %s: %v", member, err)
		}
	}

	ids := []string{"evt-1", "evt-2", "evt-3", "evt-4"}
	for _, id := range ids {
		if err := bus.Publish(ctx, "rewards.claimed", testEvent(id)); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	seen := map[string]int{}
	for range ids {
		select {
		case value := <-received:
			seen[value]++
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery, got %v", seen)
		}
	}
	select {
	case extra := <-received:
		t.Fatalf("group delivered an event twice: %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("expected %s once per group, got %v", id, seen)
		}
	}
}

func TestPublishWaitsForFullQueue(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	err := bus.Subscribe(ctx, "rewards.claimed", "payout-cg", func(context.Context, ports.EventEnvelope) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "rewards.claimed", testEvent("evt-0")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-started
	for i := 0; i < groupQueueSize; i++ {
		if err := bus.Publish(ctx, "rewards.claimed", testEvent("evt-q")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	if err := bus.Publish(short, "rewards.claimed", testEvent("evt-late")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected publish to wait on a full queue, got %v", err)
	}

	close(release)
	cancel()
	bus.Wait()
	if err := bus.Publish(context.Background(), "rewards.claimed", testEvent("evt-after")); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}
