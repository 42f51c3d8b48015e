package services

import (
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
)

func TestApplyReputationDecaysBeforeAdding(t *testing.T) {
	policy := entities.DefaultPolicy().Reputation
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	record := &entities.UserReputation{Account: "alice"}

	ApplyReputation(record, entities.ReputationActionCreate, start, policy)
	if record.Score != 20 || record.PollsCreated != 1 {
		t.Fatalf("unexpected record after create: %+v", record)
	}

	ApplyReputation(record, entities.ReputationActionVote, start.Add(5*24*time.Hour+time.Hour), policy)
	if record.Score != 25 {
		t.Fatalf("expected 20 - 5 + 10 = 25, got %d", record.Score)
	}
	if record.VoteCount != 1 || !record.Active {
		t.Fatalf("unexpected record after vote: %+v", record)
	}
}

func TestApplyReputationFloorsAtZeroAndCaps(t *testing.T) {
	policy := entities.DefaultPolicy().Reputation
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	record := &entities.UserReputation{Account: "bob", Score: 3, LastActivity: start}

	ApplyReputation(record, entities.ReputationActionVote, start.Add(30*24*time.Hour), policy)
	if record.Score != 10 {
		t.Fatalf("expected decay to floor at zero before adding, got %d", record.Score)
	}

	record.Score = policy.MaxScore - 5
	record.LastActivity = start
	ApplyReputation(record, entities.ReputationActionSuccessful, start, policy)
	if record.Score != policy.MaxScore {
		t.Fatalf("expected score capped at %d, got %d", policy.MaxScore, record.Score)
	}
}
