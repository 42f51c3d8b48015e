package services

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
)

func governanceGate(minWhole int64) *entities.AssetGate {
	return &entities.AssetGate{AssetID: "AGORA", MinBalance: entities.Tokens(minWhole)}
}

func TestComputeWeightStandardIgnoresBalance(t *testing.T) {
	weight, err := ComputeWeight(WeightInput{
		Type:   entities.PollTypeStandard,
		Policy: entities.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("compute weight failed: %v", err)
	}
	if weight != 1 {
		t.Fatalf("expected weight 1, got %d", weight)
	}
}

func TestComputeWeightWeightedScalesByUnit(t *testing.T) {
	weight, err := ComputeWeight(WeightInput{
		Type:    entities.PollTypeWeighted,
		Gate:    governanceGate(1000),
		Balance: entities.Tokens(10000),
		Policy:  entities.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("compute weight failed: %v", err)
	}
	if weight != 10 {
		t.Fatalf("expected weight 10, got %d", weight)
	}
}

func TestComputeWeightMinimumIsOneWhenGateMet(t *testing.T) {
	for _, pollType := range []entities.PollType{entities.PollTypeWeighted, entities.PollTypeQuadratic} {
		weight, err := ComputeWeight(WeightInput{
			Type:    pollType,
			Gate:    governanceGate(1),
			Balance: entities.Tokens(5),
			Policy:  entities.DefaultPolicy(),
		})
		if err != nil {
			t.Fatalf("%s: compute weight failed: %v", pollType, err)
		}
		if weight != 1 {
			t.Fatalf("%s: expected minimum weight 1, got %d", pollType, weight)
		}
	}
}

func TestComputeWeightQuadratic(t *testing.T) {
	weight, err := ComputeWeight(WeightInput{
		Type:    entities.PollTypeQuadratic,
		Gate:    governanceGate(1000),
		Balance: entities.Tokens(99000),
		Policy:  entities.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("compute weight failed: %v", err)
	}
	if weight != 9 {
		t.Fatalf("expected floor(sqrt(99)) = 9, got %d", weight)
	}
}

func TestComputeWeightRejectsBalanceBelowGate(t *testing.T) {
	_, err := ComputeWeight(WeightInput{
		Type:    entities.PollTypeWeighted,
		Gate:    governanceGate(1000),
		Balance: entities.Tokens(999),
		Policy:  entities.DefaultPolicy(),
	})
	if !errors.Is(err, domainerrors.ErrInsufficientTokenBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if domainerrors.KindOf(err) != domainerrors.KindInsufficientResource {
		t.Fatalf("expected insufficient resource kind, got %q", domainerrors.KindOf(err))
	}
}

func TestComputeWeightOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(entities.Tokens(1000), 70)
	_, err := ComputeWeight(WeightInput{
		Type:    entities.PollTypeWeighted,
		Gate:    governanceGate(0),
		Balance: huge,
		Policy:  entities.DefaultPolicy(),
	})
	if !errors.Is(err, domainerrors.ErrWeightOverflow) {
		t.Fatalf("expected weight overflow, got %v", err)
	}
}

func TestComputeWeightTimeWeighted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := entities.DefaultPolicy()
	cases := []struct {
		name  string
		since time.Time
		want  uint64
	}{
		{name: "fresh holder", since: now, want: 20},
		{name: "fifty days", since: now.Add(-50 * 24 * time.Hour), want: 30},
		{name: "capped", since: now.Add(-400 * 24 * time.Hour), want: 40},
	}
	for _, tc := range cases {
		weight, err := ComputeWeight(WeightInput{
			Type:         entities.PollTypeTimeWeighted,
			Gate:         governanceGate(1000),
			Balance:      entities.Tokens(20000),
			HoldingSince: tc.since,
			Now:          now,
			Policy:       policy,
		})
		if err != nil {
			t.Fatalf("%s: compute weight failed: %v", tc.name, err)
		}
		if weight != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, weight)
		}
	}
}

func TestComputeWeightReputationBased(t *testing.T) {
	policy := entities.DefaultPolicy()
	weight, err := ComputeWeight(WeightInput{
		Type:            entities.PollTypeReputationBased,
		ReputationScore: 2500,
		Policy:          policy,
	})
	if err != nil {
		t.Fatalf("compute weight failed: %v", err)
	}
	if weight != 3 {
		t.Fatalf("expected (1000+2500)/1000 = 3, got %d", weight)
	}

	capped, err := ComputeWeight(WeightInput{
		Type:            entities.PollTypeReputationBased,
		ReputationScore: 50000,
		Policy:          policy,
	})
	if err != nil {
		t.Fatalf("compute capped weight failed: %v", err)
	}
	if capped != 11 {
		t.Fatalf("expected score capped at max, got weight %d", capped)
	}
}

func TestISqrt(t *testing.T) {
	for n, want := range map[int64]int64{0: 0, 1: 1, 3: 1, 4: 2, 15: 3, 16: 4, 1000000: 1000, 999999: 999} {
		got := ISqrt(big.NewInt(n))
		if got.Int64() != want {
			t.Fatalf("isqrt(%d): expected %d, got %s", n, want, got)
		}
	}
}
