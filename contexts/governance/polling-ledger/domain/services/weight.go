package services

import (
	"math/big"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
)

// WeightInput is everything the engine needs for one ballot. Balance is only
// read when Gate names an asset.
type WeightInput struct {
	Type            entities.PollType
	Gate            *entities.AssetGate
	Balance         *big.Int
	HoldingSince    time.Time
	ReputationScore uint64
	Now             time.Time
	Policy          entities.Policy
}

type weightStrategy func(in WeightInput, units *big.Int) *big.Int

var weightStrategies = map[entities.PollType]weightStrategy{
	entities.PollTypeStandard:        unitWeight,
	entities.PollTypeApproval:        unitWeight,
	entities.PollTypeRankedChoice:    unitWeight,
	entities.PollTypeWeighted:        balanceWeight,
	entities.PollTypeLiquidDemocracy: balanceWeight,
	entities.PollTypeQuadratic:       quadraticWeight,
	entities.PollTypeTimeWeighted:    timeWeight,
	entities.PollTypeReputationBased: reputationWeight,
}

// ComputeWeight maps a ballot to its weight. It never returns 0 on success.
func ComputeWeight(in WeightInput) (uint64, error) {
	strategy, ok := weightStrategies[in.Type]
	if !ok {
		return 0, domainerrors.ErrInvalidPollType
	}
	var units *big.Int
	if gated(in.Gate) {
		balance := in.Balance
		if balance == nil {
			balance = new(big.Int)
		}
		if in.Gate.MinBalance != nil && balance.Cmp(in.Gate.MinBalance) < 0 {
			return 0, domainerrors.ErrInsufficientTokenBalance
		}
		units = new(big.Int).Quo(balance, in.Policy.ResolveWeightUnit())
	}
	weight := strategy(in, units)
	if weight.Sign() <= 0 {
		return 1, nil
	}
	if !weight.IsUint64() {
		return 0, domainerrors.ErrWeightOverflow
	}
	return weight.Uint64(), nil
}

// HoldingMultiplierBps is min(base + days*bonus, cap) in basis points.
func HoldingMultiplierBps(since time.Time, now time.Time, policy entities.TimeWeightPolicy) uint64 {
	base := policy.BaseBps
	if base == 0 {
		base = entities.BasisPointScale
	}
	var days uint64
	if !since.IsZero() && now.After(since) {
		days = uint64(now.Sub(since) / (24 * time.Hour))
	}
	multiplier := base + days*policy.BonusPerDayBps
	if policy.CapBps > 0 && multiplier > policy.CapBps {
		multiplier = policy.CapBps
	}
	return multiplier
}

// ISqrt is floor(sqrt(n)) by Newton's method on integers.
func ISqrt(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return new(big.Int)
	}
	x := new(big.Int).Set(n)
	y := new(big.Int).Rsh(new(big.Int).Add(x, big.NewInt(1)), 1)
	for y.Cmp(x) < 0 {
		x.Set(y)
		y.Add(x, new(big.Int).Quo(n, x))
		y.Rsh(y, 1)
	}
	return x
}

func gated(gate *entities.AssetGate) bool {
	return gate != nil && gate.AssetID != ""
}

func unitWeight(_ WeightInput, _ *big.Int) *big.Int {
	return big.NewInt(1)
}

func balanceWeight(_ WeightInput, units *big.Int) *big.Int {
	if units == nil || units.Sign() <= 0 {
		return big.NewInt(1)
	}
	return units
}

func quadraticWeight(in WeightInput, units *big.Int) *big.Int {
	return ISqrt(balanceWeight(in, units))
}

func timeWeight(in WeightInput, units *big.Int) *big.Int {
	multiplier := HoldingMultiplierBps(in.HoldingSince, in.Now, in.Policy.TimeWeight)
	weight := new(big.Int).Mul(balanceWeight(in, units), new(big.Int).SetUint64(multiplier))
	return weight.Quo(weight, big.NewInt(entities.BasisPointScale))
}

func reputationWeight(in WeightInput, units *big.Int) *big.Int {
	score := in.ReputationScore
	if limit := in.Policy.Reputation.MaxScore; limit > 0 && score > limit {
		score = limit
	}
	weight := new(big.Int).Mul(balanceWeight(in, units), new(big.Int).SetUint64(entities.ReputationScale+score))
	return weight.Quo(weight, big.NewInt(entities.ReputationScale))
}
