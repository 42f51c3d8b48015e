package entities

import (
	"math/big"
	"strings"
	"time"
)

const (
	TokenDecimals   = 18
	BasisPointScale = 10000
	ReputationScale = 1000
)

type TimeWeightPolicy struct {
	BaseBps        uint64 `yaml:"base_bps"`
	BonusPerDayBps uint64 `yaml:"bonus_per_day_bps"`
	CapBps         uint64 `yaml:"cap_bps"`
}

type ReputationPolicy struct {
	VotePoints       uint64 `yaml:"vote_points"`
	CreatePoints     uint64 `yaml:"create_points"`
	SuccessfulPoints uint64 `yaml:"successful_points"`
	DecayPerDay      uint64 `yaml:"decay_per_day"`
	MaxScore         uint64 `yaml:"max_score"`
}

func (p ReputationPolicy) PointsFor(action ReputationAction) uint64 {
	switch action {
	case ReputationActionVote:
		return p.VotePoints
	case ReputationActionCreate:
		return p.CreatePoints
	case ReputationActionSuccessful:
		return p.SuccessfulPoints
	default:
		return 0
	}
}

type RewardPolicy struct {
	BaseReward   *big.Int
	PerVoteBonus *big.Int
}

// Policy holds every tunable of a ledger instance.
type Policy struct {
	MinDuration       time.Duration
	MaxDuration       time.Duration
	ArchiveDelay      time.Duration
	DefaultDuration   time.Duration
	WeightUnit        *big.Int
	TimeWeight        TimeWeightPolicy
	Reputation        ReputationPolicy
	Rewards           RewardPolicy
	CreationFee       *big.Int
	Operators         []string
	MaxOptions        int
	MaxTags           int
	MaxBatchSize      int
	GovernanceAssetID string
}

// TokenUnit is one whole token in base units.
func TokenUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
}

// Tokens converts whole tokens to base units.
func Tokens(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), TokenUnit())
}

func DefaultPolicy() Policy {
	return Policy{
		MinDuration:     time.Hour,
		MaxDuration:     30 * 24 * time.Hour,
		ArchiveDelay:    7 * 24 * time.Hour,
		DefaultDuration: 168 * time.Hour,
		WeightUnit:      Tokens(1000),
		TimeWeight: TimeWeightPolicy{
			BaseBps:        10000,
			BonusPerDayBps: 100,
			CapBps:         20000,
		},
		Reputation: ReputationPolicy{
			VotePoints:       10,
			CreatePoints:     20,
			SuccessfulPoints: 50,
			DecayPerDay:      1,
			MaxScore:         10000,
		},
		Rewards: RewardPolicy{
			BaseReward:   Tokens(1),
			PerVoteBonus: new(big.Int).Div(TokenUnit(), big.NewInt(10)),
		},
		CreationFee:       new(big.Int),
		MaxOptions:        32,
		MaxTags:           10,
		MaxBatchSize:      50,
		GovernanceAssetID: "AGORA",
	}
}

// ResolveWeightUnit never returns a zero or negative divisor.
func (p Policy) ResolveWeightUnit() *big.Int {
	if p.WeightUnit == nil || p.WeightUnit.Sign() <= 0 {
		return Tokens(1000)
	}
	return p.WeightUnit
}

func (p Policy) ResolveCreationFee() *big.Int {
	if p.CreationFee == nil || p.CreationFee.Sign() < 0 {
		return new(big.Int)
	}
	return p.CreationFee
}

func (p Policy) IsOperator(account string) bool {
	account = strings.TrimSpace(account)
	if account == "" {
		return false
	}
	for _, operator := range p.Operators {
		if strings.EqualFold(strings.TrimSpace(operator), account) {
			return true
		}
	}
	return false
}
