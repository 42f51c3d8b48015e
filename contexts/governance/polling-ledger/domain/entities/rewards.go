package entities

import (
	"math/big"
	"time"
)

// RewardPool is the shared balance in base units. Percentages always sum to 100.
type RewardPool struct {
	Balance          *big.Int `json:"balance"`
	CreatorPercent   uint64   `json:"creator_percent"`
	VoterPercent     uint64   `json:"voter_percent"`
	TotalFunded      *big.Int `json:"total_funded"`
	TotalDistributed *big.Int `json:"total_distributed"`
	TotalClaimed     *big.Int `json:"total_claimed"`
}

func NewRewardPool() RewardPool {
	return RewardPool{
		Balance:          new(big.Int),
		CreatorPercent:   30,
		VoterPercent:     70,
		TotalFunded:      new(big.Int),
		TotalDistributed: new(big.Int),
		TotalClaimed:     new(big.Int),
	}
}

func (p RewardPool) Clone() RewardPool {
	return RewardPool{
		Balance:          cloneInt(p.Balance),
		CreatorPercent:   p.CreatorPercent,
		VoterPercent:     p.VoterPercent,
		TotalFunded:      cloneInt(p.TotalFunded),
		TotalDistributed: cloneInt(p.TotalDistributed),
		TotalClaimed:     cloneInt(p.TotalClaimed),
	}
}

type UserRewards struct {
	Account       string     `json:"account"`
	Pending       *big.Int   `json:"pending"`
	Claimed       *big.Int   `json:"claimed"`
	LastClaimedAt *time.Time `json:"last_claimed_at,omitempty"`
}

func (r *UserRewards) Clone() UserRewards {
	out := UserRewards{
		Account: r.Account,
		Pending: cloneInt(r.Pending),
		Claimed: cloneInt(r.Claimed),
	}
	if r.LastClaimedAt != nil {
		at := *r.LastClaimedAt
		out.LastClaimedAt = &at
	}
	return out
}

// PollReward is written once per poll by DistributeRewards.
type PollReward struct {
	PollID        uint64    `json:"poll_id"`
	Amount        *big.Int  `json:"amount"`
	CreatorShare  *big.Int  `json:"creator_share"`
	VoterShare    *big.Int  `json:"voter_share"`
	Undistributed *big.Int  `json:"undistributed"`
	DistributedBy string    `json:"distributed_by"`
	DistributedAt time.Time `json:"distributed_at"`
}

func (r *PollReward) Clone() PollReward {
	return PollReward{
		PollID:        r.PollID,
		Amount:        cloneInt(r.Amount),
		CreatorShare:  cloneInt(r.CreatorShare),
		VoterShare:    cloneInt(r.VoterShare),
		Undistributed: cloneInt(r.Undistributed),
		DistributedBy: r.DistributedBy,
		DistributedAt: r.DistributedAt,
	}
}

func cloneInt(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value)
}
