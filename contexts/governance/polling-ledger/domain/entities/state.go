package entities

import (
	"math/big"
	"time"
)

// State is the whole ledger. One instance per ledger, owned by the store,
// and serialized as-is for snapshots.
type State struct {
	Polls         []*Poll                    `json:"polls"`
	Templates     []*Template                `json:"templates"`
	Delegations   map[string]*DelegationInfo `json:"delegations"`
	Delegators    map[string][]string        `json:"delegators"`
	Reputation    map[string]*UserReputation `json:"reputation"`
	RewardPool    RewardPool                 `json:"reward_pool"`
	UserRewards   map[string]*UserRewards    `json:"user_rewards"`
	PollRewards   map[uint64]*PollReward     `json:"poll_rewards"`
	Analytics     Analytics                  `json:"analytics"`
	CategoryIndex map[Category][]uint64      `json:"category_index"`
	TagIndex      map[string][]uint64        `json:"tag_index"`
	CreatedBy     map[string][]uint64        `json:"created_by"`
	VotedBy       map[string][]uint64        `json:"voted_by"`
	UniqueVoters  map[string]bool            `json:"unique_voters"`
	HoldingSince  map[string]time.Time       `json:"holding_since"`
	Paused        bool                       `json:"paused"`
}

// NewState builds an empty ledger seeded with the default templates.
func NewState(policy Policy, now time.Time) *State {
	state := &State{
		RewardPool: NewRewardPool(),
		Analytics:  NewAnalytics(),
	}
	state.EnsureMaps()
	for _, template := range DefaultTemplates(policy) {
		template := template
		template.ID = uint64(len(state.Templates))
		template.CreatedBy = SystemAccount
		template.CreatedAt = now.UTC()
		state.Templates = append(state.Templates, &template)
	}
	return state
}

// EnsureMaps fills nil collections, e.g. after decoding an old snapshot.
func (s *State) EnsureMaps() {
	if s.Delegations == nil {
		s.Delegations = make(map[string]*DelegationInfo)
	}
	if s.Delegators == nil {
		s.Delegators = make(map[string][]string)
	}
	if s.Reputation == nil {
		s.Reputation = make(map[string]*UserReputation)
	}
	if s.UserRewards == nil {
		s.UserRewards = make(map[string]*UserRewards)
	}
	if s.PollRewards == nil {
		s.PollRewards = make(map[uint64]*PollReward)
	}
	if s.CategoryIndex == nil {
		s.CategoryIndex = make(map[Category][]uint64)
	}
	if s.TagIndex == nil {
		s.TagIndex = make(map[string][]uint64)
	}
	if s.CreatedBy == nil {
		s.CreatedBy = make(map[string][]uint64)
	}
	if s.VotedBy == nil {
		s.VotedBy = make(map[string][]uint64)
	}
	if s.UniqueVoters == nil {
		s.UniqueVoters = make(map[string]bool)
	}
	if s.HoldingSince == nil {
		s.HoldingSince = make(map[string]time.Time)
	}
	if s.Analytics.ByCategory == nil {
		s.Analytics.ByCategory = make(map[Category]uint64)
	}
	if s.Analytics.ByType == nil {
		s.Analytics.ByType = make(map[PollType]uint64)
	}
	if s.RewardPool.Balance == nil {
		s.RewardPool.Balance = new(big.Int)
	}
	if s.RewardPool.TotalFunded == nil {
		s.RewardPool.TotalFunded = new(big.Int)
	}
	if s.RewardPool.TotalDistributed == nil {
		s.RewardPool.TotalDistributed = new(big.Int)
	}
	if s.RewardPool.TotalClaimed == nil {
		s.RewardPool.TotalClaimed = new(big.Int)
	}
	if s.RewardPool.CreatorPercent+s.RewardPool.VoterPercent != 100 {
		s.RewardPool.CreatorPercent = 30
		s.RewardPool.VoterPercent = 70
	}
	for _, poll := range s.Polls {
		if poll.Ballots == nil {
			poll.Ballots = make(map[string]Ballot)
		}
	}
}

func (s *State) Poll(id uint64) (*Poll, bool) {
	if id >= uint64(len(s.Polls)) {
		return nil, false
	}
	return s.Polls[id], true
}

func (s *State) Template(id uint64) (*Template, bool) {
	if id >= uint64(len(s.Templates)) {
		return nil, false
	}
	return s.Templates[id], true
}

func (s *State) NextPollID() uint64 {
	return uint64(len(s.Polls))
}

// ReputationOf returns the account's record, creating an inactive one on first use.
func (s *State) ReputationOf(account string) *UserReputation {
	record, ok := s.Reputation[account]
	if !ok {
		record = &UserReputation{Account: account}
		s.Reputation[account] = record
	}
	return record
}

func (s *State) RewardsOf(account string) *UserRewards {
	record, ok := s.UserRewards[account]
	if !ok {
		record = &UserRewards{Account: account, Pending: new(big.Int), Claimed: new(big.Int)}
		s.UserRewards[account] = record
	}
	return record
}

// ActiveDelegation returns the caller's current delegation if one is set.
func (s *State) ActiveDelegation(delegator string) (*DelegationInfo, bool) {
	info, ok := s.Delegations[delegator]
	if !ok || !info.Active {
		return nil, false
	}
	return info, true
}

func HoldingKey(account string, assetID string) string {
	return account + "|" + assetID
}
