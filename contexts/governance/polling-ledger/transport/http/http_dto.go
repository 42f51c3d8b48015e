package http

import "time"

// Token amounts travel as decimal strings of base units (18 decimals).

type ErrorResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type CreatePollRequest struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	DurationSeconds  int64    `json:"duration_seconds"`
	PollType         string   `json:"poll_type"`
	Category         string   `json:"category"`
	MinParticipation uint64   `json:"min_participation"`
	AssetID          string   `json:"asset_id,omitempty"`
	MinBalance       string   `json:"min_balance,omitempty"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags"`
	Fee              string   `json:"fee,omitempty"`
}

type CreateFromTemplateRequest struct {
	TemplateID  uint64   `json:"template_id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Fee         string   `json:"fee,omitempty"`
}

type CreatePollResponse struct {
	PollID uint64 `json:"poll_id"`
}

type PollResponse struct {
	ID               uint64     `json:"id"`
	Question         string     `json:"question"`
	Options          []string   `json:"options"`
	Votes            []uint64   `json:"votes"`
	Creator          string     `json:"creator"`
	CreatedAt        time.Time  `json:"created_at"`
	EndTime          time.Time  `json:"end_time"`
	Status           string     `json:"status"`
	PollType         string     `json:"poll_type"`
	Category         string     `json:"category"`
	MinParticipation uint64     `json:"min_participation"`
	TotalVotes       uint64     `json:"total_votes"`
	TotalWeight      uint64     `json:"total_weight"`
	AssetID          string     `json:"asset_id,omitempty"`
	MinBalance       string     `json:"min_balance,omitempty"`
	Description      string     `json:"description"`
	Tags             []string   `json:"tags"`
	TemplateID       *uint64    `json:"template_id,omitempty"`
	Archived         bool       `json:"archived"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

type PollSummaryResponse struct {
	ID          uint64    `json:"id"`
	Question    string    `json:"question"`
	Creator     string    `json:"creator"`
	Status      string    `json:"status"`
	PollType    string    `json:"poll_type"`
	Category    string    `json:"category"`
	OptionCount int       `json:"option_count"`
	TotalVotes  uint64    `json:"total_votes"`
	TotalWeight uint64    `json:"total_weight"`
	EndTime     time.Time `json:"end_time"`
	Tags        []string  `json:"tags"`
	Leading     int       `json:"leading_option"`
}

type PollListResponse struct {
	Items  []PollSummaryResponse `json:"items"`
	Total  int                   `json:"total,omitempty"`
	Offset int                   `json:"offset,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
}

type PollIDsResponse struct {
	PollIDs []uint64 `json:"poll_ids"`
}

type PollResultsResponse struct {
	PollID      uint64   `json:"poll_id"`
	Status      string   `json:"status"`
	Options     []string `json:"options"`
	Votes       []uint64 `json:"votes"`
	TotalVotes  uint64   `json:"total_votes"`
	TotalWeight uint64   `json:"total_weight"`
}

type VoteRequest struct {
	Option int `json:"option"`
}

type RankedVoteRequest struct {
	Ranking []int `json:"ranking"`
}

type ApprovalVoteRequest struct {
	Options []int `json:"options"`
}

type DelegateVoteRequest struct {
	Option    int    `json:"option"`
	Delegator string `json:"delegator"`
}

type BatchVoteRequest struct {
	PollIDs []uint64 `json:"poll_ids"`
	Options []int    `json:"options"`
}

type VoteResponse struct {
	PollID  uint64 `json:"poll_id"`
	Voter   string `json:"voter"`
	CastBy  string `json:"cast_by,omitempty"`
	Options []int  `json:"options"`
	Weight  uint64 `json:"weight"`
}

type LiquidVoteResponse struct {
	Own         VoteResponse   `json:"own"`
	Delegated   []VoteResponse `json:"delegated"`
	TotalWeight uint64         `json:"total_weight"`
}

type BatchVoteResponse struct {
	Items []VoteResponse `json:"items"`
}

type ExtendPollRequest struct {
	ExtraSeconds int64 `json:"extra_seconds"`
}

type ExtendPollResponse struct {
	PollID  uint64    `json:"poll_id"`
	EndTime time.Time `json:"end_time"`
}

type StatusChangeResponse struct {
	PollID uint64 `json:"poll_id"`
	Status string `json:"status"`
}

type FlagResponse struct {
	Value bool `json:"value"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type RunoffRoundResponse struct {
	Tallies    []uint64 `json:"tallies"`
	Exhausted  uint64   `json:"exhausted"`
	Eliminated int      `json:"eliminated"`
}

type RankedChoiceResponse struct {
	PollID      uint64                `json:"poll_id"`
	Winner      int                   `json:"winner"`
	WinnerLabel string                `json:"winner_label,omitempty"`
	Rounds      []RunoffRoundResponse `json:"rounds"`
}

type PollAnalyticsResponse struct {
	PollID               uint64    `json:"poll_id"`
	Status               string    `json:"status"`
	TotalVotes           uint64    `json:"total_votes"`
	TotalWeight          uint64    `json:"total_weight"`
	LeadingOption        int       `json:"leading_option"`
	LeadingLabel         string    `json:"leading_label,omitempty"`
	Margin               uint64    `json:"margin"`
	Percentages          []float64 `json:"percentages"`
	Participation        float64   `json:"participation_percent"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

type AnalyticsResponse struct {
	TotalPolls           uint64            `json:"total_polls"`
	TotalVotes           uint64            `json:"total_votes"`
	TotalUniqueVoters    uint64            `json:"total_unique_voters"`
	AverageParticipation float64           `json:"average_participation"`
	ByCategory           map[string]uint64 `json:"by_category"`
	ByType               map[string]uint64 `json:"by_type"`
}

type ReputationResponse struct {
	Account         string     `json:"account"`
	Score           uint64     `json:"score"`
	VoteCount       uint64     `json:"vote_count"`
	PollsCreated    uint64     `json:"polls_created"`
	SuccessfulPolls uint64     `json:"successful_polls"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	Active          bool       `json:"active"`
}

type UserStatsResponse struct {
	Account           string `json:"account"`
	PollsCreated      int    `json:"polls_created"`
	PollsVoted        int    `json:"polls_voted"`
	TotalVotingWeight uint64 `json:"total_voting_weight"`
	ReputationScore   uint64 `json:"reputation_score"`
}

type SetDelegateRequest struct {
	Delegate string `json:"delegate"`
	Kind     string `json:"kind"`
}

type DelegationResponse struct {
	Account              string     `json:"account"`
	Delegate             string     `json:"delegate,omitempty"`
	Kind                 string     `json:"kind,omitempty"`
	DelegatedAt          *time.Time `json:"delegated_at,omitempty"`
	TotalDelegatedWeight uint64     `json:"total_delegated_weight"`
	Active               bool       `json:"active"`
	Delegators           []string   `json:"delegators"`
}

type CreateTemplateRequest struct {
	Name             string   `json:"name"`
	PollType         string   `json:"poll_type"`
	Category         string   `json:"category"`
	DurationSeconds  int64    `json:"duration_seconds"`
	MinParticipation uint64   `json:"min_participation"`
	AssetID          string   `json:"asset_id,omitempty"`
	MinBalance       string   `json:"min_balance,omitempty"`
	DefaultTags      []string `json:"default_tags"`
}

type TemplateResponse struct {
	ID               uint64   `json:"id"`
	Name             string   `json:"name"`
	PollType         string   `json:"poll_type"`
	Category         string   `json:"category"`
	DurationSeconds  int64    `json:"duration_seconds"`
	MinParticipation uint64   `json:"min_participation"`
	AssetID          string   `json:"asset_id,omitempty"`
	MinBalance       string   `json:"min_balance,omitempty"`
	DefaultTags      []string `json:"default_tags"`
	Active           bool     `json:"active"`
	CreatedBy        string   `json:"created_by"`
}

type TemplateListResponse struct {
	Items []TemplateResponse `json:"items"`
}

type CreateTemplateResponse struct {
	TemplateID uint64 `json:"template_id"`
}

type ToggleTemplateResponse struct {
	TemplateID uint64 `json:"template_id"`
	Active     bool   `json:"active"`
}

type FundRewardPoolRequest struct {
	Amount string `json:"amount"`
}

type ConfigureRewardsRequest struct {
	CreatorPercent uint64 `json:"creator_percent"`
	VoterPercent   uint64 `json:"voter_percent"`
}

type RewardPoolResponse struct {
	Balance          string `json:"balance"`
	CreatorPercent   uint64 `json:"creator_percent"`
	VoterPercent     uint64 `json:"voter_percent"`
	TotalFunded      string `json:"total_funded"`
	TotalDistributed string `json:"total_distributed"`
	TotalClaimed     string `json:"total_claimed"`
}

type PollRewardResponse struct {
	PollID        uint64    `json:"poll_id"`
	Distributed   bool      `json:"distributed"`
	Amount        string    `json:"amount,omitempty"`
	CreatorShare  string    `json:"creator_share,omitempty"`
	VoterShare    string    `json:"voter_share,omitempty"`
	Undistributed string    `json:"undistributed,omitempty"`
	DistributedBy string    `json:"distributed_by,omitempty"`
	DistributedAt time.Time `json:"distributed_at,omitempty"`
}

type UserRewardsResponse struct {
	Account string `json:"account"`
	Pending string `json:"pending"`
	Claimed string `json:"claimed"`
}

type ClaimRewardsResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type LedgerStatusResponse struct {
	Paused      bool `json:"paused"`
	PollCount   int  `json:"poll_count"`
	ActivePolls int  `json:"active_polls"`
	Templates   int  `json:"templates"`
}
