package entities

import "time"

type UserReputation struct {
	Account         string    `json:"account"`
	Score           uint64    `json:"score"`
	VoteCount       uint64    `json:"vote_count"`
	PollsCreated    uint64    `json:"polls_created"`
	SuccessfulPolls uint64    `json:"successful_polls"`
	LastActivity    time.Time `json:"last_activity"`
	Active          bool      `json:"active"`
}

type ReputationAction string

const (
	ReputationActionVote       ReputationAction = "vote"
	ReputationActionCreate     ReputationAction = "create"
	ReputationActionSuccessful ReputationAction = "successful_poll"
)
