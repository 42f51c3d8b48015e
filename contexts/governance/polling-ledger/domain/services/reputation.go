package services

import (
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
)

// DecayedScore is the score after linear decay for whole days since last activity.
func DecayedScore(record *entities.UserReputation, now time.Time, policy entities.ReputationPolicy) uint64 {
	if record == nil {
		return 0
	}
	if record.LastActivity.IsZero() || !now.After(record.LastActivity) {
		return record.Score
	}
	days := uint64(now.Sub(record.LastActivity) / (24 * time.Hour))
	decay := days * policy.DecayPerDay
	if decay >= record.Score {
		return 0
	}
	return record.Score - decay
}

// ApplyReputation decays first, then adds the action's points, capped at MaxScore.
func ApplyReputation(
	record *entities.UserReputation,
	action entities.ReputationAction,
	now time.Time,
	policy entities.ReputationPolicy,
) {
	score := DecayedScore(record, now, policy) + policy.PointsFor(action)
	if policy.MaxScore > 0 && score > policy.MaxScore {
		score = policy.MaxScore
	}
	record.Score = score
	switch action {
	case entities.ReputationActionVote:
		record.VoteCount++
	case entities.ReputationActionCreate:
		record.PollsCreated++
	case entities.ReputationActionSuccessful:
		record.SuccessfulPolls++
	}
	record.LastActivity = now.UTC()
	record.Active = true
}
