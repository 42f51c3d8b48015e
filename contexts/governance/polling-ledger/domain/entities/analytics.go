package entities

import "time"

// Analytics counters move only with the write that changes the underlying fact.
type Analytics struct {
	TotalPolls           uint64              `json:"total_polls"`
	TotalVotes           uint64              `json:"total_votes"`
	TotalUniqueVoters    uint64              `json:"total_unique_voters"`
	AverageParticipation float64             `json:"average_participation"`
	ByCategory           map[Category]uint64 `json:"by_category"`
	ByType               map[PollType]uint64 `json:"by_type"`
}

func NewAnalytics() Analytics {
	return Analytics{
		ByCategory: make(map[Category]uint64),
		ByType:     make(map[PollType]uint64),
	}
}

func (a Analytics) Clone() Analytics {
	out := a
	out.ByCategory = make(map[Category]uint64, len(a.ByCategory))
	for key, value := range a.ByCategory {
		out.ByCategory[key] = value
	}
	out.ByType = make(map[PollType]uint64, len(a.ByType))
	for key, value := range a.ByType {
		out.ByType[key] = value
	}
	return out
}

func (a *Analytics) RecordPoll(category Category, pollType PollType) {
	a.TotalPolls++
	a.ByCategory[category]++
	a.ByType[pollType]++
	a.recomputeAverage()
}

// RecordVote counts one ballot; firstVote marks a voter never seen on any poll.
func (a *Analytics) RecordVote(firstVote bool) {
	a.TotalVotes++
	if firstVote {
		a.TotalUniqueVoters++
	}
	a.recomputeAverage()
}

func (a *Analytics) recomputeAverage() {
	if a.TotalPolls == 0 {
		a.AverageParticipation = 0
		return
	}
	a.AverageParticipation = float64(a.TotalVotes) / float64(a.TotalPolls)
}

// PollAnalytics is the per-poll breakdown shown by the analytics query.
type PollAnalytics struct {
	PollID        uint64
	Status        PollStatus
	TotalVotes    uint64
	TotalWeight   uint64
	LeadingOption int
	LeadingLabel  string
	Margin        uint64
	Percentages   []float64
	Participation float64
	TimeRemaining time.Duration
}
