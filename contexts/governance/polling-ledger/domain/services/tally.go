package services

import "sort"

// RankedBallot is one voter's preference order, most preferred first.
type RankedBallot struct {
	Voter   string
	Ranking []int
	Weight  uint64
}

type RunoffRound struct {
	Tallies    []uint64
	Exhausted  uint64
	Eliminated int
}

type RunoffResult struct {
	Winner int
	Rounds []RunoffRound
}

// InstantRunoff counts each ballot for its highest-ranked surviving option and
// eliminates the weakest option until one holds a strict majority of the
// non-exhausted weight. Ties on elimination drop the higher option index.
// Winner is -1 when there are no ballots.
func InstantRunoff(optionCount int, ballots []RankedBallot) RunoffResult {
	result := RunoffResult{Winner: -1}
	if optionCount <= 0 || len(ballots) == 0 {
		return result
	}
	ordered := append([]RankedBallot(nil), ballots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Voter < ordered[j].Voter })

	eliminated := make([]bool, optionCount)
	remaining := optionCount
	for {
		round := RunoffRound{Tallies: make([]uint64, optionCount), Eliminated: -1}
		var live uint64
		for _, ballot := range ordered {
			choice := firstSurviving(ballot.Ranking, eliminated)
			if choice < 0 {
				round.Exhausted += ballot.Weight
				continue
			}
			round.Tallies[choice] += ballot.Weight
			live += ballot.Weight
		}

		leader, weakest := -1, -1
		for option := 0; option < optionCount; option++ {
			if eliminated[option] {
				continue
			}
			if leader < 0 || round.Tallies[option] > round.Tallies[leader] {
				leader = option
			}
			if weakest < 0 || round.Tallies[option] <= round.Tallies[weakest] {
				weakest = option
			}
		}

		if live == 0 || round.Tallies[leader]*2 > live || remaining <= 1 {
			result.Rounds = append(result.Rounds, round)
			if live > 0 {
				result.Winner = leader
			}
			return result
		}
		round.Eliminated = weakest
		eliminated[weakest] = true
		remaining--
		result.Rounds = append(result.Rounds, round)
	}
}

func firstSurviving(ranking []int, eliminated []bool) int {
	for _, option := range ranking {
		if option >= 0 && option < len(eliminated) && !eliminated[option] {
			return option
		}
	}
	return -1
}
