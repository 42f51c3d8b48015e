package queries

import (
	"context"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
)

// QueryUseCase serves every read. Reads never write; expiry is applied to
// the returned values only.
type QueryUseCase struct {
	Store  ports.LedgerStore
	Clock  ports.Clock
	Policy entities.Policy
}

func (uc QueryUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func (uc QueryUseCase) withPoll(ctx context.Context, pollID uint64, fn func(state *entities.State, poll *entities.Poll) error) error {
	return uc.Store.View(ctx, func(state *entities.State) error {
		poll, ok := state.Poll(pollID)
		if !ok {
			return domainerrors.ErrPollNotFound
		}
		return fn(state, poll)
	})
}

// snapshotPoll clones a poll and reports its effective status.
func snapshotPoll(poll *entities.Poll, now time.Time) entities.Poll {
	out := poll.Clone()
	out.Status = poll.EffectiveStatus(now)
	return out
}
