package commands

import (
	"context"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/domain/services"
	"agora/contexts/governance/polling-ledger/ports"
)

type PollActionCommand struct {
	Caller string
	PollID uint64
}

type ExtendPollCommand struct {
	Caller string
	PollID uint64
	Extra  time.Duration
}

// LifecycleUseCase drives the poll status machine:
// Active -> Closed | Expired | Cancelled, Closed | Expired -> Archived.
type LifecycleUseCase struct {
	Runtime
}

// ClosePoll is creator-only and requires the participation threshold.
// The creator is credited with a successful poll.
func (uc LifecycleUseCase) ClosePoll(ctx context.Context, cmd PollActionCommand) error {
	return uc.transition(ctx, cmd, "close", entities.PollStatusClosed, func(state *entities.State, poll *entities.Poll, status entities.PollStatus, now time.Time) error {
		if poll.Creator != strings.TrimSpace(cmd.Caller) {
			return domainerrors.ErrNotPollCreator
		}
		if err := requireFinishable(status); err != nil {
			return err
		}
		if poll.MinParticipation > 0 && poll.TotalVotes < poll.MinParticipation {
			return domainerrors.ErrMinParticipationNotMet
		}
		return nil
	}, func(state *entities.State, poll *entities.Poll, now time.Time) {
		poll.Status = entities.PollStatusClosed
		closedAt := now
		poll.ClosedAt = &closedAt
		services.ApplyReputation(state.ReputationOf(poll.Creator), entities.ReputationActionSuccessful, now, uc.Policy.Reputation)
	})
}

// ArchivePoll is allowed once end time plus the archive delay has passed.
func (uc LifecycleUseCase) ArchivePoll(ctx context.Context, cmd PollActionCommand) error {
	return uc.transition(ctx, cmd, "archive", entities.PollStatusArchived, func(_ *entities.State, poll *entities.Poll, status entities.PollStatus, now time.Time) error {
		if poll.Creator != strings.TrimSpace(cmd.Caller) {
			return domainerrors.ErrNotPollCreator
		}
		if poll.Archived || status == entities.PollStatusArchived {
			return domainerrors.ErrPollArchived
		}
		if status != entities.PollStatusClosed && status != entities.PollStatusExpired {
			return domainerrors.ErrInvalidStatusTransition
		}
		if now.Before(poll.EndTime.Add(uc.Policy.ArchiveDelay)) {
			return domainerrors.ErrPollTooRecentToArchive
		}
		return nil
	}, func(_ *entities.State, poll *entities.Poll, now time.Time) {
		archivedAt := now
		poll.Archived = true
		poll.ArchivedAt = &archivedAt
		poll.Status = entities.PollStatusArchived
	})
}

// EmergencyClosePoll lets an operator cancel any non-terminal poll.
func (uc LifecycleUseCase) EmergencyClosePoll(ctx context.Context, cmd PollActionCommand) error {
	return uc.transition(ctx, cmd, "emergency_close", entities.PollStatusCancelled, func(_ *entities.State, _ *entities.Poll, status entities.PollStatus, _ time.Time) error {
		if err := uc.requireOperator(strings.TrimSpace(cmd.Caller)); err != nil {
			return err
		}
		if status == entities.PollStatusArchived {
			return domainerrors.ErrPollArchived
		}
		if status.IsTerminal() {
			return domainerrors.ErrInvalidStatusTransition
		}
		return nil
	}, func(_ *entities.State, poll *entities.Poll, now time.Time) {
		poll.Status = entities.PollStatusCancelled
		closedAt := now
		poll.ClosedAt = &closedAt
	})
}

func (uc LifecycleUseCase) ExtendPoll(ctx context.Context, cmd ExtendPollCommand) (time.Time, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var endTime time.Time
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		poll, err := lookupPoll(state, cmd.PollID)
		if err != nil {
			return nil, err
		}
		if poll.Creator != caller {
			return nil, domainerrors.ErrNotPollCreator
		}
		now := uc.now()
		if !poll.IsActive(now) {
			return nil, domainerrors.ErrPollNotActive
		}
		newEnd := poll.EndTime.Add(cmd.Extra)
		if cmd.Extra <= 0 || newEnd.After(now.Add(uc.Policy.MaxDuration)) {
			return nil, domainerrors.ErrInvalidDuration
		}
		envelope, err := uc.pollEnvelope(ctx, "poll.extended", poll.ID, now, map[string]any{
			"previous_end_time": poll.EndTime,
			"end_time":          newEnd,
			"extended_by":       caller,
		})
		if err != nil {
			return nil, err
		}
		poll.EndTime = newEnd
		endTime = newEnd
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_poll_extend_rejected", err, "poll_id", cmd.PollID, "caller", caller)
		return time.Time{}, err
	}
	uc.logger().Info("poll extended",
		"event", "ledger_poll_extended",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", cmd.PollID,
		"end_time", endTime,
	)
	return endTime, nil
}

// transitionCheck sees the poll's effective status, with lazy expiry applied.
type transitionCheck func(state *entities.State, poll *entities.Poll, status entities.PollStatus, now time.Time) error

type transitionApply func(state *entities.State, poll *entities.Poll, now time.Time)

func (uc LifecycleUseCase) transition(
	ctx context.Context,
	cmd PollActionCommand,
	action string,
	to entities.PollStatus,
	check transitionCheck,
	apply transitionApply,
) error {
	caller := strings.TrimSpace(cmd.Caller)
	var from entities.PollStatus
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		poll, err := lookupPoll(state, cmd.PollID)
		if err != nil {
			return nil, err
		}
		now := uc.now()
		status := poll.EffectiveStatus(now)
		if err := check(state, poll, status, now); err != nil {
			return nil, err
		}
		events, err := uc.expiryEvents(ctx, poll, now)
		if err != nil {
			return nil, err
		}
		from = status
		envelope, err := uc.pollEnvelope(ctx, "poll.status_changed", poll.ID, now, map[string]any{
			"action":      action,
			"from_status": string(from),
			"to_status":   string(to),
			"actor":       caller,
		})
		if err != nil {
			return nil, err
		}
		poll.MaterializeExpiry(now)
		apply(state, poll, now)
		return append(events, envelope), nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_poll_"+action+"_rejected", err, "poll_id", cmd.PollID, "caller", caller)
		return err
	}
	uc.logger().Info("poll status changed",
		"event", "ledger_poll_status_changed",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", cmd.PollID,
		"action", action,
		"from_status", string(from),
		"to_status", string(to),
	)
	return nil
}

func requireFinishable(status entities.PollStatus) error {
	switch status {
	case entities.PollStatusActive, entities.PollStatusExpired:
		return nil
	case entities.PollStatusArchived:
		return domainerrors.ErrPollArchived
	default:
		return domainerrors.ErrInvalidStatusTransition
	}
}
