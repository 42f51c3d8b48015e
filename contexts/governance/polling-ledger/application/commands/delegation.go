package commands

import (
	"context"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
)

type SetDelegateCommand struct {
	Caller   string
	Delegate string
	Kind     entities.DelegationKind
}

type DelegationUseCase struct {
	Runtime
}

// SetDelegate replaces any prior delegate and keeps the reverse index in step.
func (uc DelegationUseCase) SetDelegate(ctx context.Context, cmd SetDelegateCommand) error {
	caller := strings.TrimSpace(cmd.Caller)
	delegate := strings.TrimSpace(cmd.Delegate)
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if state.Paused {
			return nil, domainerrors.ErrPlatformPaused
		}
		if caller == "" || delegate == "" {
			return nil, domainerrors.ErrInvalidAddress
		}
		if caller == delegate {
			return nil, domainerrors.ErrCannotDelegateToSelf
		}
		kind, ok := entities.ParseDelegationKind(string(cmd.Kind))
		if !ok {
			return nil, domainerrors.ErrInvalidDelegation
		}
		previous := ""
		if info, ok := state.ActiveDelegation(caller); ok {
			if info.Delegate == delegate {
				return nil, domainerrors.ErrAlreadyDelegated
			}
			previous = info.Delegate
		}

		now := uc.now()
		envelope, err := uc.accountEnvelope(ctx, "delegation.set", caller, now, map[string]any{
			"delegate":          delegate,
			"kind":              string(kind),
			"previous_delegate": previous,
		})
		if err != nil {
			return nil, err
		}

		if previous != "" {
			removeDelegator(state, previous, caller)
		}
		info, ok := state.Delegations[caller]
		if !ok {
			info = &entities.DelegationInfo{Delegator: caller}
			state.Delegations[caller] = info
		}
		info.Delegate = delegate
		info.Kind = kind
		info.DelegatedAt = now
		info.Active = true
		state.Delegators[delegate] = append(state.Delegators[delegate], caller)
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_delegate_set_rejected", err, "delegator", caller, "delegate", delegate)
		return err
	}
	uc.logger().Info("delegate set",
		"event", "ledger_delegate_set",
		"module", "governance/polling-ledger",
		"layer", "application",
		"delegator", caller,
		"delegate", delegate,
	)
	return nil
}

func (uc DelegationUseCase) RemoveDelegate(ctx context.Context, caller string) error {
	caller = strings.TrimSpace(caller)
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if state.Paused {
			return nil, domainerrors.ErrPlatformPaused
		}
		info, ok := state.ActiveDelegation(caller)
		if !ok {
			return nil, domainerrors.ErrNoDelegateSet
		}
		now := uc.now()
		envelope, err := uc.accountEnvelope(ctx, "delegation.removed", caller, now, map[string]any{
			"delegate": info.Delegate,
		})
		if err != nil {
			return nil, err
		}
		removeDelegator(state, info.Delegate, caller)
		info.Delegate = ""
		info.Active = false
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_delegate_remove_rejected", err, "delegator", caller)
		return err
	}
	uc.logger().Info("delegate removed",
		"event", "ledger_delegate_removed",
		"module", "governance/polling-ledger",
		"layer", "application",
		"delegator", caller,
	)
	return nil
}

func removeDelegator(state *entities.State, delegate string, delegator string) {
	current := state.Delegators[delegate]
	kept := current[:0]
	for _, item := range current {
		if item != delegator {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		delete(state.Delegators, delegate)
		return
	}
	state.Delegators[delegate] = kept
}
