package errors

import "errors"

// Kind groups ledger failures by how a caller should react to them.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindUnauthorized         Kind = "unauthorized"
	KindValidation           Kind = "validation"
	KindInsufficientResource Kind = "insufficient_resource"
	KindAlreadyDone          Kind = "already_done"
	KindPolicyGate           Kind = "policy_gate"
	KindDependency           Kind = "dependency"
)

// Error is a sentinel ledger failure. Compare with errors.Is against the vars below.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code string, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrPollNotFound     = newError(KindNotFound, "poll_not_found", "poll not found")
	ErrTemplateNotFound = newError(KindNotFound, "template_not_found", "template not found")

	ErrPollNotActive           = newError(KindInvalidState, "poll_not_active", "poll is not active")
	ErrPollArchived            = newError(KindInvalidState, "poll_archived", "poll is already archived")
	ErrInvalidStatusTransition = newError(KindInvalidState, "invalid_status_transition", "poll status does not allow this transition")
	ErrPollStillActive         = newError(KindInvalidState, "poll_still_active", "poll has not finished")
	ErrTemplateNotActive       = newError(KindInvalidState, "template_not_active", "template is not active")
	ErrNoDelegateSet           = newError(KindInvalidState, "no_delegate_set", "no delegate is set")

	ErrNotPollCreator = newError(KindUnauthorized, "not_poll_creator", "caller is not the poll creator")
	ErrNotDelegate    = newError(KindUnauthorized, "not_delegate", "caller is not the registered delegate")
	ErrNotOperator    = newError(KindUnauthorized, "not_operator", "caller is not an operator")

	ErrEmptyQuestion        = newError(KindValidation, "empty_question", "question is required")
	ErrEmptyName            = newError(KindValidation, "empty_name", "template name is required")
	ErrInsufficientOptions  = newError(KindValidation, "insufficient_options", "at least two options are required")
	ErrTooManyOptions       = newError(KindValidation, "too_many_options", "too many options")
	ErrTooManyTags          = newError(KindValidation, "too_many_tags", "too many tags")
	ErrInvalidDuration      = newError(KindValidation, "invalid_duration", "duration is outside the allowed bounds")
	ErrInvalidOption        = newError(KindValidation, "invalid_option", "option index out of range")
	ErrInvalidAddress       = newError(KindValidation, "invalid_address", "account or asset identifier is missing")
	ErrMismatchedLengths    = newError(KindValidation, "mismatched_lengths", "poll ids and option indices differ in length")
	ErrEmptyBatch           = newError(KindValidation, "empty_batch", "batch is empty or too large")
	ErrPollTypeMismatch     = newError(KindValidation, "poll_type_mismatch", "vote kind does not match poll type")
	ErrInvalidRanking       = newError(KindValidation, "invalid_ranking", "ranking must list distinct valid options")
	ErrInvalidAmount        = newError(KindValidation, "invalid_amount", "amount must be positive")
	ErrInvalidRewardSplit   = newError(KindValidation, "invalid_reward_split", "creator and voter percentages must sum to 100")
	ErrInvalidCategory      = newError(KindValidation, "invalid_category", "unknown poll category")
	ErrInvalidPollType      = newError(KindValidation, "invalid_poll_type", "unknown poll type")
	ErrInvalidDelegation    = newError(KindValidation, "invalid_delegation_kind", "unknown delegation kind")
	ErrWeightOverflow       = newError(KindValidation, "weight_overflow", "vote weight does not fit the accumulator")
	ErrCannotDelegateToSelf = newError(KindValidation, "cannot_delegate_to_self", "cannot delegate to self")

	ErrInsufficientTokenBalance = newError(KindInsufficientResource, "insufficient_token_balance", "token balance below the poll minimum")
	ErrInsufficientFee          = newError(KindInsufficientResource, "insufficient_fee", "creation fee below requirement")
	ErrRewardPoolExhausted      = newError(KindInsufficientResource, "reward_pool_exhausted", "reward pool is exhausted")
	ErrNothingToClaim           = newError(KindInsufficientResource, "nothing_to_claim", "no pending rewards")

	ErrAlreadyVoted              = newError(KindAlreadyDone, "already_voted", "voter has already voted")
	ErrAlreadyDelegated          = newError(KindAlreadyDone, "already_delegated", "delegate is already set")
	ErrRewardsAlreadyDistributed = newError(KindAlreadyDone, "rewards_already_distributed", "rewards already distributed for poll")

	ErrMinParticipationNotMet = newError(KindPolicyGate, "min_participation_not_met", "minimum participation not met")
	ErrPollTooRecentToArchive = newError(KindPolicyGate, "poll_too_recent_to_archive", "archive delay has not elapsed")
	ErrPlatformPaused         = newError(KindPolicyGate, "platform_paused", "platform is paused")

	ErrDependencyUnavailable = newError(KindDependency, "dependency_unavailable", "dependency unavailable")
	ErrConflict              = newError(KindDependency, "conflict", "stored record conflict")
)

// KindOf returns the kind of the first ledger error in err's chain, or "".
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// CodeOf returns the stable machine code of a ledger error, or "".
func CodeOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
