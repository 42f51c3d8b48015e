package entities

import (
	"strings"
	"time"
)

type DelegationKind string

const (
	DelegationKindProxy          DelegationKind = "proxy"
	DelegationKindRepresentative DelegationKind = "representative"
)

func ParseDelegationKind(raw string) (DelegationKind, bool) {
	switch kind := DelegationKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case DelegationKindProxy, DelegationKindRepresentative:
		return kind, true
	case "":
		return DelegationKindProxy, true
	default:
		return "", false
	}
}

// DelegationInfo is the single per-delegator record. Delegate is a non-owning
// back-reference; the reverse index lives in State.Delegators.
type DelegationInfo struct {
	Delegator            string         `json:"delegator"`
	Delegate             string         `json:"delegate"`
	Kind                 DelegationKind `json:"kind"`
	DelegatedAt          time.Time      `json:"delegated_at"`
	TotalDelegatedWeight uint64         `json:"total_delegated_weight"`
	Active               bool           `json:"active"`
}
