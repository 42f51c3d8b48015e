package entities

import (
	"math/big"
	"strings"
	"time"
)

type PollStatus string

const (
	PollStatusActive    PollStatus = "active"
	PollStatusClosed    PollStatus = "closed"
	PollStatusExpired   PollStatus = "expired"
	PollStatusCancelled PollStatus = "cancelled"
	PollStatusArchived  PollStatus = "archived"
)

func ParsePollStatus(raw string) (PollStatus, bool) {
	switch status := PollStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case PollStatusActive, PollStatusClosed, PollStatusExpired, PollStatusCancelled, PollStatusArchived:
		return status, true
	default:
		return "", false
	}
}

// IsTerminal reports statuses that accept no further writes.
func (s PollStatus) IsTerminal() bool {
	return s == PollStatusCancelled || s == PollStatusArchived
}

type PollType string

const (
	PollTypeStandard        PollType = "standard"
	PollTypeWeighted        PollType = "weighted"
	PollTypeQuadratic       PollType = "quadratic"
	PollTypeRankedChoice    PollType = "ranked_choice"
	PollTypeApproval        PollType = "approval"
	PollTypeLiquidDemocracy PollType = "liquid_democracy"
	PollTypeTimeWeighted    PollType = "time_weighted"
	PollTypeReputationBased PollType = "reputation_based"
)

var pollTypes = []PollType{
	PollTypeStandard,
	PollTypeWeighted,
	PollTypeQuadratic,
	PollTypeRankedChoice,
	PollTypeApproval,
	PollTypeLiquidDemocracy,
	PollTypeTimeWeighted,
	PollTypeReputationBased,
}

func PollTypes() []PollType {
	return append([]PollType(nil), pollTypes...)
}

func ParsePollType(raw string) (PollType, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "-", "_")
	for _, item := range pollTypes {
		if string(item) == value {
			return item, true
		}
	}
	return "", false
}

// IsSingleChoice reports poll types whose ballot names exactly one option.
func (t PollType) IsSingleChoice() bool {
	return t != PollTypeRankedChoice && t != PollTypeApproval
}

type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryGovernance Category = "governance"
	CategoryTechnical  Category = "technical"
	CategoryCommunity  Category = "community"
	CategoryFinance    Category = "finance"
)

var categories = []Category{
	CategoryGeneral,
	CategoryGovernance,
	CategoryTechnical,
	CategoryCommunity,
	CategoryFinance,
}

func Categories() []Category {
	return append([]Category(nil), categories...)
}

func ParseCategory(raw string) (Category, bool) {
	value := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, item := range categories {
		if item == value {
			return item, true
		}
	}
	return "", false
}

// AssetGate is the minimum holding of an asset required to vote.
type AssetGate struct {
	AssetID    string   `json:"asset_id"`
	MinBalance *big.Int `json:"min_balance"`
}

func (g *AssetGate) Clone() *AssetGate {
	if g == nil {
		return nil
	}
	out := &AssetGate{AssetID: g.AssetID}
	if g.MinBalance != nil {
		out.MinBalance = new(big.Int).Set(g.MinBalance)
	}
	return out
}

// Ballot is what one voter identity contributed to a poll.
type Ballot struct {
	Options []int     `json:"options"`
	Weight  uint64    `json:"weight"`
	CastBy  string    `json:"cast_by,omitempty"`
	CastAt  time.Time `json:"cast_at"`
}

type Poll struct {
	ID               uint64            `json:"id"`
	Question         string            `json:"question"`
	Options          []string          `json:"options"`
	Votes            []uint64          `json:"votes"`
	Ballots          map[string]Ballot `json:"ballots"`
	Creator          string            `json:"creator"`
	CreatedAt        time.Time         `json:"created_at"`
	EndTime          time.Time         `json:"end_time"`
	Status           PollStatus        `json:"status"`
	Type             PollType          `json:"type"`
	Category         Category          `json:"category"`
	MinParticipation uint64            `json:"min_participation"`
	TotalVotes       uint64            `json:"total_votes"`
	TotalWeight      uint64            `json:"total_weight"`
	Asset            *AssetGate        `json:"asset,omitempty"`
	Description      string            `json:"description"`
	Tags             []string          `json:"tags"`
	TemplateID       *uint64           `json:"template_id,omitempty"`
	Archived         bool              `json:"archived"`
	ArchivedAt       *time.Time        `json:"archived_at,omitempty"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
}

// EffectiveStatus applies lazy expiry: an active poll past its end time
// reports expired even if nothing has written it since.
func (p *Poll) EffectiveStatus(now time.Time) PollStatus {
	if p.Status == PollStatusActive && !now.Before(p.EndTime) {
		return PollStatusExpired
	}
	return p.Status
}

func (p *Poll) IsActive(now time.Time) bool {
	return p.EffectiveStatus(now) == PollStatusActive
}

// MaterializeExpiry persists the lazy transition and reports whether it changed anything.
func (p *Poll) MaterializeExpiry(now time.Time) bool {
	if p.Status == PollStatusActive && !now.Before(p.EndTime) {
		p.Status = PollStatusExpired
		return true
	}
	return false
}

func (p *Poll) HasVoted(voter string) bool {
	_, ok := p.Ballots[voter]
	return ok
}

func (p *Poll) HasTag(tag string) bool {
	for _, item := range p.Tags {
		if item == tag {
			return true
		}
	}
	return false
}

func (p *Poll) RequiresAsset() bool {
	return p.Asset != nil && strings.TrimSpace(p.Asset.AssetID) != ""
}

// Clone returns a deep copy safe to hand out past the store lock.
func (p *Poll) Clone() Poll {
	out := *p
	out.Options = append([]string(nil), p.Options...)
	out.Votes = append([]uint64(nil), p.Votes...)
	out.Tags = append([]string(nil), p.Tags...)
	out.Asset = p.Asset.Clone()
	out.Ballots = make(map[string]Ballot, len(p.Ballots))
	for voter, ballot := range p.Ballots {
		ballot.Options = append([]int(nil), ballot.Options...)
		out.Ballots[voter] = ballot
	}
	if p.TemplateID != nil {
		id := *p.TemplateID
		out.TemplateID = &id
	}
	if p.ArchivedAt != nil {
		at := *p.ArchivedAt
		out.ArchivedAt = &at
	}
	if p.ClosedAt != nil {
		at := *p.ClosedAt
		out.ClosedAt = &at
	}
	return out
}

// PollSummary is the list-friendly projection of a poll.
type PollSummary struct {
	ID          uint64
	Question    string
	Creator     string
	Status      PollStatus
	Type        PollType
	Category    Category
	OptionCount int
	TotalVotes  uint64
	TotalWeight uint64
	EndTime     time.Time
	Tags        []string
	Leading     int
}

func (p *Poll) Summary(now time.Time) PollSummary {
	leading := -1
	var best uint64
	for idx, votes := range p.Votes {
		if votes > best {
			best = votes
			leading = idx
		}
	}
	return PollSummary{
		ID:          p.ID,
		Question:    p.Question,
		Creator:     p.Creator,
		Status:      p.EffectiveStatus(now),
		Type:        p.Type,
		Category:    p.Category,
		OptionCount: len(p.Options),
		TotalVotes:  p.TotalVotes,
		TotalWeight: p.TotalWeight,
		EndTime:     p.EndTime,
		Tags:        append([]string(nil), p.Tags...),
		Leading:     leading,
	}
}
