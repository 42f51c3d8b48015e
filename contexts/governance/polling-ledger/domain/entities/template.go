package entities

import (
	"math/big"
	"time"
)

// Template is a reusable poll blueprint. Templates are toggled, never deleted.
type Template struct {
	ID               uint64        `json:"id"`
	Name             string        `json:"name"`
	Type             PollType      `json:"type"`
	Category         Category      `json:"category"`
	Duration         time.Duration `json:"duration"`
	MinParticipation uint64        `json:"min_participation"`
	Asset            *AssetGate    `json:"asset,omitempty"`
	DefaultTags      []string      `json:"default_tags"`
	Active           bool          `json:"active"`
	CreatedBy        string        `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (t *Template) Clone() Template {
	out := *t
	out.Asset = t.Asset.Clone()
	out.DefaultTags = append([]string(nil), t.DefaultTags...)
	return out
}

const SystemAccount = "system"

// DefaultTemplates returns the governance, community and technical blueprints
// seeded into every new ledger.
func DefaultTemplates(policy Policy) []Template {
	var governanceGate, technicalGate *AssetGate
	if policy.GovernanceAssetID != "" {
		unit := policy.ResolveWeightUnit()
		governanceGate = &AssetGate{
			AssetID:    policy.GovernanceAssetID,
			MinBalance: new(big.Int).Set(unit),
		}
		technicalGate = &AssetGate{
			AssetID:    policy.GovernanceAssetID,
			MinBalance: new(big.Int).Set(unit),
		}
	}
	return []Template{
		{
			Name:             "governance",
			Type:             PollTypeWeighted,
			Category:         CategoryGovernance,
			Duration:         7 * 24 * time.Hour,
			MinParticipation: 10,
			Asset:            governanceGate,
			DefaultTags:      []string{"governance", "proposal"},
			Active:           true,
		},
		{
			Name:        "community",
			Type:        PollTypeStandard,
			Category:    CategoryCommunity,
			Duration:    3 * 24 * time.Hour,
			DefaultTags: []string{"community"},
			Active:      true,
		},
		{
			Name:             "technical",
			Type:             PollTypeQuadratic,
			Category:         CategoryTechnical,
			Duration:         5 * 24 * time.Hour,
			MinParticipation: 5,
			Asset:            technicalGate,
			DefaultTags:      []string{"technical"},
			Active:           true,
		},
	}
}
