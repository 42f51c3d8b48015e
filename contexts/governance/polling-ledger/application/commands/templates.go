package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
)

type CreateTemplateCommand struct {
	Caller           string
	Name             string
	Type             entities.PollType
	Category         entities.Category
	Duration         time.Duration
	MinParticipation uint64
	Asset            *entities.AssetGate
	DefaultTags      []string
}

type ToggleTemplateCommand struct {
	Caller     string
	TemplateID uint64
}

// TemplateUseCase manages poll blueprints. Operators only.
type TemplateUseCase struct {
	Runtime
}

func (uc TemplateUseCase) CreatePollTemplate(ctx context.Context, cmd CreateTemplateCommand) (uint64, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var templateID uint64
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if err := uc.requireOperator(caller); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return nil, domainerrors.ErrEmptyName
		}
		pollType, ok := entities.ParsePollType(string(cmd.Type))
		if !ok {
			return nil, domainerrors.ErrInvalidPollType
		}
		category, ok := entities.ParseCategory(string(cmd.Category))
		if !ok {
			return nil, domainerrors.ErrInvalidCategory
		}
		if cmd.Duration < uc.Policy.MinDuration || cmd.Duration > uc.Policy.MaxDuration {
			return nil, domainerrors.ErrInvalidDuration
		}
		asset, err := normalizeGate(cmd.Asset)
		if err != nil {
			return nil, err
		}
		if pollType == entities.PollTypeWeighted && asset == nil {
			return nil, domainerrors.ErrInvalidAddress
		}
		tags := normalizeTags(cmd.DefaultTags)
		if uc.Policy.MaxTags > 0 && len(tags) > uc.Policy.MaxTags {
			return nil, domainerrors.ErrTooManyTags
		}

		now := uc.now()
		template := &entities.Template{
			ID:               uint64(len(state.Templates)),
			Name:             name,
			Type:             pollType,
			Category:         category,
			Duration:         cmd.Duration,
			MinParticipation: cmd.MinParticipation,
			Asset:            asset,
			DefaultTags:      tags,
			Active:           true,
			CreatedBy:        caller,
			CreatedAt:        now,
		}
		envelope, err := uc.newEnvelope(ctx, "template.created", "template_id", strconv.FormatUint(template.ID, 10), now, map[string]any{
			"template_id": template.ID,
			"name":        name,
			"poll_type":   string(pollType),
			"category":    string(category),
			"duration_s":  int64(cmd.Duration / time.Second),
		})
		if err != nil {
			return nil, err
		}
		state.Templates = append(state.Templates, template)
		templateID = template.ID
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_template_create_rejected", err, "caller", caller)
		return 0, err
	}
	uc.logger().Info("template created",
		"event", "ledger_template_created",
		"module", "governance/polling-ledger",
		"layer", "application",
		"template_id", templateID,
	)
	return templateID, nil
}

// ToggleTemplate flips the active flag and returns the new value.
func (uc TemplateUseCase) ToggleTemplate(ctx context.Context, cmd ToggleTemplateCommand) (bool, error) {
	caller := strings.TrimSpace(cmd.Caller)
	var active bool
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		if err := uc.requireOperator(caller); err != nil {
			return nil, err
		}
		template, ok := state.Template(cmd.TemplateID)
		if !ok {
			return nil, domainerrors.ErrTemplateNotFound
		}
		now := uc.now()
		envelope, err := uc.newEnvelope(ctx, "template.toggled", "template_id", strconv.FormatUint(template.ID, 10), now, map[string]any{
			"template_id": template.ID,
			"active":      !template.Active,
		})
		if err != nil {
			return nil, err
		}
		template.Active = !template.Active
		active = template.Active
		return []ports.EventEnvelope{envelope}, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_template_toggle_rejected", err, "caller", caller, "template_id", cmd.TemplateID)
		return false, err
	}
	uc.logger().Info("template toggled",
		"event", "ledger_template_toggled",
		"module", "governance/polling-ledger",
		"layer", "application",
		"template_id", cmd.TemplateID,
		"active", active,
	)
	return active, nil
}
