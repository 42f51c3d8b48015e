package commands

import (
	"context"
	"math/big"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/domain/services"
	"agora/contexts/governance/polling-ledger/ports"
)

type CreatePollCommand struct {
	Caller           string
	Question         string
	Options          []string
	Duration         time.Duration
	Type             entities.PollType
	Category         entities.Category
	MinParticipation uint64
	Asset            *entities.AssetGate
	Description      string
	Tags             []string
	Fee              *big.Int
}

type CreateFromTemplateCommand struct {
	Caller      string
	TemplateID  uint64
	Question    string
	Options     []string
	Description string
	Tags        []string
	Fee         *big.Int
}

// PollUseCase creates polls directly or from templates.
type PollUseCase struct {
	Runtime
}

func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (uint64, error) {
	var pollID uint64
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		draft, err := uc.draftPoll(state, cmd)
		if err != nil {
			return nil, err
		}
		draft.ID = state.NextPollID()
		events, err := uc.createdEvents(ctx, &draft.Poll)
		if err != nil {
			return nil, err
		}
		pollID = uc.insertPoll(state, draft)
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_poll_create_rejected", err, "caller", strings.TrimSpace(cmd.Caller))
		return 0, err
	}
	uc.logger().Info("poll created",
		"event", "ledger_poll_created",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", pollID,
		"creator", strings.TrimSpace(cmd.Caller),
		"poll_type", string(cmd.Type),
	)
	return pollID, nil
}

// CreatePollFromTemplate seeds type, category, duration, participation,
// asset gate and, when none are given, tags from an active template.
func (uc PollUseCase) CreatePollFromTemplate(ctx context.Context, cmd CreateFromTemplateCommand) (uint64, error) {
	var pollID uint64
	err := uc.Store.Update(ctx, func(state *entities.State) ([]ports.EventEnvelope, error) {
		template, ok := state.Template(cmd.TemplateID)
		if !ok {
			return nil, domainerrors.ErrTemplateNotFound
		}
		if !template.Active {
			return nil, domainerrors.ErrTemplateNotActive
		}
		tags := cmd.Tags
		if len(normalizeTags(tags)) == 0 {
			tags = template.DefaultTags
		}
		draft, err := uc.draftPoll(state, CreatePollCommand{
			Caller:           cmd.Caller,
			Question:         cmd.Question,
			Options:          cmd.Options,
			Duration:         template.Duration,
			Type:             template.Type,
			Category:         template.Category,
			MinParticipation: template.MinParticipation,
			Asset:            template.Asset.Clone(),
			Description:      cmd.Description,
			Tags:             tags,
			Fee:              cmd.Fee,
		})
		if err != nil {
			return nil, err
		}
		templateID := template.ID
		draft.TemplateID = &templateID
		draft.ID = state.NextPollID()
		events, err := uc.createdEvents(ctx, &draft.Poll)
		if err != nil {
			return nil, err
		}
		pollID = uc.insertPoll(state, draft)
		return events, nil
	})
	if err != nil {
		uc.logRejected(ctx, "ledger_poll_create_from_template_rejected", err,
			"caller", strings.TrimSpace(cmd.Caller),
			"template_id", cmd.TemplateID,
		)
		return 0, err
	}
	uc.logger().Info("poll created from template",
		"event", "ledger_poll_created_from_template",
		"module", "governance/polling-ledger",
		"layer", "application",
		"poll_id", pollID,
		"template_id", cmd.TemplateID,
	)
	return pollID, nil
}

type pollDraft struct {
	entities.Poll
	fee *big.Int
}

// draftPoll validates a creation request without touching state.
func (uc PollUseCase) draftPoll(state *entities.State, cmd CreatePollCommand) (pollDraft, error) {
	if state.Paused {
		return pollDraft{}, domainerrors.ErrPlatformPaused
	}
	creator, err := normalizeAccount(cmd.Caller)
	if err != nil {
		return pollDraft{}, err
	}
	question := strings.TrimSpace(cmd.Question)
	if question == "" {
		return pollDraft{}, domainerrors.ErrEmptyQuestion
	}
	options := normalizeOptions(cmd.Options)
	if len(options) < 2 {
		return pollDraft{}, domainerrors.ErrInsufficientOptions
	}
	if uc.Policy.MaxOptions > 0 && len(options) > uc.Policy.MaxOptions {
		return pollDraft{}, domainerrors.ErrTooManyOptions
	}
	if cmd.Duration < uc.Policy.MinDuration || cmd.Duration > uc.Policy.MaxDuration {
		return pollDraft{}, domainerrors.ErrInvalidDuration
	}
	pollType := entities.PollTypeStandard
	if cmd.Type != "" {
		parsed, ok := entities.ParsePollType(string(cmd.Type))
		if !ok {
			return pollDraft{}, domainerrors.ErrInvalidPollType
		}
		pollType = parsed
	}
	category := entities.CategoryGeneral
	if cmd.Category != "" {
		parsed, ok := entities.ParseCategory(string(cmd.Category))
		if !ok {
			return pollDraft{}, domainerrors.ErrInvalidCategory
		}
		category = parsed
	}
	asset, err := normalizeGate(cmd.Asset)
	if err != nil {
		return pollDraft{}, err
	}
	if pollType == entities.PollTypeWeighted && asset == nil {
		return pollDraft{}, domainerrors.ErrInvalidAddress
	}
	tags := normalizeTags(cmd.Tags)
	if uc.Policy.MaxTags > 0 && len(tags) > uc.Policy.MaxTags {
		return pollDraft{}, domainerrors.ErrTooManyTags
	}
	fee := new(big.Int)
	if cmd.Fee != nil {
		if cmd.Fee.Sign() < 0 {
			return pollDraft{}, domainerrors.ErrInvalidAmount
		}
		fee.Set(cmd.Fee)
	}
	if required := uc.Policy.ResolveCreationFee(); required.Sign() > 0 && fee.Cmp(required) < 0 {
		return pollDraft{}, domainerrors.ErrInsufficientFee
	}

	now := uc.now()
	return pollDraft{
		Poll: entities.Poll{
			Question:         question,
			Options:          options,
			Votes:            make([]uint64, len(options)),
			Ballots:          make(map[string]entities.Ballot),
			Creator:          creator,
			CreatedAt:        now,
			EndTime:          now.Add(cmd.Duration),
			Status:           entities.PollStatusActive,
			Type:             pollType,
			Category:         category,
			MinParticipation: cmd.MinParticipation,
			Asset:            asset,
			Description:      strings.TrimSpace(cmd.Description),
			Tags:             tags,
		},
		fee: fee,
	}, nil
}

func (uc PollUseCase) insertPoll(state *entities.State, draft pollDraft) uint64 {
	poll := draft.Poll
	state.Polls = append(state.Polls, &poll)

	state.CategoryIndex[poll.Category] = append(state.CategoryIndex[poll.Category], poll.ID)
	for _, tag := range poll.Tags {
		state.TagIndex[tag] = append(state.TagIndex[tag], poll.ID)
	}
	state.CreatedBy[poll.Creator] = append(state.CreatedBy[poll.Creator], poll.ID)
	state.Analytics.RecordPoll(poll.Category, poll.Type)
	services.ApplyReputation(state.ReputationOf(poll.Creator), entities.ReputationActionCreate, poll.CreatedAt, uc.Policy.Reputation)

	if draft.fee.Sign() > 0 {
		state.RewardPool.Balance.Add(state.RewardPool.Balance, draft.fee)
		state.RewardPool.TotalFunded.Add(state.RewardPool.TotalFunded, draft.fee)
	}
	return poll.ID
}

func (uc PollUseCase) createdEvents(ctx context.Context, poll *entities.Poll) ([]ports.EventEnvelope, error) {
	data := map[string]any{
		"creator":           poll.Creator,
		"question":          poll.Question,
		"options":           poll.Options,
		"poll_type":         string(poll.Type),
		"category":          string(poll.Category),
		"end_time":          poll.EndTime,
		"min_participation": poll.MinParticipation,
		"tags":              poll.Tags,
	}
	if poll.TemplateID != nil {
		data["template_id"] = *poll.TemplateID
	}
	envelope, err := uc.pollEnvelope(ctx, "poll.created", poll.ID, poll.CreatedAt, data)
	if err != nil {
		return nil, err
	}
	return []ports.EventEnvelope{envelope}, nil
}

func normalizeOptions(raw []string) []string {
	options := make([]string, 0, len(raw))
	for _, option := range raw {
		if label := strings.TrimSpace(option); label != "" {
			options = append(options, label)
		}
	}
	return options
}

func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func normalizeGate(gate *entities.AssetGate) (*entities.AssetGate, error) {
	if gate == nil || strings.TrimSpace(gate.AssetID) == "" {
		return nil, nil
	}
	out := &entities.AssetGate{AssetID: strings.TrimSpace(gate.AssetID), MinBalance: new(big.Int)}
	if gate.MinBalance != nil {
		if gate.MinBalance.Sign() < 0 {
			return nil, domainerrors.ErrInvalidAmount
		}
		out.MinBalance.Set(gate.MinBalance)
	}
	return out, nil
}
