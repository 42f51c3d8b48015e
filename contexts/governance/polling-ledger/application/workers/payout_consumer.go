package workers

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "agora/contexts/governance/polling-ledger/application"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"
)

const (
	rewardsClaimedTopic  = "rewards.claimed"
	defaultPayoutGroup   = "polling-ledger-payout-cg"
	defaultPayoutDedupTT = 7 * 24 * time.Hour
)

// PayoutConsumer turns rewards.claimed events into external transfers,
// once per event id.
type PayoutConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Gateway       ports.PayoutGateway
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (c PayoutConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("payout consumer disabled by feature flag",
			"event", "ledger_payout_consumer_disabled",
			"module", "governance/polling-ledger",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultPayoutGroup
	}
	if err := c.Subscriber.Subscribe(ctx, rewardsClaimedTopic, group, c.handleRewardsClaimed); err != nil {
		logger.Error("payout consumer subscribe failed",
			"event", "ledger_payout_consumer_subscribe_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"topic", rewardsClaimedTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("payout consumer subscribed",
		"event", "ledger_payout_consumer_started",
		"module", "governance/polling-ledger",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c PayoutConsumer) handleRewardsClaimed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	now := resolveNow(c.Clock)
	ttl := c.DedupTTL
	if ttl <= 0 {
		ttl = defaultPayoutDedupTT
	}
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), now.Add(ttl))
	if err != nil {
		logger.Error("payout event dedupe failed",
			"event", "ledger_payout_dedupe_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if alreadyProcessed {
		logger.Debug("rewards.claimed replay skipped",
			"event", "ledger_payout_replayed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}

	var payload struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := event.DecodeData(&payload); err != nil {
		logger.Error("rewards.claimed payload decode failed",
			"event", "ledger_payout_decode_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(payload.Amount), 10)
	if !ok || amount.Sign() <= 0 || strings.TrimSpace(payload.Account) == "" {
		return domainerrors.ErrInvalidAmount
	}
	if err := c.Gateway.Transfer(ctx, strings.TrimSpace(payload.Account), amount, event.EventID); err != nil {
		logger.Error("reward payout transfer failed",
			"event", "ledger_payout_transfer_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"account", payload.Account,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("reward payout transferred",
		"event", "ledger_payout_transferred",
		"module", "governance/polling-ledger",
		"layer", "worker",
		"event_id", event.EventID,
		"account", payload.Account,
		"amount", amount.String(),
	)
	return nil
}
