package pollingledger

import (
	"log/slog"
	"time"

	httpadapter "agora/contexts/governance/polling-ledger/adapters/http"
	"agora/contexts/governance/polling-ledger/adapters/memory"
	"agora/contexts/governance/polling-ledger/application/commands"
	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/application/workers"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/contexts/governance/polling-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store

	Relay     workers.OutboxRelay
	Snapshots workers.SnapshotWriter
	Sweeper   workers.ExpirySweeper
	Payouts   workers.PayoutConsumer
}

type Dependencies struct {
	Ledger     ports.LedgerStore
	Balances   ports.BalanceOracle
	Outbox     ports.OutboxRepository
	Publisher  ports.EventPublisher
	Subscriber ports.EventSubscriber
	Dedup      ports.EventDedupStore
	Snapshots  ports.SnapshotStore
	Gateway    ports.PayoutGateway
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Policy     entities.Policy

	OutboxBatchSize       int
	PayoutDedupTTL        time.Duration
	DisablePayoutConsumer bool
	PayoutConsumerGroup   string
	Logger                *slog.Logger
}

func NewModule(deps Dependencies) Module {
	runtime := commands.Runtime{
		Store:    deps.Ledger,
		Balances: deps.Balances,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Policy:   deps.Policy,
		Logger:   deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Polls:      commands.PollUseCase{Runtime: runtime},
			Votes:      commands.VoteUseCase{Runtime: runtime},
			Lifecycle:  commands.LifecycleUseCase{Runtime: runtime},
			Delegation: commands.DelegationUseCase{Runtime: runtime},
			Templates:  commands.TemplateUseCase{Runtime: runtime},
			Rewards:    commands.RewardUseCase{Runtime: runtime},
			Admin:      commands.AdminUseCase{Runtime: runtime},
			Queries: queries.QueryUseCase{
				Store:  deps.Ledger,
				Clock:  deps.Clock,
				Policy: deps.Policy,
			},
			Logger: deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
		Snapshots: workers.SnapshotWriter{
			Ledger:    deps.Ledger,
			Snapshots: deps.Snapshots,
			Clock:     deps.Clock,
			IDGen:     deps.IDGen,
			Logger:    deps.Logger,
		},
		Sweeper: workers.ExpirySweeper{
			Ledger: deps.Ledger,
			Clock:  deps.Clock,
			IDGen:  deps.IDGen,
			Logger: deps.Logger,
		},
		Payouts: workers.PayoutConsumer{
			Subscriber:    deps.Subscriber,
			Dedup:         deps.Dedup,
			Gateway:       deps.Gateway,
			Clock:         deps.Clock,
			ConsumerGroup: deps.PayoutConsumerGroup,
			DedupTTL:      deps.PayoutDedupTTL,
			Disabled:      deps.DisablePayoutConsumer,
			Logger:        deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to a single memory store. The event
// bus is left to the caller; set Relay.Publisher and Payouts.Subscriber
// before running those workers.
func NewInMemoryModule(state *entities.State, policy entities.Policy, logger *slog.Logger) Module {
	if state == nil {
		state = entities.NewState(policy, time.Now().UTC())
	}
	store := memory.NewStore(state)
	module := NewModule(Dependencies{
		Ledger:         store,
		Balances:       store,
		Outbox:         store,
		Dedup:          store,
		Snapshots:      store,
		Gateway:        store,
		Clock:          store,
		IDGen:          store,
		Policy:         policy,
		PayoutDedupTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
