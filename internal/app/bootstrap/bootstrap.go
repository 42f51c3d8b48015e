package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	pollingledger "agora/contexts/governance/polling-ledger"
	"agora/contexts/governance/polling-ledger/adapters/memory"
	postgresadapter "agora/contexts/governance/polling-ledger/adapters/postgres"
	sqliteadapter "agora/contexts/governance/polling-ledger/adapters/sqlite"
	"agora/contexts/governance/polling-ledger/application/workers"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/internal/platform/config"
	"agora/internal/platform/db"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/messaging"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	outboxBatchSize = 100
	payoutDedupTTL  = 7 * 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

type APIApp struct {
	server   *httpserver.Server
	ledger   *ledgerRuntime
	embedded *workerLoop
	logger   *slog.Logger
}

type WorkerApp struct {
	ledger *ledgerRuntime
	loop   *workerLoop
	logger *slog.Logger
}

// ledgerRuntime owns the module and every handle it was built from.
type ledgerRuntime struct {
	module   pollingledger.Module
	postgres *db.Postgres
	sqlite   *sqliteadapter.Store
	bus      *messaging.Kafka
	durable  bool
}

type workerLoop struct {
	module           pollingledger.Module
	pollInterval     time.Duration
	snapshotInterval time.Duration
	sweep            bool
	snapshot         bool
	logger           *slog.Logger
}

// BuildAPI wires the HTTP process. Without POSTGRES_DSN the ledger lives in
// memory, restored from the newest SQLite snapshot, and the API process runs
// the background workers itself.
func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	ledger, err := buildLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &APIApp{
		server: httpserver.New(ledger.module, logger, normalizeAddr(cfg.HTTPPort)),
		ledger: ledger,
		logger: logger,
	}
	if !ledger.durable {
		app.embedded = newWorkerLoop(cfg, ledger.module, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	ledger, err := buildLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		ledger: ledger,
		loop:   newWorkerLoop(cfg, ledger.module, logger),
		logger: logger,
	}, nil
}

func buildLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ledgerRuntime, error) {
	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	sqlitePath := strings.TrimSpace(cfg.SQLitePath)
	if sqlitePath == "" {
		sqlitePath = ":memory:"
	}
	local, err := sqliteadapter.Open(sqlitePath, logger)
	if err != nil {
		return nil, err
	}

	runtime := &ledgerRuntime{sqlite: local, bus: bus}
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		if err := runtime.wirePostgres(ctx, cfg, logger); err != nil {
			_ = local.Close()
			return nil, err
		}
		return runtime, nil
	}
	if err := runtime.wireMemory(ctx, cfg, logger); err != nil {
		_ = local.Close()
		return nil, err
	}
	return runtime, nil
}

func (r *ledgerRuntime) wirePostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultPoolOptions())
	if err != nil {
		return err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		_ = pg.Close()
		return err
	}
	clock := postgresadapter.SystemClock{}
	seeded, err := repo.EnsureState(ctx, entities.NewState(cfg.Policy, clock.Now()))
	if err != nil {
		_ = pg.Close()
		return err
	}
	if seeded {
		logger.Info("ledger state seeded",
			"event", "bootstrap_ledger_seeded",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	r.postgres = pg
	r.durable = true
	r.module = pollingledger.NewModule(pollingledger.Dependencies{
		Ledger:                repo,
		Balances:              r.sqlite,
		Outbox:                repo,
		Publisher:             r.bus,
		Subscriber:            r.bus,
		Dedup:                 repo,
		Snapshots:             repo,
		Gateway:               repo,
		Clock:                 clock,
		IDGen:                 postgresadapter.UUIDGenerator{},
		Policy:                cfg.Policy,
		OutboxBatchSize:       outboxBatchSize,
		PayoutDedupTTL:        payoutDedupTTL,
		DisablePayoutConsumer: !cfg.EnablePayoutConsumer,
		Logger:                logger,
	})
	return nil
}

func (r *ledgerRuntime) wireMemory(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	state := entities.NewState(cfg.Policy, time.Now().UTC())
	record, ok, err := r.sqlite.LoadLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if ok {
		restored, err := workers.RestoreState(record)
		if err != nil {
			return err
		}
		state = restored
		logger.Info("ledger restored from snapshot",
			"event", "bootstrap_ledger_restored",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"snapshot_id", record.SnapshotID,
			"poll_count", record.PollCount,
		)
	}

	store := memory.NewStore(state)
	r.module = pollingledger.NewModule(pollingledger.Dependencies{
		Ledger:                store,
		Balances:              r.sqlite,
		Outbox:                store,
		Publisher:             r.bus,
		Subscriber:            r.bus,
		Dedup:                 store,
		Snapshots:             r.sqlite,
		Gateway:               store,
		Clock:                 store,
		IDGen:                 store,
		Policy:                cfg.Policy,
		OutboxBatchSize:       outboxBatchSize,
		PayoutDedupTTL:        payoutDedupTTL,
		DisablePayoutConsumer: !cfg.EnablePayoutConsumer,
		Logger:                logger,
	})
	r.module.Store = store
	return nil
}

func (r *ledgerRuntime) close() error {
	var errs []error
	if r.postgres != nil {
		errs = append(errs, r.postgres.Close())
	}
	if r.sqlite != nil {
		errs = append(errs, r.sqlite.Close())
	}
	if r.bus != nil {
		r.bus.Wait()
	}
	return errors.Join(errs...)
}

func newWorkerLoop(cfg config.Config, module pollingledger.Module, logger *slog.Logger) *workerLoop {
	return &workerLoop{
		module:           module,
		pollInterval:     cfg.WorkerPollInterval,
		snapshotInterval: cfg.SnapshotInterval,
		sweep:            cfg.EnableExpirySweeper,
		snapshot:         cfg.EnableSnapshots,
		logger:           logger,
	}
}

func (a *APIApp) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if a.embedded != nil {
		eg.Go(func() error {
			return a.embedded.run(egCtx)
		})
	}
	eg.Go(a.server.Start)
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"embedded_workers", a.embedded != nil,
	)

	runErr := eg.Wait()
	if a.embedded == nil {
		return runErr
	}
	// Persist whatever the in-memory ledger holds before the process exits.
	snapshotCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if _, err := a.embedded.module.Snapshots.RunOnce(snapshotCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (a *APIApp) Close() error {
	if a.ledger != nil {
		return a.ledger.close()
	}
	return nil
}

// Run blocks until ctx is done. Subscriptions end with it, so Close can
// wait for them.
func (w *WorkerApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return w.loop.run(ctx)
}

func (w *WorkerApp) Close() error {
	if w.ledger != nil {
		return w.ledger.close()
	}
	return nil
}

func (l *workerLoop) run(ctx context.Context) error {
	if err := l.module.Payouts.Start(ctx); err != nil {
		return err
	}

	interval := l.pollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("worker loop started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", interval.String(),
		"snapshot_interval", l.snapshotInterval.String(),
	)

	var lastSnapshot time.Time
	for {
		if err := l.cycle(ctx, &lastSnapshot); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *workerLoop) cycle(ctx context.Context, lastSnapshot *time.Time) error {
	if l.sweep {
		if _, err := l.module.Sweeper.RunOnce(ctx); err != nil {
			return err
		}
	}
	if _, err := l.module.Relay.RunOnce(ctx); err != nil {
		return err
	}
	if l.snapshot && time.Since(*lastSnapshot) >= l.snapshotInterval {
		if _, err := l.module.Snapshots.RunOnce(ctx); err != nil {
			return err
		}
		*lastSnapshot = time.Now()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
