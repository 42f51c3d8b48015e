package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	pollingledger "agora/contexts/governance/polling-ledger"
	"agora/contexts/governance/polling-ledger/adapters/memory"
	sqliteadapter "agora/contexts/governance/polling-ledger/adapters/sqlite"
	"agora/contexts/governance/polling-ledger/application/workers"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/internal/platform/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const keepSnapshots = 20

// pinnedNow fixes the ledger clock. Tests set it; nil means wall-clock time.
var pinnedNow func() time.Time

type session struct {
	local  *sqliteadapter.Store
	store  *memory.Store
	module pollingledger.Module
	policy entities.Policy
	logger *slog.Logger
}

// withLedger opens the ledger, runs fn and closes it again. Writes are
// persisted only when fn succeeds.
func withLedger(cmd *cobra.Command, write bool, fn func(ctx context.Context, s *session) error) error {
	if write && strings.TrimSpace(callerID) == "" {
		return errors.New("--as is required for this command")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.local.Close()

	if err := fn(ctx, s); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.persist(ctx)
}

func openSession(ctx context.Context, stderr io.Writer) (*session, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	policy := entities.DefaultPolicy()
	if strings.TrimSpace(policyPath) != "" {
		loaded, err := config.LoadPolicyFile(policyPath, policy)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}

	local, err := sqliteadapter.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(balancesPath) != "" {
		if err := loadBalances(ctx, local, balancesPath); err != nil {
			_ = local.Close()
			return nil, err
		}
	}

	now := time.Now().UTC()
	if pinnedNow != nil {
		now = pinnedNow().UTC()
	}
	state := entities.NewState(policy, now)
	record, ok, err := local.LoadLatestSnapshot(ctx)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	if ok {
		restored, err := workers.RestoreState(record)
		if err != nil {
			_ = local.Close()
			return nil, fmt.Errorf("restore snapshot %s: %w", record.SnapshotID, err)
		}
		state = restored
	}

	store := memory.NewStore(state)
	if pinnedNow != nil {
		store.SetNow(now)
	}
	module := pollingledger.NewModule(pollingledger.Dependencies{
		Ledger:                store,
		Balances:              local,
		Outbox:                store,
		Publisher:             local,
		Dedup:                 store,
		Snapshots:             local,
		Gateway:               store,
		Clock:                 store,
		IDGen:                 store,
		Policy:                policy,
		DisablePayoutConsumer: true,
		Logger:                logger,
	})
	module.Store = store
	return &session{local: local, store: store, module: module, policy: policy, logger: logger}, nil
}

// persist snapshots the ledger and journals the events the command emitted.
func (s *session) persist(ctx context.Context) error {
	if _, err := s.module.Snapshots.RunOnce(ctx); err != nil {
		return err
	}
	for {
		published, err := s.module.Relay.RunOnce(ctx)
		if err != nil {
			return err
		}
		if published == 0 {
			break
		}
	}
	if _, err := s.local.PruneSnapshots(ctx, keepSnapshots); err != nil {
		return err
	}
	return nil
}

// loadBalances upserts a YAML book of account -> asset -> whole-token amount.
//
//	alice:
//	  AGORA: "2500"
//	bob:
//	  AGORA: "12.5"
func loadBalances(ctx context.Context, local *sqliteadapter.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read balance book: %w", err)
	}
	var book map[string]map[string]string
	if err := yaml.Unmarshal(raw, &book); err != nil {
		return fmt.Errorf("decode balance book: %w", err)
	}

	accounts := make([]string, 0, len(book))
	for account := range book {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		for asset, amount := range book[account] {
			value, err := parseTokens(amount)
			if err != nil {
				return fmt.Errorf("balance %s/%s: %w", account, asset, err)
			}
			if err := local.SetBalance(ctx, account, asset, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseTokens converts a decimal token amount into base units.
func parseTokens(raw string) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid token amount %q", raw)
	}
	value.Mul(value, new(big.Rat).SetInt(entities.TokenUnit()))
	if !value.IsInt() {
		return nil, fmt.Errorf("token amount %q has more than 18 decimals", raw)
	}
	return new(big.Int).Set(value.Num()), nil
}

func formatTokens(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(amount, entities.TokenUnit(), new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	digits := frac.String()
	digits = strings.Repeat("0", entities.TokenDecimals-len(digits)) + digits
	return whole.String() + "." + strings.TrimRight(digits, "0")
}
