package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"agora/contexts/governance/polling-ledger/ports"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	taken_at    DATETIME NOT NULL,
	poll_count  INTEGER NOT NULL,
	payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_snapshots_taken_at ON ledger_snapshots(taken_at);

CREATE TABLE IF NOT EXISTS ledger_events (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL UNIQUE,
	topic         TEXT NOT NULL,
	partition_key TEXT NOT NULL,
	occurred_at   DATETIME NOT NULL,
	payload       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_topic ON ledger_events(topic);

CREATE TABLE IF NOT EXISTS ledger_balances (
	account  TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	amount   TEXT NOT NULL,
	PRIMARY KEY (account, asset_id)
);
`

// Store is a single-file ledger home for local tooling. It keeps state
// snapshots, a journal of published events and a token balance book.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the database at path. ":memory:" is accepted.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite ledger schema: %w", err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) SaveSnapshot(ctx context.Context, record ports.SnapshotRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_snapshots (snapshot_id, taken_at, poll_count, payload) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(record.SnapshotID),
		record.TakenAt.UTC(),
		record.PollCount,
		record.Payload,
	)
	if err != nil {
		return s.logError("ledger_sqlite_save_snapshot_failed", err, "snapshot_id", record.SnapshotID)
	}
	return nil
}

func (s *Store) LoadLatestSnapshot(ctx context.Context) (ports.SnapshotRecord, bool, error) {
	var record ports.SnapshotRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_id, taken_at, poll_count, payload FROM ledger_snapshots ORDER BY taken_at DESC, rowid DESC LIMIT 1`,
	).Scan(&record.SnapshotID, &record.TakenAt, &record.PollCount, &record.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.SnapshotRecord{}, false, nil
	}
	if err != nil {
		return ports.SnapshotRecord{}, false, s.logError("ledger_sqlite_load_snapshot_failed", err)
	}
	record.TakenAt = record.TakenAt.UTC()
	return record, true, nil
}

// PruneSnapshots keeps the newest keep snapshots and reports how many were removed.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger_snapshots WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM ledger_snapshots ORDER BY taken_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, s.logError("ledger_sqlite_prune_snapshots_failed", err, "keep", keep)
	}
	return result.RowsAffected()
}

// Publish appends an event to the journal. Republishing an event id is a no-op.
func (s *Store) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_events (event_id, topic, partition_key, occurred_at, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID,
		strings.TrimSpace(topic),
		event.PartitionKey,
		event.OccurredAt.UTC(),
		payload,
	)
	if err != nil {
		return s.logError("ledger_sqlite_publish_failed", err, "event_id", event.EventID, "topic", topic)
	}
	return nil
}

// ListEvents returns journaled events in publish order, optionally for one topic.
func (s *Store) ListEvents(ctx context.Context, topic string, limit int) ([]ports.EventEnvelope, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT payload FROM ledger_events ORDER BY seq ASC LIMIT ?`
	args := []any{limit}
	if topic = strings.TrimSpace(topic); topic != "" {
		query = `SELECT payload FROM ledger_events WHERE topic = ? ORDER BY seq ASC LIMIT ?`
		args = []any{topic, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.logError("ledger_sqlite_list_events_failed", err, "topic", topic)
	}
	defer rows.Close()

	items := make([]ports.EventEnvelope, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event ports.EventEnvelope
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode journaled event: %w", err)
		}
		items = append(items, event)
	}
	return items, rows.Err()
}

// SetBalance records an account's holding of assetID in base units.
func (s *Store) SetBalance(ctx context.Context, account string, assetID string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("balance for %s/%s must be non-negative", account, assetID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_balances (account, asset_id, amount) VALUES (?, ?, ?)
		 ON CONFLICT(account, asset_id) DO UPDATE SET amount = excluded.amount`,
		strings.TrimSpace(account),
		strings.TrimSpace(assetID),
		amount.String(),
	)
	if err != nil {
		return s.logError("ledger_sqlite_set_balance_failed", err, "account", account, "asset_id", assetID)
	}
	return nil
}

// BalanceOf reports zero for unknown holdings.
func (s *Store) BalanceOf(ctx context.Context, account string, assetID string) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM ledger_balances WHERE account = ? AND asset_id = ?`,
		strings.TrimSpace(account),
		strings.TrimSpace(assetID),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, s.logError("ledger_sqlite_balance_failed", err, "account", account, "asset_id", assetID)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("stored balance for %s/%s is not an integer: %q", account, assetID, raw)
	}
	return amount, nil
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := append([]any{
		"event", event,
		"module", "governance/polling-ledger",
		"layer", "adapter",
		"error", err.Error(),
	}, attrs...)
	s.logger.Error("ledger sqlite operation failed", fields...)
	return err
}

var _ ports.SnapshotStore = (*Store)(nil)
var _ ports.EventPublisher = (*Store)(nil)
var _ ports.BalanceOracle = (*Store)(nil)
