package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	defaultLedgerID = "default"
)

// Repository persists the whole ledger state as one JSON document per
// ledger id. Update locks that row, so state and outbox rows commit in the
// same transaction.
type Repository struct {
	db       *gorm.DB
	ledgerID string
	logger   *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:       db,
		ledgerID: defaultLedgerID,
		logger:   logger,
	}
}

// AutoMigrate creates the ledger tables when they are missing.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(
		&ledgerStateModel{},
		&outboxModel{},
		&eventDedupModel{},
		&snapshotModel{},
		&payoutModel{},
	)
	if err != nil {
		return r.logError("ledger_repo_migrate_failed", err)
	}
	return nil
}

// EnsureState stores seed unless a state document already exists. It
// reports whether seed was written.
func (r *Repository) EnsureState(ctx context.Context, seed *entities.State) (bool, error) {
	payload, err := json.Marshal(seed)
	if err != nil {
		return false, r.logError("ledger_repo_seed_marshal_failed", err)
	}
	row := ledgerStateModel{
		LedgerID:  r.ledgerID,
		Payload:   payload,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ledger_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("ledger_repo_seed_failed", create.Error, "ledger_id", r.ledgerID)
	}
	return create.RowsAffected > 0, nil
}

func (r *Repository) Update(ctx context.Context, fn ports.Mutation) error {
	var rejected error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ledgerStateModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("ledger_id = ?", r.ledgerID).
			First(&row).Error; err != nil {
			return err
		}
		state, err := decodeState(row.Payload)
		if err != nil {
			return err
		}
		events, err := fn(state)
		if err != nil {
			rejected = err
			return err
		}
		payload, err := json.Marshal(state)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		result := tx.Model(&ledgerStateModel{}).
			Where("ledger_id = ? AND version = ?", r.ledgerID, row.Version).
			Updates(map[string]any{
				"payload":    payload,
				"version":    row.Version + 1,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrConflict
		}
		for _, envelope := range events {
			outboxRow, err := outboxRowFromEnvelope(envelope, now)
			if err != nil {
				return err
			}
			if err := tx.Create(&outboxRow).Error; err != nil {
				if isUniqueViolation(err) {
					return domainerrors.ErrConflict
				}
				return err
			}
		}
		return nil
	})
	if err == nil || rejected != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = fmt.Errorf("%w: ledger state %q is not initialised", domainerrors.ErrDependencyUnavailable, r.ledgerID)
	}
	return r.logError("ledger_repo_update_failed", err, "ledger_id", r.ledgerID)
}

func (r *Repository) View(ctx context.Context, fn func(state *entities.State) error) error {
	var row ledgerStateModel
	if err := r.db.WithContext(ctx).
		Where("ledger_id = ?", r.ledgerID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: ledger state %q is not initialised", domainerrors.ErrDependencyUnavailable, r.ledgerID)
		}
		return r.logError("ledger_repo_view_failed", err, "ledger_id", r.ledgerID)
	}
	state, err := decodeState(row.Payload)
	if err != nil {
		return r.logError("ledger_repo_view_decode_failed", err, "ledger_id", r.ledgerID)
	}
	return fn(state)
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("ledger_repo_reserve_event_failed", create.Error,
			"event_id", row.EventID,
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash", "expires_at").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("ledger_repo_reserve_event_load_existing_failed", err,
			"event_id", row.EventID,
		)
	}
	if existing.ExpiresAt.Before(row.ProcessedAt) {
		refresh := r.db.WithContext(ctx).
			Model(&eventDedupModel{}).
			Where("event_id = ?", row.EventID).
			Updates(map[string]any{
				"payload_hash": row.PayloadHash,
				"expires_at":   row.ExpiresAt,
				"processed_at": row.ProcessedAt,
			})
		if refresh.Error != nil {
			return false, r.logError("ledger_repo_reserve_event_refresh_failed", refresh.Error,
				"event_id", row.EventID,
			)
		}
		return false, nil
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) SaveSnapshot(ctx context.Context, record ports.SnapshotRecord) error {
	row := snapshotModel{
		SnapshotID: strings.TrimSpace(record.SnapshotID),
		LedgerID:   r.ledgerID,
		TakenAt:    record.TakenAt.UTC(),
		PollCount:  record.PollCount,
		Payload:    record.Payload,
	}
	if row.SnapshotID == "" {
		row.SnapshotID = uuid.NewString()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_save_snapshot_failed", create.Error, "snapshot_id", row.SnapshotID)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing snapshotModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("snapshot_id = ?", row.SnapshotID).
		First(&existing).Error; err != nil {
		return r.logError("ledger_repo_save_snapshot_load_existing_failed", err, "snapshot_id", row.SnapshotID)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) LoadLatestSnapshot(ctx context.Context) (ports.SnapshotRecord, bool, error) {
	var row snapshotModel
	err := r.db.WithContext(ctx).
		Where("ledger_id = ?", r.ledgerID).
		Order("taken_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SnapshotRecord{}, false, nil
		}
		if isUndefinedTable(err) {
			return ports.SnapshotRecord{}, false, nil
		}
		return ports.SnapshotRecord{}, false, r.logError("ledger_repo_load_snapshot_failed", err)
	}
	return ports.SnapshotRecord{
		SnapshotID: row.SnapshotID,
		TakenAt:    row.TakenAt.UTC(),
		PollCount:  row.PollCount,
		Payload:    append([]byte(nil), row.Payload...),
	}, true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/polling-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

func decodeState(payload []byte) (*entities.State, error) {
	var state entities.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode ledger state: %w", err)
	}
	state.EnsureMaps()
	return &state, nil
}

func outboxRowFromEnvelope(envelope ports.EventEnvelope, now time.Time) (outboxModel, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return outboxModel{}, err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	return row, nil
}

type ledgerStateModel struct {
	LedgerID  string    `gorm:"column:ledger_id;primaryKey"`
	Payload   []byte    `gorm:"column:payload;type:jsonb"`
	Version   int64     `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ledgerStateModel) TableName() string {
	return "polling_ledger_state"
}

type outboxModel struct {
	Seq          int64      `gorm:"column:seq;autoIncrement"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "polling_ledger_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "polling_ledger_event_dedup"
}

type snapshotModel struct {
	SnapshotID string    `gorm:"column:snapshot_id;primaryKey"`
	LedgerID   string    `gorm:"column:ledger_id;index"`
	TakenAt    time.Time `gorm:"column:taken_at;index"`
	PollCount  int       `gorm:"column:poll_count"`
	Payload    []byte    `gorm:"column:payload"`
}

func (snapshotModel) TableName() string {
	return "polling_ledger_snapshots"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

var _ ports.LedgerStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
var _ ports.SnapshotStore = (*Repository)(nil)
