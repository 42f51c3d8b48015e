package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	application "agora/contexts/governance/polling-ledger/application"
	"agora/contexts/governance/polling-ledger/domain/entities"
	"agora/contexts/governance/polling-ledger/ports"
)

// SnapshotWriter serializes the ledger under a shared lock and hands the
// bytes to a snapshot store.
type SnapshotWriter struct {
	Ledger    ports.LedgerStore
	Snapshots ports.SnapshotStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (w SnapshotWriter) RunOnce(ctx context.Context) (ports.SnapshotRecord, error) {
	logger := application.ResolveLogger(w.Logger)
	var record ports.SnapshotRecord
	err := w.Ledger.View(ctx, func(state *entities.State) error {
		payload, err := json.Marshal(state)
		if err != nil {
			return err
		}
		record.Payload = payload
		record.PollCount = len(state.Polls)
		return nil
	})
	if err != nil {
		logger.Error("ledger snapshot encode failed",
			"event", "ledger_snapshot_encode_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return ports.SnapshotRecord{}, err
	}
	snapshotID, err := w.IDGen.NewID(ctx)
	if err != nil {
		return ports.SnapshotRecord{}, err
	}
	record.SnapshotID = snapshotID
	record.TakenAt = resolveNow(w.Clock)
	if err := w.Snapshots.SaveSnapshot(ctx, record); err != nil {
		logger.Error("ledger snapshot save failed",
			"event", "ledger_snapshot_save_failed",
			"module", "governance/polling-ledger",
			"layer", "worker",
			"snapshot_id", record.SnapshotID,
			"error", err.Error(),
		)
		return ports.SnapshotRecord{}, err
	}
	logger.Info("ledger snapshot saved",
		"event", "ledger_snapshot_saved",
		"module", "governance/polling-ledger",
		"layer", "worker",
		"snapshot_id", record.SnapshotID,
		"poll_count", record.PollCount,
		"bytes", len(record.Payload),
	)
	return record, nil
}

// RestoreState decodes a snapshot payload into a ledger state.
func RestoreState(record ports.SnapshotRecord) (*entities.State, error) {
	var state entities.State
	if err := json.Unmarshal(record.Payload, &state); err != nil {
		return nil, err
	}
	state.EnsureMaps()
	return &state, nil
}
