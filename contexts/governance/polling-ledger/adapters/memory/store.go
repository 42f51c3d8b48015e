package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       uint64
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

type Payout struct {
	Account   string
	Amount    *big.Int
	Reference string
}

// Store is the single-writer ledger. It also serves as clock, id generator,
// balance book, outbox, dedup, snapshot and payout double for tests and the CLI.
type Store struct {
	mu sync.RWMutex

	state      *entities.State
	outbox     map[string]outboxRecord
	outboxSeq  uint64
	eventDedup map[string]dedupRecord
	snapshots  []ports.SnapshotRecord

	auxMu    sync.RWMutex
	now      time.Time
	balances map[string]*big.Int
	payouts  []Payout
}

func NewStore(state *entities.State) *Store {
	if state == nil {
		state = entities.NewState(entities.DefaultPolicy(), time.Now().UTC())
	}
	state.EnsureMaps()
	return &Store{
		state:      state,
		outbox:     make(map[string]outboxRecord),
		eventDedup: make(map[string]dedupRecord),
		balances:   make(map[string]*big.Int),
	}
}

// Update runs fn against the ledger and stores its events. When fn or the
// outbox write fails, the ledger is restored to its state before fn ran.
func (s *Store) Update(ctx context.Context, fn ports.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint, err := json.Marshal(s.state)
	if err != nil {
		return err
	}
	events, err := fn(s.state)
	if err == nil {
		var rows []outboxRecord
		if rows, err = s.stageOutboxLocked(events); err == nil {
			s.commitOutboxLocked(rows)
			return nil
		}
	}
	if restoreErr := s.restoreLocked(checkpoint); restoreErr != nil {
		return errors.Join(err, restoreErr)
	}
	return err
}

func (s *Store) restoreLocked(checkpoint []byte) error {
	var restored entities.State
	if err := json.Unmarshal(checkpoint, &restored); err != nil {
		return err
	}
	restored.EnsureMaps()
	*s.state = restored
	return nil
}

func (s *Store) View(ctx context.Context, fn func(state *entities.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.stageOutboxLocked([]ports.EventEnvelope{envelope})
	if err != nil {
		return err
	}
	s.commitOutboxLocked(rows)
	return nil
}

// stageOutboxLocked builds the rows for events without writing them. A
// replayed event with an identical payload is skipped; a changed payload
// under a known event id is a conflict.
func (s *Store) stageOutboxLocked(events []ports.EventEnvelope) ([]outboxRecord, error) {
	rows := make([]outboxRecord, 0, len(events))
	staged := make(map[string][]byte, len(events))
	for _, envelope := range events {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, err
		}
		outboxID := strings.TrimSpace(envelope.EventID)
		if outboxID == "" {
			outboxID = uuid.NewString()
		}
		known, ok := staged[outboxID]
		if !ok {
			if existing, stored := s.outbox[outboxID]; stored {
				known, ok = existing.message.Payload, true
			}
		}
		if ok {
			if !bytes.Equal(known, payload) {
				return nil, domainerrors.ErrConflict
			}
			continue
		}
		staged[outboxID] = payload
		createdAt := envelope.OccurredAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		rows = append(rows, outboxRecord{
			message: ports.OutboxMessage{
				OutboxID:     outboxID,
				EventType:    strings.TrimSpace(envelope.EventType),
				PartitionKey: strings.TrimSpace(envelope.PartitionKey),
				Payload:      payload,
				CreatedAt:    createdAt,
			},
		})
	}
	return rows, nil
}

func (s *Store) commitOutboxLocked(rows []outboxRecord) {
	for _, row := range rows {
		s.outboxSeq++
		row.seq = s.outboxSeq
		s.outbox[row.message.OutboxID] = row
	}
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && s.Now().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) SaveSnapshot(_ context.Context, record ports.SnapshotRecord) error {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	record.Payload = append([]byte(nil), record.Payload...)
	s.snapshots = append(s.snapshots, record)
	return nil
}

func (s *Store) LoadLatestSnapshot(_ context.Context) (ports.SnapshotRecord, bool, error) {
	s.auxMu.RLock()
	defer s.auxMu.RUnlock()
	if len(s.snapshots) == 0 {
		return ports.SnapshotRecord{}, false, nil
	}
	return s.snapshots[len(s.snapshots)-1], true, nil
}

// SetNow pins the clock; a zero time restores wall-clock time.
func (s *Store) SetNow(now time.Time) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	s.now = now.UTC()
}

func (s *Store) Advance(d time.Duration) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	if s.now.IsZero() {
		s.now = time.Now().UTC()
	}
	s.now = s.now.Add(d)
}

func (s *Store) Now() time.Time {
	s.auxMu.RLock()
	defer s.auxMu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) SetBalance(account string, assetID string, amount *big.Int) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	s.balances[entities.HoldingKey(strings.TrimSpace(account), strings.TrimSpace(assetID))] = new(big.Int).Set(amount)
}

func (s *Store) BalanceOf(_ context.Context, account string, assetID string) (*big.Int, error) {
	s.auxMu.RLock()
	defer s.auxMu.RUnlock()
	balance, ok := s.balances[entities.HoldingKey(strings.TrimSpace(account), strings.TrimSpace(assetID))]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

func (s *Store) Transfer(_ context.Context, account string, amount *big.Int, reference string) error {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	s.payouts = append(s.payouts, Payout{
		Account:   account,
		Amount:    new(big.Int).Set(amount),
		Reference: reference,
	})
	return nil
}

func (s *Store) Payouts() []Payout {
	s.auxMu.RLock()
	defer s.auxMu.RUnlock()
	return append([]Payout(nil), s.payouts...)
}
