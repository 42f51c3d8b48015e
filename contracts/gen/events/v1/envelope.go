package v1

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const SchemaVersion = 1

// Envelope is the canonical, versioned event envelope shared by the ledger
// outbox, the in-process bus and external consumers. Keep it backward compatible.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

var ErrInvalidEnvelope = errors.New("invalid event envelope")

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" || strings.TrimSpace(e.EventType) == "" {
		return ErrInvalidEnvelope
	}
	if e.SchemaVersion != SchemaVersion {
		return ErrInvalidEnvelope
	}
	return nil
}

// DecodeData unmarshals the payload into target.
func (e Envelope) DecodeData(target any) error {
	if len(e.Data) == 0 {
		return ErrInvalidEnvelope
	}
	return json.Unmarshal(e.Data, target)
}
