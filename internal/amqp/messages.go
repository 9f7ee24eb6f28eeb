package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"farmledger/internal/core"
)

// Op says what happened to the ledger row.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// LedgerSyncMessage asks the worker to mirror one revenue or expense row.
// It carries identifiers only; the worker reads the row itself so a stale
// message never overwrites a newer edit.
type LedgerSyncMessage struct {
	Kind      core.LedgerKind `json:"kind"`
	ID        string          `json:"id"`
	FarmID    string          `json:"farm_id"`
	Op        Op              `json:"op"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewUpsertMessage(kind core.LedgerKind, id, farmID string, version int64) LedgerSyncMessage {
	return LedgerSyncMessage{Kind: kind, ID: id, FarmID: farmID, Op: OpUpsert, Version: version, Timestamp: time.Now().UTC()}
}

func NewDeleteMessage(kind core.LedgerKind, id, farmID string) LedgerSyncMessage {
	return LedgerSyncMessage{Kind: kind, ID: id, FarmID: farmID, Op: OpDelete, Timestamp: time.Now().UTC()}
}

func (m LedgerSyncMessage) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown ledger kind %q", m.Kind)
	}
	if m.ID == "" {
		return fmt.Errorf("missing ledger id")
	}
	if m.Op != OpUpsert && m.Op != OpDelete {
		return fmt.Errorf("unknown op %q", m.Op)
	}
	return nil
}

func (m LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerSyncMessageFromJSON decodes and validates a message body.
func LedgerSyncMessageFromJSON(data []byte) (LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return LedgerSyncMessage{}, err
	}
	if err := msg.Validate(); err != nil {
		return LedgerSyncMessage{}, err
	}
	return msg, nil
}
