package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source records who created a queue item.
type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceManual || s == SourceAuto
}

// QueueItem is a pending measurement record.
// Payload holds the JSON document transmitted uplink.
type QueueItem struct {
	ID         string          `json:"id" cbor:"id"`
	Payload    json.RawMessage `json:"payload" cbor:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at" cbor:"enqueued_at"`
	Attempts   int             `json:"attempts" cbor:"attempts"`
	Source     Source          `json:"source" cbor:"source"`
}

// String returns a short description for logging.
func (i QueueItem) String() string {
	return fmt.Sprintf("%s(%s, attempts=%d)", i.ID, i.Source, i.Attempts)
}
