package ports

import (
	"encoding/json"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// Queue is the durable FIFO of pending measurements.
// Every method that takes the queue lock may return an error wrapping
// domain.ErrLockTimeout.
type Queue interface {
	Enqueue(payload json.RawMessage, source domain.Source) (string, error)
	PeekHead() (domain.QueueItem, bool, error)
	Commit(id string) error
	MarkFailed(id string) (int, error)
	Drop(id string) error
	Clear() (int, error)
	Snapshot(n int) ([]domain.QueueItem, error)
}
