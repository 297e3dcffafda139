package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/history"
	"github.com/hestia-iot/ntnrelay/internal/ports"
	"github.com/hestia-iot/ntnrelay/internal/queue"
)

// staticReadiness is a ReadinessSource the test flips by hand.
type staticReadiness struct {
	mu   sync.Mutex
	snap domain.ReadinessSnapshot
}

func newReadiness(ready bool) *staticReadiness {
	r := &staticReadiness{}
	r.set(ready)
	return r
}

func (r *staticReadiness) set(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw := uint16(0)
	if ready {
		raw = domain.ModeNIDD.RequiredMask()
	}
	r.snap = domain.NewReadinessSnapshot(raw, domain.ModeNIDD, time.Now())
}

func (r *staticReadiness) Current() domain.ReadinessSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// busyQueue fails selected operations with a lock timeout.
type busyQueue struct {
	ports.Queue
	mu   sync.Mutex
	busy map[string]bool
}

func (b *busyQueue) setBusy(op string, busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy == nil {
		b.busy = map[string]bool{}
	}
	b.busy[op] = busy
}

func (b *busyQueue) isBusy(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy[op]
}

func (b *busyQueue) Enqueue(p json.RawMessage, s domain.Source) (string, error) {
	if b.isBusy("enqueue") {
		return "", domain.ErrLockTimeout
	}
	return b.Queue.Enqueue(p, s)
}

func (b *busyQueue) PeekHead() (domain.QueueItem, bool, error) {
	if b.isBusy("peek") {
		return domain.QueueItem{}, false, domain.ErrLockTimeout
	}
	return b.Queue.PeekHead()
}

func (b *busyQueue) MarkFailed(id string) (int, error) {
	if b.isBusy("mark_failed") {
		return 0, domain.ErrLockTimeout
	}
	return b.Queue.MarkFailed(id)
}

func (b *busyQueue) Drop(id string) error {
	if b.isBusy("drop") {
		return domain.ErrLockTimeout
	}
	return b.Queue.Drop(id)
}

type countingEmitter struct {
	mu           sync.Mutex
	uplinks      []UplinkResult
	downlinks    int
	autoCaptures int
	lockTimeouts int
}

func (c *countingEmitter) OnUplink(r UplinkResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uplinks = append(c.uplinks, r)
}

func (c *countingEmitter) OnDownlink(_ domain.DownlinkMessage, auto bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downlinks++
	if auto {
		c.autoCaptures++
	}
}

func (c *countingEmitter) OnLockTimeout(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lockTimeouts++
}

func openQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir(), queue.Options{LockTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func newHistory() *history.History {
	return history.New(history.DefaultCapacity)
}
