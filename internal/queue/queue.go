package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// FileName is the journal file name inside the state directory.
const FileName = "queue.journal"

// Default option values.
const (
	DefaultLockTimeout = 2 * time.Second
	DefaultCompactMin  = 64
)

// Options configures a Queue.
type Options struct {
	// LockTimeout bounds every lock acquisition. Default: 2 seconds.
	LockTimeout time.Duration

	// CompactMin is the journal record count below which compaction is
	// never attempted. Default: 64.
	CompactMin int

	Logger ports.Logger
	Now    func() time.Time
}

// Queue is a journal-backed FIFO. It is safe for concurrent use by
// multiple goroutines and by multiple processes sharing the same directory.
type Queue struct {
	path        string
	lockTimeout time.Duration
	compactMin  int
	logger      ports.Logger
	now         func() time.Time

	sem  chan struct{}
	lock *fileLock

	// Guarded by sem.
	st   *state
	seen os.FileInfo
}

var _ ports.Queue = (*Queue)(nil)

// Open creates the state directory if needed and replays the journal.
// Any failure is wrapped in domain.ErrQueueUnavailable.
func Open(dir string, opts Options) (*Queue, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.CompactMin <= 0 {
		opts.CompactMin = DefaultCompactMin
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	path := filepath.Join(dir, FileName)
	lock, err := openFileLock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	q := &Queue{
		path:        path,
		lockTimeout: opts.LockTimeout,
		compactMin:  opts.CompactMin,
		logger:      opts.Logger,
		now:         opts.Now,
		sem:         make(chan struct{}, 1),
		lock:        lock,
		st:          newState(),
	}

	if err := q.withLock(func() error { return nil }); err != nil {
		lock.close()
		if errors.Is(err, domain.ErrLockTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	q.logger.Info("queue opened",
		ports.String("path", path),
		ports.Int("items", q.st.live()),
		ports.Int("records", q.st.records),
	)
	return q, nil
}

// Path returns the journal path.
func (q *Queue) Path() string {
	return q.path
}

// Close releases the lock file.
func (q *Queue) Close() error {
	return q.lock.close()
}

// Enqueue appends a new item and returns its id.
func (q *Queue) Enqueue(payload json.RawMessage, source domain.Source) (string, error) {
	if !source.Valid() {
		return "", fmt.Errorf("queue: invalid source %q", source)
	}
	item := domain.QueueItem{
		ID:         uuid.NewString(),
		Payload:    append(json.RawMessage(nil), payload...),
		EnqueuedAt: q.now().UTC(),
		Source:     source,
	}
	err := q.withLock(func() error {
		return q.write(record{Op: opEnqueue, Item: &item, At: item.EnqueuedAt})
	})
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// PeekHead returns the oldest item without removing it.
func (q *Queue) PeekHead() (domain.QueueItem, bool, error) {
	var (
		head domain.QueueItem
		ok   bool
	)
	err := q.withLock(func() error {
		if len(q.st.order) == 0 {
			return nil
		}
		head, ok = cloneItem(q.st.items[q.st.order[0]]), true
		return nil
	})
	return head, ok, err
}

// Commit removes an item after a confirmed send. Committing an id that is
// not queued is a no-op.
func (q *Queue) Commit(id string) error {
	return q.remove(id, reasonCommit)
}

// Drop removes an item without success. Dropping an id that is not queued
// is a no-op.
func (q *Queue) Drop(id string) error {
	return q.remove(id, reasonDrop)
}

func (q *Queue) remove(id, reason string) error {
	return q.withLock(func() error {
		if _, ok := q.st.items[id]; !ok {
			return nil
		}
		if err := q.write(record{Op: opRemove, ID: id, Reason: reason, At: q.now().UTC()}); err != nil {
			return err
		}
		q.maybeCompact()
		return nil
	})
}

// MarkFailed increments the attempt counter and returns the new value.
func (q *Queue) MarkFailed(id string) (int, error) {
	var attempts int
	err := q.withLock(func() error {
		it, ok := q.st.items[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
		}
		attempts = it.Attempts + 1
		return q.write(record{Op: opAttempt, ID: id, Attempts: attempts, At: q.now().UTC()})
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// Clear empties the queue and returns the number of items removed.
func (q *Queue) Clear() (int, error) {
	var n int
	err := q.withLock(func() error {
		n = q.st.live()
		if err := rewrite(q.path, nil, q.now().UTC()); err != nil {
			return fmt.Errorf("clear journal: %w", err)
		}
		q.st = newState()
		return q.markSeen()
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Snapshot returns up to n items in FIFO order. n <= 0 returns all items.
func (q *Queue) Snapshot(n int) ([]domain.QueueItem, error) {
	var out []domain.QueueItem
	err := q.withLock(func() error {
		count := q.st.live()
		if n > 0 && n < count {
			count = n
		}
		out = make([]domain.QueueItem, 0, count)
		for _, id := range q.st.order[:count] {
			out = append(out, cloneItem(q.st.items[id]))
		}
		return nil
	})
	return out, err
}

// Len returns the number of queued items.
func (q *Queue) Len() (int, error) {
	var n int
	err := q.withLock(func() error {
		n = q.st.live()
		return nil
	})
	return n, err
}

// withLock runs fn holding the in-process semaphore and the file lock.
// Both are acquired within lockTimeout of the call.
func (q *Queue) withLock(fn func() error) error {
	deadline := time.Now().Add(q.lockTimeout)
	timer := time.NewTimer(q.lockTimeout)
	defer timer.Stop()

	select {
	case q.sem <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: after %s", domain.ErrLockTimeout, q.lockTimeout)
	}
	defer func() { <-q.sem }()

	if err := q.lock.acquire(deadline); err != nil {
		return err
	}
	defer func() {
		if err := q.lock.release(); err != nil {
			q.logger.Warn("queue unlock failed", ports.Err(err))
		}
	}()

	if err := q.refresh(); err != nil {
		return err
	}
	return fn()
}

// refresh replays the journal when it differs from the last version this
// process saw.
func (q *Queue) refresh() error {
	fi, err := os.Stat(q.path)
	if errors.Is(err, os.ErrNotExist) {
		if q.seen != nil || q.st.records > 0 {
			q.st = newState()
		}
		q.seen = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	if q.seen != nil && os.SameFile(fi, q.seen) && fi.Size() == q.seen.Size() && fi.ModTime().Equal(q.seen.ModTime()) {
		return nil
	}

	data, err := os.ReadFile(q.path)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	st, good, err := replay(data)
	if err != nil {
		q.logger.Warn("truncating torn journal tail",
			ports.String("path", q.path),
			ports.Int("good_bytes", good),
			ports.Int("dropped_bytes", len(data)-good),
			ports.Err(err),
		)
		if err := os.Truncate(q.path, int64(good)); err != nil {
			return fmt.Errorf("truncate journal: %w", err)
		}
	}
	q.st = st
	return q.markSeen()
}

// write appends r to the journal and applies it to the in-memory state.
func (q *Queue) write(r record) error {
	b, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := appendRecord(q.path, b); err != nil {
		// Force a replay on the next call; the tail may be torn.
		q.seen = nil
		return fmt.Errorf("append journal: %w", err)
	}
	q.st.apply(r)
	return q.markSeen()
}

func (q *Queue) markSeen() error {
	fi, err := os.Stat(q.path)
	if err != nil {
		q.seen = nil
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat journal: %w", err)
	}
	q.seen = fi
	return nil
}

// maybeCompact rewrites the journal once dead records outnumber live ones.
// Failure leaves the journal as it was.
func (q *Queue) maybeCompact() {
	live := q.st.live()
	if q.st.records < q.compactMin || q.st.records-live <= live {
		return
	}
	items := make([]domain.QueueItem, 0, live)
	for _, id := range q.st.order {
		items = append(items, q.st.items[id])
	}
	before := q.st.records
	if err := rewrite(q.path, items, q.now().UTC()); err != nil {
		q.logger.Warn("journal compaction failed", ports.Err(err))
		return
	}
	q.st.records = live
	if err := q.markSeen(); err != nil {
		q.logger.Warn("journal stat after compaction failed", ports.Err(err))
	}
	q.logger.Debug("journal compacted",
		ports.Int("records_before", before),
		ports.Int("records_after", live),
	)
}

func cloneItem(it domain.QueueItem) domain.QueueItem {
	it.Payload = append(json.RawMessage(nil), it.Payload...)
	return it
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...ports.Field) {}
func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
