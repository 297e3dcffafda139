package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// Default uplink settings.
const (
	DefaultUplinkInterval = 5 * time.Second
	DefaultMaxAttempts    = 3
	DefaultSendTimeout    = 30 * time.Second
)

// UplinkConfig configures an UplinkWorker.
type UplinkConfig struct {
	// Interval is the wait between cycles. Failed items are retried on the
	// next cycle with no further delay.
	Interval time.Duration

	// MaxAttempts is the number of failed sends after which an item is
	// dropped.
	MaxAttempts int

	// SendTimeout bounds one driver send.
	SendTimeout time.Duration
}

// UplinkHistory records uplink outcomes.
type UplinkHistory interface {
	PushUplink(r domain.UplinkRecord)
}

// UplinkWorker drains the queue one item per cycle while the dongle
// reports full readiness.
type UplinkWorker struct {
	cfg         UplinkConfig
	maxAttempts atomic.Int64

	queue     ports.Queue
	driver    ports.Driver
	readiness ReadinessSource
	history   UplinkHistory
	logger    ports.Logger
	emitter   PipelineEmitter
	now       func() time.Time

	// Failed sends of unrecordedID that MarkFailed could not persist.
	unrecordedID string
	unrecorded   int
}

// NewUplinkWorker creates a worker. A nil emitter is allowed.
func NewUplinkWorker(cfg UplinkConfig, queue ports.Queue, driver ports.Driver, readiness ReadinessSource, history UplinkHistory, logger ports.Logger, emitter PipelineEmitter) *UplinkWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultUplinkInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	w := &UplinkWorker{
		cfg:       cfg,
		queue:     queue,
		driver:    driver,
		readiness: readiness,
		history:   history,
		logger:    logger,
		emitter:   emitter,
		now:       time.Now,
	}
	w.maxAttempts.Store(int64(cfg.MaxAttempts))
	return w
}

// SetMaxAttempts changes the retry bound from the next cycle on.
func (w *UplinkWorker) SetMaxAttempts(n int) {
	if n <= 0 {
		return
	}
	w.maxAttempts.Store(int64(n))
}

// MaxAttempts returns the current retry bound.
func (w *UplinkWorker) MaxAttempts() int {
	return int(w.maxAttempts.Load())
}

// Run cycles every interval until ctx is canceled.
func (w *UplinkWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Cycle(ctx)
		}
	}
}

// Cycle checks readiness and sends at most one item. Cycles must not run
// concurrently.
func (w *UplinkWorker) Cycle(ctx context.Context) UplinkResult {
	result := w.cycle(ctx)
	w.emitter.OnUplink(result)
	return result
}

func (w *UplinkWorker) cycle(ctx context.Context) UplinkResult {
	if !w.readiness.Current().AllReady {
		return UplinkNotReady
	}

	item, ok, err := w.queue.PeekHead()
	if err != nil {
		w.queueError("peek", err)
		return UplinkError
	}
	if !ok {
		return UplinkIdle
	}
	if item.ID != w.unrecordedID {
		w.unrecordedID, w.unrecorded = "", 0
	}

	limit := w.MaxAttempts()
	prior := item.Attempts + w.unrecorded
	if prior >= limit {
		// An earlier drop did not reach the journal.
		return w.drop(item, prior)
	}

	start := w.now()
	err = w.send(ctx, item)
	if err == nil {
		if err := w.queue.Commit(item.ID); err != nil {
			w.queueError("commit", err)
			w.logger.Warn("sent item not committed, it will be sent again",
				ports.String("id", item.ID))
		}
		w.record(item, domain.OutcomeSent, prior+1)
		w.logger.Info("uplink sent",
			ports.String("id", item.ID),
			ports.String("source", string(item.Source)),
			ports.Duration("duration", w.now().Sub(start)),
		)
		return UplinkSent
	}

	if ctx.Err() != nil {
		// Shutting down mid-send does not count as an attempt.
		return UplinkError
	}

	attempts, merr := w.queue.MarkFailed(item.ID)
	switch {
	case errors.Is(merr, domain.ErrItemNotFound):
		return UplinkIdle
	case merr != nil:
		// Count the attempt in memory so the retry bound still holds.
		w.queueError("mark_failed", merr)
		w.unrecordedID = item.ID
		w.unrecorded++
		attempts = prior + 1
	default:
		attempts += w.unrecorded
	}

	rejected := errors.Is(err, domain.ErrTransmitRejected)
	w.logger.Warn("uplink send failed",
		ports.String("id", item.ID),
		ports.Int("attempts", attempts),
		ports.Int("max_attempts", limit),
		ports.Bool("rejected", rejected),
		ports.Err(err),
	)
	if rejected || attempts >= limit {
		return w.drop(item, attempts)
	}
	return UplinkRetry
}

// send calls the driver with a timeout. A driver panic becomes a
// transmit failure.
func (w *UplinkWorker) send(ctx context.Context, item domain.QueueItem) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", domain.ErrTransmitFailure, r)
		}
	}()
	return w.driver.Send(ctx, item.Payload)
}

func (w *UplinkWorker) drop(item domain.QueueItem, attempts int) UplinkResult {
	if err := w.queue.Drop(item.ID); err != nil {
		w.queueError("drop", err)
		return UplinkError
	}
	w.record(item, domain.OutcomeDropped, attempts)
	w.logger.Error("uplink item dropped",
		ports.String("id", item.ID),
		ports.Int("attempts", attempts),
	)
	return UplinkDropped
}

func (w *UplinkWorker) record(item domain.QueueItem, outcome domain.Outcome, attempts int) {
	w.history.PushUplink(domain.UplinkRecord{
		ItemID:   item.ID,
		Payload:  item.Payload,
		SentAt:   w.now().UTC(),
		Outcome:  outcome,
		Attempts: attempts,
		Source:   item.Source,
	})
}

func (w *UplinkWorker) queueError(op string, err error) {
	if errors.Is(err, domain.ErrLockTimeout) {
		w.emitter.OnLockTimeout(op)
		w.logger.Warn("queue busy, retrying next cycle", ports.String("op", op), ports.Err(err))
		return
	}
	w.logger.Error("queue operation failed", ports.String("op", op), ports.Err(err))
}
