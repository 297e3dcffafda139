package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// Default downlink settings.
const (
	DefaultDownlinkInterval = time.Second
	maxPendingCaptures      = 8
)

// DefaultTriggerKeys are the decoded keys that cause an auto capture.
var DefaultTriggerKeys = []string{"timeperiods", "gpstype"}

// DownlinkConfig configures a DownlinkListener.
type DownlinkConfig struct {
	Interval    time.Duration
	TriggerKeys []string

	// PollTimeout bounds one driver read. Default: Interval.
	PollTimeout time.Duration
}

// DownlinkHistory records inbound messages.
type DownlinkHistory interface {
	PushDownlink(m domain.DownlinkMessage)
}

// DownlinkListener polls the dongle inbox, records every message and
// enqueues an auto capture when a decoded message carries a trigger key.
type DownlinkListener struct {
	cfg      DownlinkConfig
	triggers atomic.Pointer[[]string]

	driver  ports.Driver
	queue   ports.Queue
	sampler *Sampler
	history DownlinkHistory
	logger  ports.Logger
	emitter PipelineEmitter
	now     func() time.Time

	// Owned by the loop goroutine.
	pending     []json.RawMessage
	unreachable bool
}

// NewDownlinkListener creates a listener. A nil emitter is allowed.
func NewDownlinkListener(cfg DownlinkConfig, driver ports.Driver, queue ports.Queue, sampler *Sampler, history DownlinkHistory, logger ports.Logger, emitter PipelineEmitter) *DownlinkListener {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDownlinkInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = cfg.Interval
	}
	if len(cfg.TriggerKeys) == 0 {
		cfg.TriggerKeys = DefaultTriggerKeys
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	l := &DownlinkListener{
		cfg:     cfg,
		driver:  driver,
		queue:   queue,
		sampler: sampler,
		history: history,
		logger:  logger,
		emitter: emitter,
		now:     time.Now,
	}
	l.SetTriggerKeys(cfg.TriggerKeys)
	return l
}

// SetTriggerKeys replaces the trigger set from the next cycle on.
// An empty set is ignored.
func (l *DownlinkListener) SetTriggerKeys(keys []string) {
	if len(keys) == 0 {
		return
	}
	cp := append([]string(nil), keys...)
	l.triggers.Store(&cp)
}

// TriggerKeys returns the current trigger set.
func (l *DownlinkListener) TriggerKeys() []string {
	return append([]string(nil), (*l.triggers.Load())...)
}

// Run cycles every interval until ctx is canceled.
func (l *DownlinkListener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle retries pending auto captures, then reads at most one message.
// It returns the message when one was received.
func (l *DownlinkListener) Cycle(ctx context.Context) (domain.DownlinkMessage, bool) {
	l.flushPending()

	rawHex, ok, err := l.read(ctx)
	if err != nil {
		if !l.unreachable {
			l.logger.Warn("downlink poll failed", ports.Err(err))
		}
		l.unreachable = true
		return domain.DownlinkMessage{}, false
	}
	if l.unreachable {
		l.logger.Info("downlink poll recovered")
		l.unreachable = false
	}
	if !ok {
		return domain.DownlinkMessage{}, false
	}

	msg := DecodeDownlink(rawHex, l.now().UTC())
	l.history.PushDownlink(msg)
	if msg.Decoded == nil {
		l.logger.Warn("downlink decode failed",
			ports.String("raw_hex", rawHex),
			ports.String("error", msg.DecodeErr),
		)
		l.emitter.OnDownlink(msg, false)
		return msg, true
	}

	l.logger.Info("downlink received", ports.Any("decoded", msg.Decoded))

	key, hit := MatchTrigger(msg.Decoded, *l.triggers.Load())
	if !hit {
		l.emitter.OnDownlink(msg, false)
		return msg, true
	}

	payload, err := l.sampler.Sample(ctx, domain.SourceAuto, key, nil)
	if err != nil {
		l.logger.Error("auto capture sample failed", ports.String("trigger", key), ports.Err(err))
		l.emitter.OnDownlink(msg, false)
		return msg, true
	}
	l.emitter.OnDownlink(msg, l.capture(payload, key))
	return msg, true
}

// read calls the driver with a timeout. A driver panic becomes an error.
func (l *DownlinkListener) read(ctx context.Context) (rawHex string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.PollTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", domain.ErrHardwareUnavailable, r)
		}
	}()
	return l.driver.ReadDownlink(ctx)
}

// capture enqueues an auto capture and reports whether it reached the
// queue. A lock timeout defers the payload to the next cycle.
func (l *DownlinkListener) capture(payload json.RawMessage, trigger string) bool {
	id, err := l.queue.Enqueue(payload, domain.SourceAuto)
	if err == nil {
		l.logger.Info("auto capture queued", ports.String("id", id), ports.String("trigger", trigger))
		return true
	}
	if errors.Is(err, domain.ErrLockTimeout) {
		l.emitter.OnLockTimeout("enqueue")
		if len(l.pending) >= maxPendingCaptures {
			l.logger.Error("auto capture lost, pending captures full", ports.String("trigger", trigger))
			return false
		}
		l.pending = append(l.pending, payload)
		l.logger.Warn("queue busy, auto capture deferred",
			ports.String("trigger", trigger),
			ports.Int("pending", len(l.pending)),
		)
		return false
	}
	l.logger.Error("auto capture failed", ports.String("trigger", trigger), ports.Err(err))
	return false
}

// flushPending enqueues deferred auto captures, oldest first, stopping at
// the first lock timeout.
func (l *DownlinkListener) flushPending() {
	for len(l.pending) > 0 {
		id, err := l.queue.Enqueue(l.pending[0], domain.SourceAuto)
		if errors.Is(err, domain.ErrLockTimeout) {
			l.emitter.OnLockTimeout("enqueue")
			return
		}
		if err != nil {
			l.logger.Error("deferred auto capture failed", ports.Err(err))
		} else {
			l.logger.Info("deferred auto capture queued", ports.String("id", id))
		}
		l.pending = l.pending[1:]
	}
}

// Pending returns the number of deferred auto captures.
func (l *DownlinkListener) Pending() int {
	return len(l.pending)
}
