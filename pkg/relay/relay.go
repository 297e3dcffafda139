package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	logAdapter "github.com/hestia-iot/ntnrelay/internal/adapters/log"
	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/history"
	"github.com/hestia-iot/ntnrelay/internal/ports"
	"github.com/hestia-iot/ntnrelay/internal/queue"
	"github.com/hestia-iot/ntnrelay/internal/readiness"
)

// DefaultSnapshotSize is the number of queue items QueueSnapshot returns
// when asked for n <= 0 by the web layer.
const DefaultSnapshotSize = 3

// Config holds the pipeline settings.
type Config struct {
	// StateDir holds the queue journal. Required.
	StateDir string

	// LockTimeout bounds every queue lock acquisition.
	// Default: 2 seconds
	LockTimeout time.Duration

	Mode Mode

	ReadinessInterval time.Duration
	PollInterval      time.Duration
	DownlinkInterval  time.Duration

	MaxAttempts int
	SendTimeout time.Duration
	TriggerKeys []string

	// HistoryCapacity bounds each history buffer. Default: 3.
	HistoryCapacity int
}

// DefaultConfig returns a Config with sensible default values.
// StateDir must be set before calling New.
func DefaultConfig() Config {
	return Config{
		LockTimeout:       queue.DefaultLockTimeout,
		Mode:              ModeAuto,
		ReadinessInterval: readiness.DefaultInterval,
		PollInterval:      app.DefaultUplinkInterval,
		DownlinkInterval:  app.DefaultDownlinkInterval,
		MaxAttempts:       app.DefaultMaxAttempts,
		SendTimeout:       app.DefaultSendTimeout,
		TriggerKeys:       app.DefaultTriggerKeys,
		HistoryCapacity:   history.DefaultCapacity,
	}
}

// Relay is the pipeline orchestrator. Use New() to create an instance,
// then Start() to run the background loops.
type Relay struct {
	cfg    Config
	logger ports.Logger
	emit   fanout

	driver    ports.Driver
	queue     *queue.Queue
	history   *history.History
	monitor   *readiness.Monitor
	sampler   *app.Sampler
	uplink    *app.UplinkWorker
	downlink  *app.DownlinkListener
	lifecycle *app.Lifecycle

	mu     sync.Mutex
	closed bool
}

// New opens the queue and wires the pipeline. The relay is created in
// StateStopped. Failing to open the queue is fatal and returned here.
func New(cfg Config, driver Driver, opts ...Option) (*Relay, error) {
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("%w: state dir is required", domain.ErrInvalidConfig)
	}
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", domain.ErrInvalidConfig)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}

	q, err := queue.Open(cfg.StateDir, queue.Options{
		LockTimeout: cfg.LockTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:     cfg,
		logger:  logger,
		emit:    fanout(o.emitters),
		driver:  driver,
		queue:   q,
		history: history.New(cfg.HistoryCapacity),
	}
	events := pipelineEvents{fanout: r.emit, r: r}

	r.lifecycle = app.NewLifecycle(logger, r.emit)
	r.monitor = readiness.NewMonitor(readiness.Config{
		Interval: cfg.ReadinessInterval,
		Mode:     cfg.Mode,
	}, driver, logger, r.emit)
	r.sampler = app.NewSampler(r.monitor, driver, logger)
	r.uplink = app.NewUplinkWorker(app.UplinkConfig{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.MaxAttempts,
		SendTimeout: cfg.SendTimeout,
	}, q, driver, r.monitor, r.history, logger, events)
	r.downlink = app.NewDownlinkListener(app.DownlinkConfig{
		Interval:    cfg.DownlinkInterval,
		TriggerKeys: cfg.TriggerKeys,
	}, driver, q, r.sampler, r.history, logger, events)

	r.publishDepth()
	return r, nil
}

// Start runs the readiness monitor, uplink worker and downlink listener.
// Calling Start on a running relay is a no-op. The loops stop when ctx
// is canceled or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("%w: relay closed", domain.ErrQueueUnavailable)
	}
	if !r.lifecycle.CanStart() {
		return nil
	}
	if err := r.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.lifecycle.SetCancel(cancel)

	r.lifecycle.Go(runCtx, "readiness", r.monitor.Run)
	r.lifecycle.Go(runCtx, "uplink", r.uplink.Run)
	r.lifecycle.Go(runCtx, "downlink", r.downlink.Run)

	return r.lifecycle.TransitionTo(app.StateRunning, "loops started")
}

// Stop cancels the loops and waits for them to exit. Calling Stop on a
// stopped relay is a no-op. Returns domain.ErrShutdownTimeout if a loop
// does not exit within app.ShutdownTimeout.
func (r *Relay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Relay) stopLocked() error {
	if !r.lifecycle.CanStop() {
		return nil
	}
	if err := r.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		return err
	}
	r.lifecycle.Cancel()

	err := r.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
	if err != nil {
		_ = r.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}
	_ = r.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	return nil
}

// Close stops the relay and releases the queue lock file.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	stopErr := r.stopLocked()
	r.closed = true
	return errors.Join(stopErr, r.queue.Close())
}

// Status returns the current lifecycle state.
func (r *Relay) Status() State {
	return r.lifecycle.State()
}

// CaptureNow enqueues a manual measurement. payload must be valid JSON.
// A busy queue returns domain.ErrLockTimeout; the capture is not retried.
func (r *Relay) CaptureNow(payload json.RawMessage) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid JSON", domain.ErrDecode)
	}
	return r.enqueue(payload, domain.SourceManual)
}

// CaptureSample builds a measurement from the current readiness and
// network context and enqueues it as a manual capture. extra, if set, is
// carried in the measurement verbatim.
func (r *Relay) CaptureSample(ctx context.Context, extra json.RawMessage) (string, error) {
	payload, err := r.sampler.Sample(ctx, domain.SourceManual, "", extra)
	if err != nil {
		return "", err
	}
	return r.enqueue(payload, domain.SourceManual)
}

func (r *Relay) enqueue(payload json.RawMessage, source domain.Source) (string, error) {
	id, err := r.queue.Enqueue(payload, source)
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			r.emit.OnLockTimeout("enqueue")
		}
		return "", err
	}
	r.logger.Info("capture queued", ports.String("id", id), ports.String("source", string(source)))
	r.publishDepth()
	return id, nil
}

// QueueSnapshot returns up to n of the oldest queued items.
func (r *Relay) QueueSnapshot(n int) ([]QueueItem, error) {
	if n <= 0 {
		n = DefaultSnapshotSize
	}
	return r.queue.Snapshot(n)
}

// QueueLen returns the number of queued items.
func (r *Relay) QueueLen() (int, error) {
	return r.queue.Len()
}

// ClearQueue removes every queued item and returns the count removed.
func (r *Relay) ClearQueue() (int, error) {
	n, err := r.queue.Clear()
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			r.emit.OnLockTimeout("clear")
		}
		return 0, err
	}
	r.logger.Info("queue cleared", ports.Int("removed", n))
	r.publishDepth()
	return n, nil
}

// HistorySnapshot returns copies of both history buffers.
func (r *Relay) HistorySnapshot() HistorySnapshot {
	return r.history.Snapshot()
}

// ClearHistory empties one history buffer.
func (r *Relay) ClearHistory(ch Channel) error {
	return r.history.Clear(ch)
}

// ReadinessSnapshot returns the latest readiness snapshot.
func (r *Relay) ReadinessSnapshot() ReadinessSnapshot {
	return r.monitor.Current()
}

// SetMaxAttempts changes the retry bound from the next uplink cycle on.
func (r *Relay) SetMaxAttempts(n int) {
	r.uplink.SetMaxAttempts(n)
}

// SetTriggerKeys replaces the auto-capture trigger keys.
func (r *Relay) SetTriggerKeys(keys []string) {
	r.downlink.SetTriggerKeys(keys)
}

func (r *Relay) publishDepth() {
	if len(r.emit) == 0 {
		return
	}
	n, err := r.queue.Len()
	if err != nil {
		r.logger.Debug("queue depth unavailable", ports.Err(err))
		return
	}
	r.emit.OnQueueDepth(n)
}
