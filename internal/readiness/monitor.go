// Package readiness polls the dongle status registers and publishes one
// consistent ReadinessSnapshot at a time.
package readiness

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// DefaultInterval is the status poll interval.
const DefaultInterval = 5 * time.Second

// ModeAuto asks the driver for the configured transport mode on every poll.
const ModeAuto domain.Mode = 0

// Config configures a Monitor.
type Config struct {
	Interval time.Duration

	// Mode is the transport mode. ModeAuto reads it from the driver when
	// the driver implements ports.ServiceModeReader and falls back to
	// FallbackMode otherwise.
	Mode         domain.Mode
	FallbackMode domain.Mode

	// PollTimeout bounds one driver round trip. Default: Interval.
	PollTimeout time.Duration
}

// Observer is notified after each snapshot is published.
type Observer interface {
	OnReadiness(s domain.ReadinessSnapshot)
}

// Monitor owns the current snapshot. Readers never see a partially
// updated value: each poll builds a new snapshot and swaps the pointer.
type Monitor struct {
	cfg      Config
	driver   ports.Driver
	logger   ports.Logger
	observer Observer
	now      func() time.Time

	current atomic.Pointer[domain.ReadinessSnapshot]
}

// NewMonitor returns a monitor whose initial snapshot is not ready.
func NewMonitor(cfg Config, driver ports.Driver, logger ports.Logger, observer Observer) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = cfg.Interval
	}
	if cfg.FallbackMode == ModeAuto {
		cfg.FallbackMode = domain.ModeUDP
	}
	m := &Monitor{
		cfg:      cfg,
		driver:   driver,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
	initial := domain.UnavailableSnapshot(m.initialMode(), time.Time{}, nil)
	m.current.Store(&initial)
	return m
}

func (m *Monitor) initialMode() domain.Mode {
	if m.cfg.Mode != ModeAuto {
		return m.cfg.Mode
	}
	return m.cfg.FallbackMode
}

// Current returns the latest published snapshot.
func (m *Monitor) Current() domain.ReadinessSnapshot {
	return *m.current.Load()
}

// Run polls immediately and then every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.PollOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce reads the status register and publishes a new snapshot.
// A driver failure publishes an all-false snapshot instead of returning.
func (m *Monitor) PollOnce(ctx context.Context) domain.ReadinessSnapshot {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PollTimeout)
	defer cancel()

	prev := m.Current()
	mode := m.resolveMode(ctx, prev.Mode)

	var snap domain.ReadinessSnapshot
	raw, err := m.readRegisters(ctx)
	if err != nil {
		snap = domain.UnavailableSnapshot(mode, m.now(), fmt.Errorf("%w: %v", domain.ErrHardwareUnavailable, err))
		if prev.Reported || prev.Err == "" {
			m.logger.Warn("readiness poll failed", ports.Err(err))
		}
	} else {
		snap = domain.NewReadinessSnapshot(raw, mode, m.now())
		if snap.AllReady != prev.AllReady || snap.Raw != prev.Raw || snap.Mode != prev.Mode {
			m.logger.Info("readiness changed",
				ports.String("mode", mode.String()),
				ports.Any("flags", snap.Flags()),
				ports.Bool("all_ready", snap.AllReady),
			)
		}
	}

	m.current.Store(&snap)
	if m.observer != nil {
		m.observer.OnReadiness(snap)
	}
	return snap
}

// resolveMode returns the configured mode, or asks the driver in auto mode.
// prev is kept when the driver cannot answer.
func (m *Monitor) resolveMode(ctx context.Context, prev domain.Mode) domain.Mode {
	if m.cfg.Mode != ModeAuto {
		return m.cfg.Mode
	}
	reader, ok := m.driver.(ports.ServiceModeReader)
	if !ok {
		return m.cfg.FallbackMode
	}
	mode, err := serviceMode(ctx, reader)
	if err != nil || (mode != domain.ModeNIDD && mode != domain.ModeUDP) {
		if prev == ModeAuto {
			return m.cfg.FallbackMode
		}
		return prev
	}
	return mode
}

// readRegisters calls the driver. A driver panic becomes an error.
func (m *Monitor) readRegisters(ctx context.Context) (raw uint16, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", domain.ErrHardwareUnavailable, r)
		}
	}()
	return m.driver.ReadRegisters(ctx)
}

func serviceMode(ctx context.Context, reader ports.ServiceModeReader) (mode domain.Mode, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", domain.ErrHardwareUnavailable, r)
		}
	}()
	return reader.ServiceMode(ctx)
}
