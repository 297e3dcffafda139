package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hestia-iot/ntnrelay/internal/adapters/simdriver"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

func TestMonitor_InitialSnapshotNotReady(t *testing.T) {
	m := NewMonitor(Config{Mode: domain.ModeNIDD}, simdriver.New(domain.ModeNIDD), mockLogger{}, nil)
	snap := m.Current()
	assert.False(t, snap.AllReady)
	assert.False(t, snap.Reported)
}

func TestMonitor_AllReadyPerMode(t *testing.T) {
	tests := []struct {
		name string
		mode domain.Mode
		raw  uint16
		want bool
	}{
		{"nidd all four", domain.ModeNIDD, 0x0F, true},
		{"nidd socket bit irrelevant", domain.ModeNIDD, 0x1F, true},
		{"nidd missing sim", domain.ModeNIDD, 0x0B, false},
		{"udp needs socket", domain.ModeUDP, 0x0F, false},
		{"udp all five", domain.ModeUDP, 0x1F, true},
		{"udp missing registration", domain.ModeUDP, 0x17, false},
		{"nothing", domain.ModeUDP, 0x00, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := simdriver.New(tt.mode)
			d.SetStatus(tt.raw)
			m := NewMonitor(Config{Mode: tt.mode}, d, mockLogger{}, nil)

			snap := m.PollOnce(context.Background())
			assert.Equal(t, tt.want, snap.AllReady)
			assert.Equal(t, snap, m.Current())
			assert.True(t, snap.Reported)
		})
	}
}

func TestMonitor_FlagFlipClearsAllReady(t *testing.T) {
	d := simdriver.New(domain.ModeUDP)
	d.SetReady()
	m := NewMonitor(Config{Mode: domain.ModeUDP}, d, mockLogger{}, nil)
	require.True(t, m.PollOnce(context.Background()).AllReady)

	for _, bit := range []uint16{
		domain.StatusATReady,
		domain.StatusIPOrDownlinkReady,
		domain.StatusSIMReady,
		domain.StatusNetworkRegistered,
		domain.StatusSocketReady,
	} {
		d.SetStatus(domain.ModeUDP.RequiredMask() &^ bit)
		assert.False(t, m.PollOnce(context.Background()).AllReady, "bit %#x", bit)
	}
}

func TestMonitor_DriverErrorReportsAllFalse(t *testing.T) {
	d := simdriver.New(domain.ModeNIDD)
	d.SetReady()
	m := NewMonitor(Config{Mode: domain.ModeNIDD}, d, mockLogger{}, nil)
	require.True(t, m.PollOnce(context.Background()).AllReady)

	d.SetStatusError(errors.New("serial: timeout"))
	snap := m.PollOnce(context.Background())
	assert.False(t, snap.AllReady)
	assert.False(t, snap.ATReady)
	assert.False(t, snap.SIMReady)
	assert.Contains(t, snap.Err, "hardware unavailable")

	d.SetReady()
	assert.True(t, m.PollOnce(context.Background()).AllReady)
}

// panicDriver panics from the register calls while armed.
type panicDriver struct {
	*simdriver.Driver
	mu    sync.Mutex
	armed bool
}

func (p *panicDriver) arm(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = v
}

func (p *panicDriver) isArmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

func (p *panicDriver) ReadRegisters(ctx context.Context) (uint16, error) {
	if p.isArmed() {
		panic("serial driver bug")
	}
	return p.Driver.ReadRegisters(ctx)
}

func (p *panicDriver) ServiceMode(ctx context.Context) (domain.Mode, error) {
	if p.isArmed() {
		panic("serial driver bug")
	}
	return p.Driver.ServiceMode(ctx)
}

func TestMonitor_DriverPanicReportsUnavailable(t *testing.T) {
	d := &panicDriver{Driver: simdriver.New(domain.ModeUDP)}
	d.SetReady()
	m := NewMonitor(Config{Mode: ModeAuto, FallbackMode: domain.ModeNIDD}, d, mockLogger{}, nil)

	snap := m.PollOnce(context.Background())
	require.True(t, snap.AllReady)
	assert.Equal(t, domain.ModeUDP, snap.Mode)

	d.arm(true)
	var got domain.ReadinessSnapshot
	require.NotPanics(t, func() { got = m.PollOnce(context.Background()) })
	assert.False(t, got.AllReady)
	assert.False(t, got.Reported)
	assert.Contains(t, got.Err, "driver panic")
	assert.Equal(t, domain.ModeUDP, got.Mode)
	assert.Equal(t, got, m.Current())

	d.arm(false)
	assert.True(t, m.PollOnce(context.Background()).AllReady)
}

func TestMonitor_AutoModeReadsDriver(t *testing.T) {
	d := simdriver.New(domain.ModeNIDD)
	d.SetStatus(0x0F)
	m := NewMonitor(Config{Mode: ModeAuto}, d, mockLogger{}, nil)

	snap := m.PollOnce(context.Background())
	assert.Equal(t, domain.ModeNIDD, snap.Mode)
	assert.True(t, snap.AllReady)

	d.SetMode(domain.ModeUDP)
	snap = m.PollOnce(context.Background())
	assert.Equal(t, domain.ModeUDP, snap.Mode)
	assert.False(t, snap.AllReady)
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []domain.ReadinessSnapshot
}

func (r *recordingObserver) OnReadiness(s domain.ReadinessSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	d := simdriver.New(domain.ModeNIDD)
	d.SetReady()
	obs := &recordingObserver{}
	m := NewMonitor(Config{Mode: domain.ModeNIDD, Interval: 10 * time.Millisecond}, d, mockLogger{}, obs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return obs.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, m.Current().AllReady)
}

func TestMonitor_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	d := simdriver.New(domain.ModeUDP)
	m := NewMonitor(Config{Mode: domain.ModeUDP}, d, mockLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for i := 0; ctx.Err() == nil; i++ {
			if i%2 == 0 {
				d.SetStatus(0x1F)
			} else {
				d.SetStatus(0x00)
			}
			m.PollOnce(ctx)
		}
	}()

	for i := 0; i < 1000; i++ {
		s := m.Current()
		if s.AllReady {
			require.True(t, s.ATReady && s.IPOrDownlinkReady && s.SIMReady && s.NetworkRegistered && s.SocketReady)
		}
		if s.Raw == 0 {
			require.False(t, s.AllReady)
		}
	}
}
