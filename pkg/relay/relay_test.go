package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hestia-iot/ntnrelay/internal/adapters/simdriver"
	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/pkg/relay"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

func fastConfig(t *testing.T) relay.Config {
	t.Helper()
	cfg := relay.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.Mode = relay.ModeNIDD
	cfg.ReadinessInterval = 10 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.DownlinkInterval = 10 * time.Millisecond
	cfg.SendTimeout = time.Second
	return cfg
}

func newRelay(t *testing.T, cfg relay.Config, drv relay.Driver, opts ...relay.Option) *relay.Relay {
	t.Helper()
	r, err := relay.New(cfg, drv, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func queueLen(t *testing.T, r *relay.Relay) int {
	t.Helper()
	n, err := r.QueueLen()
	require.NoError(t, err)
	return n
}

type depthRecorder struct {
	depth  atomic.Int64
	states atomic.Int64
	reads  atomic.Int64
}

func (d *depthRecorder) OnStateChange(_, _ app.State, _ string)  { d.states.Add(1) }
func (d *depthRecorder) OnReadiness(domain.ReadinessSnapshot)    { d.reads.Add(1) }
func (d *depthRecorder) OnQueueDepth(n int)                      { d.depth.Store(int64(n)) }
func (d *depthRecorder) OnUplink(app.UplinkResult)               {}
func (d *depthRecorder) OnDownlink(domain.DownlinkMessage, bool) {}
func (d *depthRecorder) OnLockTimeout(string)                    {}

func TestRelay_QueuesWhileNotReadyThenDrainsInOrder(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	r := newRelay(t, fastConfig(t), drv)
	require.NoError(t, r.Start(context.Background()))

	var ids []string
	for i := 1; i <= 3; i++ {
		id, err := r.CaptureNow(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, queueLen(t, r))
	assert.Empty(t, r.HistorySnapshot().Uplink)
	assert.Zero(t, drv.SendCalls())

	drv.SetReady()

	require.Eventually(t, func() bool { return queueLen(t, r) == 0 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(r.HistorySnapshot().Uplink) == 3 }, waitFor, tick)

	up := r.HistorySnapshot().Uplink
	for i, rec := range up {
		assert.Equal(t, ids[i], rec.ItemID)
		assert.Equal(t, domain.OutcomeSent, rec.Outcome)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i+1), string(rec.Payload))
	}
	sent := drv.Sent()
	require.Len(t, sent, 3)
	assert.JSONEq(t, `{"n":1}`, string(sent[0]))
	assert.JSONEq(t, `{"n":3}`, string(sent[2]))
}

func TestRelay_DownlinkTriggerQueuesAutoCapture(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	r := newRelay(t, fastConfig(t), drv)
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, drv.PushDownlinkJSON(map[string]any{"timeperiods": 300}))

	require.Eventually(t, func() bool { return len(r.HistorySnapshot().Downlink) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return queueLen(t, r) == 1 }, waitFor, tick)

	msg := r.HistorySnapshot().Downlink[0]
	assert.Contains(t, msg.Decoded, "timeperiods")

	items, err := r.QueueSnapshot(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.SourceAuto, items[0].Source)

	var m domain.Measurement
	require.NoError(t, json.Unmarshal(items[0].Payload, &m))
	assert.Equal(t, "timeperiods", m.Trigger)
	assert.Equal(t, "001010123456789", m.Network.IMSI)
}

func TestRelay_DownlinkWithoutTriggerQueuesNothing(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	r := newRelay(t, fastConfig(t), drv)
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, drv.PushDownlinkJSON(map[string]any{"hello": "world"}))
	require.Eventually(t, func() bool { return len(r.HistorySnapshot().Downlink) == 1 }, waitFor, tick)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, queueLen(t, r))
}

func TestRelay_DropsAfterMaxAttempts(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	fail := fmt.Errorf("%w: no ack", domain.ErrTransmitFailure)
	drv.SetSendError(fail)
	drv.SetReady()

	r := newRelay(t, fastConfig(t), drv)
	_, err := r.CaptureNow(json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return queueLen(t, r) == 0 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(r.HistorySnapshot().Uplink) == 1 }, waitFor, tick)

	rec := r.HistorySnapshot().Uplink[0]
	assert.Equal(t, domain.OutcomeDropped, rec.Outcome)
	assert.Equal(t, 3, rec.Attempts)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, drv.SendCalls())
}

func TestRelay_ConcurrentCaptures(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	r := newRelay(t, fastConfig(t), drv)
	require.NoError(t, r.Start(context.Background()))

	const n = 16
	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		timeout atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.CaptureNow(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrLockTimeout):
				timeout.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	require.NoError(t, drv.PushDownlinkJSON(map[string]any{"gpstype": 1}))
	wg.Wait()

	require.Eventually(t, func() bool { return queueLen(t, r) == int(ok.Load())+1 }, waitFor, tick)
	assert.EqualValues(t, n, ok.Load()+timeout.Load())

	items, err := r.QueueSnapshot(100)
	require.NoError(t, err)
	auto := 0
	for _, it := range items {
		assert.True(t, json.Valid(it.Payload))
		if it.Source == domain.SourceAuto {
			auto++
		}
	}
	assert.Equal(t, 1, auto)
}

func TestRelay_StartStopIdempotent(t *testing.T) {
	r := newRelay(t, fastConfig(t), simdriver.New(domain.ModeNIDD))

	assert.NoError(t, r.Stop())
	assert.Equal(t, relay.StateStopped, r.Status())

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, relay.StateRunning, r.Status())

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	assert.Equal(t, relay.StateStopped, r.Status())

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, relay.StateRunning, r.Status())
	require.NoError(t, r.Close())
	assert.Equal(t, relay.StateStopped, r.Status())
	assert.Error(t, r.Start(context.Background()))
}

func TestRelay_ReadinessAndSample(t *testing.T) {
	drv := simdriver.New(domain.ModeUDP)
	cfg := fastConfig(t)
	cfg.Mode = relay.ModeAuto
	r := newRelay(t, cfg, drv)

	assert.False(t, r.ReadinessSnapshot().AllReady)
	drv.SetReady()
	require.NoError(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return r.ReadinessSnapshot().AllReady }, waitFor, tick)
	assert.Equal(t, relay.ModeUDP, r.ReadinessSnapshot().Mode)

	require.NoError(t, r.Stop())
	_, err := r.CaptureSample(context.Background(), json.RawMessage(`{"note":"manual"}`))
	require.NoError(t, err)

	items, err := r.QueueSnapshot(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.SourceManual, items[0].Source)

	var m domain.Measurement
	require.NoError(t, json.Unmarshal(items[0].Payload, &m))
	assert.True(t, m.AllReady)
	assert.Equal(t, "udp", m.Mode)
	assert.JSONEq(t, `{"note":"manual"}`, string(m.Extra))
}

func TestRelay_ClearQueueAndHistory(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)
	rec := &depthRecorder{}
	r := newRelay(t, fastConfig(t), drv, relay.WithEmitter(rec))

	for i := 0; i < 4; i++ {
		_, err := r.CaptureNow(json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, rec.depth.Load())

	items, err := r.QueueSnapshot(0)
	require.NoError(t, err)
	assert.Len(t, items, relay.DefaultSnapshotSize)

	n, err := r.ClearQueue()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, rec.depth.Load())

	require.NoError(t, r.ClearHistory(relay.ChannelUplink))
	assert.ErrorIs(t, r.ClearHistory(relay.Channel("sideband")), domain.ErrUnknownChannel)
}

func TestRelay_EmitterSeesLifecycleAndReadiness(t *testing.T) {
	rec := &depthRecorder{}
	r := newRelay(t, fastConfig(t), simdriver.New(domain.ModeNIDD), relay.WithEmitter(rec))

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.reads.Load() > 0 }, waitFor, tick)
	require.NoError(t, r.Stop())

	// Starting, Running, Stopping, Stopped.
	assert.EqualValues(t, 4, rec.states.Load())
}

func TestRelay_CaptureNowRejectsInvalidJSON(t *testing.T) {
	r := newRelay(t, fastConfig(t), simdriver.New(domain.ModeNIDD))

	_, err := r.CaptureNow(json.RawMessage(`{"n":`))
	assert.ErrorIs(t, err, domain.ErrDecode)
	assert.Zero(t, queueLen(t, r))
}

func TestRelay_QueueSurvivesRestart(t *testing.T) {
	cfg := fastConfig(t)
	drv := simdriver.New(domain.ModeNIDD)

	r1, err := relay.New(cfg, drv)
	require.NoError(t, err)
	id, err := r1.CaptureNow(json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2 := newRelay(t, cfg, drv)
	items, err := r2.QueueSnapshot(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
}

func TestNew_Errors(t *testing.T) {
	drv := simdriver.New(domain.ModeNIDD)

	_, err := relay.New(relay.DefaultConfig(), drv)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg := fastConfig(t)
	_, err = relay.New(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.StateDir = filepath.Join(blocker, "queue")
	_, err = relay.New(cfg, drv)
	assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
}
