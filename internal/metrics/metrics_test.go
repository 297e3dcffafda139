package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
)

func TestEmitter_Uplink(t *testing.T) {
	before := testutil.ToFloat64(UplinkCyclesTotal.WithLabelValues("sent"))
	Emitter{}.OnUplink(app.UplinkSent)
	assert.Equal(t, before+1, testutil.ToFloat64(UplinkCyclesTotal.WithLabelValues("sent")))
}

func TestEmitter_DownlinkAutoCapture(t *testing.T) {
	before := testutil.ToFloat64(AutoCapturesTotal)
	Emitter{}.OnDownlink(domain.DownlinkMessage{Decoded: map[string]any{"timeperiods": 1}}, true)
	Emitter{}.OnDownlink(domain.DownlinkMessage{}, false)
	assert.Equal(t, before+1, testutil.ToFloat64(AutoCapturesTotal))
}

func TestEmitter_Readiness(t *testing.T) {
	Emitter{}.OnReadiness(domain.NewReadinessSnapshot(0x1F, domain.ModeUDP, time.Now()))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReadinessFlag.WithLabelValues("socket_ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReadinessFlag.WithLabelValues("all_ready")))

	Emitter{}.OnReadiness(domain.NewReadinessSnapshot(0x0F, domain.ModeUDP, time.Now()))
	assert.Equal(t, 0.0, testutil.ToFloat64(ReadinessFlag.WithLabelValues("all_ready")))
}

func TestEmitter_StateChange(t *testing.T) {
	Emitter{}.OnStateChange(app.StateStarting, app.StateRunning, "test")
	assert.Equal(t, 2.0, testutil.ToFloat64(LifecycleState))
}
