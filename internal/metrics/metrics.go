// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
)

var (
	// UplinkCyclesTotal counts uplink cycles by result
	UplinkCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntnrelay_uplink_cycles_total",
			Help: "Total number of uplink worker cycles by result",
		},
		[]string{"result"},
	)

	// DownlinkMessagesTotal counts inbound messages
	DownlinkMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntnrelay_downlink_messages_total",
			Help: "Total number of downlink messages received",
		},
		[]string{"decoded"},
	)

	// AutoCapturesTotal counts downlink-triggered captures
	AutoCapturesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntnrelay_auto_captures_total",
			Help: "Total number of captures triggered by downlink messages",
		},
	)

	// LockTimeoutsTotal counts queue lock timeouts by operation
	LockTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntnrelay_queue_lock_timeouts_total",
			Help: "Total number of queue lock acquisitions that timed out",
		},
		[]string{"op"},
	)

	// QueueDepth tracks items waiting in the queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntnrelay_queue_depth",
			Help: "Number of items waiting in the persistent queue",
		},
	)

	// ReadinessFlag tracks each readiness flag (0 or 1)
	ReadinessFlag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntnrelay_readiness_flag",
			Help: "Dongle readiness flags from the last status poll (1=set)",
		},
		[]string{"flag"},
	)

	// LifecycleState tracks the relay state (0=stopped, 1=starting, 2=running, 3=stopping, 4=crashed)
	LifecycleState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntnrelay_lifecycle_state",
			Help: "Current relay lifecycle state (0=stopped, 1=starting, 2=running, 3=stopping, 4=crashed)",
		},
	)
)

// Emitter feeds pipeline events into the collectors above.
type Emitter struct{}

var (
	_ app.PipelineEmitter = Emitter{}
	_ app.EventEmitter    = Emitter{}
)

func (Emitter) OnUplink(result app.UplinkResult) {
	UplinkCyclesTotal.WithLabelValues(string(result)).Inc()
}

func (Emitter) OnDownlink(msg domain.DownlinkMessage, autoCaptured bool) {
	decoded := "true"
	if msg.Decoded == nil {
		decoded = "false"
	}
	DownlinkMessagesTotal.WithLabelValues(decoded).Inc()
	if autoCaptured {
		AutoCapturesTotal.Inc()
	}
}

func (Emitter) OnLockTimeout(op string) {
	LockTimeoutsTotal.WithLabelValues(op).Inc()
}

func (Emitter) OnStateChange(_, current app.State, _ string) {
	LifecycleState.Set(float64(current))
}

// OnReadiness publishes the flags of a new snapshot.
func (Emitter) OnReadiness(s domain.ReadinessSnapshot) {
	for name, set := range s.Flags() {
		v := 0.0
		if set {
			v = 1
		}
		ReadinessFlag.WithLabelValues(name).Set(v)
	}
	all := 0.0
	if s.AllReady {
		all = 1
	}
	ReadinessFlag.WithLabelValues("all_ready").Set(all)
}

// OnQueueDepth records the current queue length.
func (Emitter) OnQueueDepth(n int) {
	SetQueueDepth(n)
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}
