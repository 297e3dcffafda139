package relay

import (
	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/history"
	"github.com/hestia-iot/ntnrelay/internal/metrics"
	"github.com/hestia-iot/ntnrelay/internal/ports"
	"github.com/hestia-iot/ntnrelay/internal/readiness"
)

// Logger is the structured logger interface accepted by WithLogger.
type Logger = ports.Logger

// LogField is a key-value pair passed to Logger methods.
type LogField = ports.Field

// Driver is the dongle driver a Relay transmits through.
type Driver = ports.Driver

// Re-exported data types.
type (
	QueueItem         = domain.QueueItem
	ReadinessSnapshot = domain.ReadinessSnapshot
	HistorySnapshot   = history.Snapshot
	Channel           = domain.Channel
	Mode              = domain.Mode
	State             = app.State
)

// Lifecycle states.
const (
	StateStopped  = app.StateStopped
	StateStarting = app.StateStarting
	StateRunning  = app.StateRunning
	StateStopping = app.StateStopping
	StateCrashed  = app.StateCrashed
)

// Transport modes. ModeAuto reads the mode from the dongle.
const (
	ModeAuto = readiness.ModeAuto
	ModeNIDD = domain.ModeNIDD
	ModeUDP  = domain.ModeUDP
)

// History channels.
const (
	ChannelUplink   = domain.ChannelUplink
	ChannelDownlink = domain.ChannelDownlink
)

// Emitter receives every pipeline, lifecycle and readiness event plus
// queue depth changes. Calls are synchronous and must not block.
type Emitter interface {
	app.PipelineEmitter
	app.EventEmitter
	readiness.Observer
	OnQueueDepth(n int)
}

// Option configures a Relay.
type Option func(*options)

type options struct {
	logger   ports.Logger
	emitters []Emitter
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEmitter adds an event receiver. It may be given more than once.
func WithEmitter(e Emitter) Option {
	return func(o *options) {
		o.emitters = append(o.emitters, e)
	}
}

// WithMetrics publishes pipeline events to the Prometheus collectors.
func WithMetrics() Option {
	return WithEmitter(metrics.Emitter{})
}
