package relay

import (
	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// fanout forwards events to every registered emitter.
type fanout []Emitter

func (f fanout) OnUplink(result app.UplinkResult) {
	for _, e := range f {
		e.OnUplink(result)
	}
}

func (f fanout) OnDownlink(msg domain.DownlinkMessage, autoCaptured bool) {
	for _, e := range f {
		e.OnDownlink(msg, autoCaptured)
	}
}

func (f fanout) OnLockTimeout(op string) {
	for _, e := range f {
		e.OnLockTimeout(op)
	}
}

func (f fanout) OnStateChange(previous, current app.State, reason string) {
	for _, e := range f {
		e.OnStateChange(previous, current, reason)
	}
}

func (f fanout) OnReadiness(s domain.ReadinessSnapshot) {
	for _, e := range f {
		e.OnReadiness(s)
	}
}

func (f fanout) OnQueueDepth(n int) {
	for _, e := range f {
		e.OnQueueDepth(n)
	}
}

// pipelineEvents republishes the queue depth after events that can
// change it.
type pipelineEvents struct {
	fanout
	r *Relay
}

func (p pipelineEvents) OnUplink(result app.UplinkResult) {
	p.fanout.OnUplink(result)
	if result == app.UplinkSent || result == app.UplinkDropped {
		p.r.publishDepth()
	}
}

func (p pipelineEvents) OnDownlink(msg domain.DownlinkMessage, autoCaptured bool) {
	p.fanout.OnDownlink(msg, autoCaptured)
	if autoCaptured {
		p.r.publishDepth()
	}
}
