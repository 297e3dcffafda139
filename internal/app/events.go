package app

import "github.com/hestia-iot/ntnrelay/internal/domain"

// UplinkResult is the outcome of one uplink cycle.
type UplinkResult string

const (
	UplinkNotReady UplinkResult = "not_ready"
	UplinkIdle     UplinkResult = "idle"
	UplinkSent     UplinkResult = "sent"
	UplinkRetry    UplinkResult = "retry"
	UplinkDropped  UplinkResult = "dropped"
	UplinkError    UplinkResult = "error"
)

// PipelineEmitter receives pipeline events. Calls are synchronous from the
// loop goroutines and must not block. OnDownlink reports autoCaptured only
// when the triggered capture was enqueued in the same cycle.
type PipelineEmitter interface {
	OnUplink(result UplinkResult)
	OnDownlink(msg domain.DownlinkMessage, autoCaptured bool)
	OnLockTimeout(op string)
}

// ReadinessSource provides the latest readiness snapshot.
type ReadinessSource interface {
	Current() domain.ReadinessSnapshot
}

type nopEmitter struct{}

func (nopEmitter) OnUplink(UplinkResult)                   {}
func (nopEmitter) OnDownlink(domain.DownlinkMessage, bool) {}
func (nopEmitter) OnLockTimeout(string)                    {}
