package ports

import (
	"context"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// Driver is the NTN dongle as seen by the pipeline.
// Implementations must be safe for concurrent use; the readiness monitor,
// uplink worker and downlink listener call it from separate goroutines.
type Driver interface {
	// Send transmits one payload uplink. Returns an error wrapping
	// domain.ErrTransmitFailure (retryable), domain.ErrTransmitRejected
	// (exhausted) or domain.ErrHardwareUnavailable.
	Send(ctx context.Context, payload []byte) error

	// ReadRegisters returns the raw module status bitmask.
	ReadRegisters(ctx context.Context) (uint16, error)

	// ReadDownlink returns the pending downlink text, hex encoded.
	// ok is false when no message is waiting.
	ReadDownlink(ctx context.Context) (rawHex string, ok bool, err error)
}

// ServiceModeReader is implemented by drivers that can report the
// transport mode configured on the dongle.
type ServiceModeReader interface {
	ServiceMode(ctx context.Context) (domain.Mode, error)
}

// NetworkReader is implemented by drivers that expose radio and GPS data.
type NetworkReader interface {
	ReadNetworkInfo(ctx context.Context) (domain.NetworkInfo, error)
}
