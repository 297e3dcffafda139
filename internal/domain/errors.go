package domain

import "errors"

// Domain errors represent error conditions in the relay pipeline.
// They are returned wrapped by adapters and can be checked with errors.Is.
var (
	// ErrLockTimeout is returned when the queue lock cannot be acquired
	// within the configured bound. Callers may retry.
	ErrLockTimeout = errors.New("ntnrelay: queue lock timeout")

	// ErrQueueUnavailable is returned when the queue storage cannot be
	// created or opened. Fatal at start-up.
	ErrQueueUnavailable = errors.New("ntnrelay: queue storage unavailable")

	// ErrItemNotFound is returned when an id is no longer queued.
	ErrItemNotFound = errors.New("ntnrelay: queue item not found")

	// ErrHardwareUnavailable is returned when a driver call fails or times out.
	ErrHardwareUnavailable = errors.New("ntnrelay: hardware unavailable")

	// ErrDecode is returned when a downlink payload is not valid hex or JSON.
	ErrDecode = errors.New("ntnrelay: decode error")

	// ErrTransmitFailure is a retryable send failure.
	ErrTransmitFailure = errors.New("ntnrelay: transmit failure")

	// ErrTransmitRejected means the dongle refused the payload. The item is
	// treated as exhausted.
	ErrTransmitRejected = errors.New("ntnrelay: transmit rejected")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("ntnrelay: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("ntnrelay: invalid configuration")

	// ErrUnknownChannel is returned for a history channel other than uplink or downlink.
	ErrUnknownChannel = errors.New("ntnrelay: unknown history channel")
)
