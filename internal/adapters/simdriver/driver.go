// Package simdriver provides an in-memory NTN dongle. It is used by the
// daemon's simulate mode and by tests that need a scriptable driver.
package simdriver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// Driver is a simulated dongle. The zero value is not ready and has an
// empty inbox; use New.
type Driver struct {
	mu sync.Mutex

	status    uint16
	statusErr error
	mode      domain.Mode
	modeErr   error
	network   domain.NetworkInfo

	inbox       []string
	downlinkErr error

	sendScript []error
	sendErr    error
	sent       [][]byte
	sendCalls  int
}

var (
	_ ports.Driver            = (*Driver)(nil)
	_ ports.ServiceModeReader = (*Driver)(nil)
	_ ports.NetworkReader     = (*Driver)(nil)
)

// New returns a simulated dongle in the given mode with no status bits set.
func New(mode domain.Mode) *Driver {
	return &Driver{
		mode: mode,
		network: domain.NetworkInfo{
			IMSI: "001010123456789",
			SINR: "12",
			RSRP: "-95",
		},
	}
}

// SetStatus sets the raw status register and clears any status error.
func (d *Driver) SetStatus(raw uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = raw
	d.statusErr = nil
}

// SetReady sets every status bit required by the current mode.
func (d *Driver) SetReady() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = d.mode.RequiredMask()
	d.statusErr = nil
}

// SetStatusError makes ReadRegisters fail until SetStatus is called.
func (d *Driver) SetStatusError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusErr = err
}

// SetMode changes the reported service mode.
func (d *Driver) SetMode(mode domain.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

// SetModeError makes ServiceMode fail until cleared with nil.
func (d *Driver) SetModeError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modeErr = err
}

// SetNetwork replaces the reported network information.
func (d *Driver) SetNetwork(n domain.NetworkInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.network = n
}

// PushDownlinkHex queues a raw downlink message.
func (d *Driver) PushDownlinkHex(rawHex string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inbox = append(d.inbox, rawHex)
}

// PushDownlinkJSON encodes v as JSON, hex encodes it and queues it.
func (d *Driver) PushDownlinkJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.PushDownlinkHex(hex.EncodeToString(b))
	return nil
}

// SetDownlinkError makes ReadDownlink fail until cleared with nil.
func (d *Driver) SetDownlinkError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downlinkErr = err
}

// ScriptSends queues results for the next Send calls, in order.
// Once the script is exhausted Send uses the error set by SetSendError.
func (d *Driver) ScriptSends(results ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendScript = append(d.sendScript, results...)
}

// SetSendError sets the result of unscripted sends. nil means success.
func (d *Driver) SetSendError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendErr = err
}

// Sent returns copies of successfully sent payloads.
func (d *Driver) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	for i, p := range d.sent {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// SendCalls returns the number of Send calls, successful or not.
func (d *Driver) SendCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendCalls
}

// Send records payload unless the script or send error says otherwise.
func (d *Driver) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransmitFailure, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendCalls++

	err := d.sendErr
	if len(d.sendScript) > 0 {
		err = d.sendScript[0]
		d.sendScript = d.sendScript[1:]
	}
	if err != nil {
		return err
	}
	d.sent = append(d.sent, append([]byte(nil), payload...))
	return nil
}

// ReadRegisters returns the simulated status register.
func (d *Driver) ReadRegisters(ctx context.Context) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.statusErr != nil {
		return 0, d.statusErr
	}
	return d.status, nil
}

// ReadDownlink pops the oldest inbox message.
func (d *Driver) ReadDownlink(ctx context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.downlinkErr != nil {
		return "", false, d.downlinkErr
	}
	if len(d.inbox) == 0 {
		return "", false, nil
	}
	msg := d.inbox[0]
	d.inbox = d.inbox[1:]
	return msg, true, nil
}

// ServiceMode returns the simulated transport mode.
func (d *Driver) ServiceMode(ctx context.Context) (domain.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.modeErr != nil {
		return 0, d.modeErr
	}
	return d.mode, nil
}

// ReadNetworkInfo returns the simulated network information.
func (d *Driver) ReadNetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.network, nil
}
