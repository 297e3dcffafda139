// Package modbus drives the NTN dongle over Modbus RTU.
//
// All reads use input registers (function code 4) and all writes use
// write-multiple-registers. Requests are serialized on one serial link.
// Any I/O error closes the link; the next call reconnects, gated by an
// exponential backoff, and re-sends the access password.
package modbus

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// Config holds serial link settings.
type Config struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	SlaveID  byte
	Timeout  time.Duration

	// Password is written to register 0 after every connect.
	Password []uint16

	// ResponsePoll is the wait between uplink response checks.
	// Default: 1 second.
	ResponsePoll time.Duration
}

// DefaultConfig returns the dongle's factory serial settings.
func DefaultConfig() Config {
	return Config{
		Port:         "/dev/ttyUSB0",
		BaudRate:     115200,
		DataBits:     8,
		Parity:       "N",
		StopBits:     1,
		SlaveID:      1,
		Timeout:      time.Second,
		Password:     []uint16{0, 0, 0, 0},
		ResponsePoll: time.Second,
	}
}

// Identity describes the dongle's MCU.
type Identity struct {
	Model     string `json:"model"`
	FWVersion string `json:"fw_version"`
	SerialSKU string `json:"serial_sku"`
}

// Driver implements ports.Driver over a Modbus RTU serial link.
type Driver struct {
	cfg    Config
	logger ports.Logger
	dial   func() (modbus.Client, io.Closer, error)
	now    func() time.Time

	mu      sync.Mutex
	client  modbus.Client
	closer  io.Closer
	backoff *backoff
	retryAt time.Time
}

var (
	_ ports.Driver            = (*Driver)(nil)
	_ ports.ServiceModeReader = (*Driver)(nil)
	_ ports.NetworkReader     = (*Driver)(nil)
)

// New returns a driver. The serial port is opened on first use.
func New(cfg Config, logger ports.Logger) *Driver {
	if cfg.ResponsePoll <= 0 {
		cfg.ResponsePoll = time.Second
	}
	d := &Driver{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		backoff: newBackoff(DefaultBackoffInitial, DefaultBackoffMax),
	}
	d.dial = d.dialRTU
	return d
}

func (d *Driver) dialRTU() (modbus.Client, io.Closer, error) {
	h := modbus.NewRTUClientHandler(d.cfg.Port)
	h.BaudRate = d.cfg.BaudRate
	h.DataBits = d.cfg.DataBits
	h.Parity = d.cfg.Parity
	h.StopBits = d.cfg.StopBits
	h.SlaveId = d.cfg.SlaveID
	h.Timeout = d.cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	return modbus.NewClient(h), h, nil
}

// Close releases the serial port.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectLocked()
}

func (d *Driver) disconnectLocked() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.client, d.closer = nil, nil
	return err
}

func (d *Driver) connectLocked() error {
	if d.client != nil {
		return nil
	}
	if now := d.now(); now.Before(d.retryAt) {
		return fmt.Errorf("link down, next reconnect in %s", d.retryAt.Sub(now).Round(time.Millisecond))
	}

	client, closer, err := d.dial()
	if err != nil {
		d.retryAt = d.now().Add(d.backoff.Next())
		return fmt.Errorf("open %s: %w", d.cfg.Port, err)
	}
	if len(d.cfg.Password) > 0 {
		if _, err := client.WriteMultipleRegisters(regPassword, uint16(len(d.cfg.Password)), packRegisters(d.cfg.Password)); err != nil {
			closer.Close()
			d.retryAt = d.now().Add(d.backoff.Next())
			return fmt.Errorf("set password: %w", err)
		}
	}

	d.client, d.closer = client, closer
	d.backoff.Reset()
	d.retryAt = time.Time{}
	d.logger.Info("dongle link up", ports.String("port", d.cfg.Port))
	return nil
}

// do runs fn with the link held. An error from fn drops the link.
// Errors wrap domain.ErrHardwareUnavailable.
func (d *Driver) do(ctx context.Context, fn func(c modbus.Client) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHardwareUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connectLocked(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHardwareUnavailable, err)
	}
	if err := fn(d.client); err != nil {
		d.logger.Warn("dongle link lost", ports.String("port", d.cfg.Port), ports.Err(err))
		_ = d.disconnectLocked()
		return fmt.Errorf("%w: %w", domain.ErrHardwareUnavailable, err)
	}
	return nil
}

// readInput reads n input registers starting at addr, splitting requests
// at the Modbus read limit.
func readInput(c modbus.Client, addr, n uint16) ([]byte, error) {
	out := make([]byte, 0, int(n)*2)
	for n > 0 {
		q := n
		if q > maxReadRegisters {
			q = maxReadRegisters
		}
		b, err := c.ReadInputRegisters(addr, q)
		if err != nil {
			return nil, fmt.Errorf("read %#04x x%d: %w", addr, q, err)
		}
		out = append(out, b...)
		addr += q
		n -= q
	}
	return out, nil
}

func (d *Driver) readUint16(ctx context.Context, addr uint16) (uint16, error) {
	var v uint16
	err := d.do(ctx, func(c modbus.Client) error {
		b, err := readInput(c, addr, 1)
		if err != nil {
			return err
		}
		v = registerUint16(b)
		return nil
	})
	return v, err
}

func (d *Driver) readText(ctx context.Context, addr, n uint16) (string, error) {
	var s string
	err := d.do(ctx, func(c modbus.Client) error {
		b, err := readInput(c, addr, n)
		if err != nil {
			return err
		}
		s = registerText(b)
		return nil
	})
	return s, err
}

// ReadRegisters returns the module status bitmask.
func (d *Driver) ReadRegisters(ctx context.Context) (uint16, error) {
	return d.readUint16(ctx, regModuleStatus)
}

// ServiceMode returns the transport mode configured on the dongle.
func (d *Driver) ServiceMode(ctx context.Context) (domain.Mode, error) {
	v, err := d.readUint16(ctx, regServiceMode)
	if err != nil {
		return 0, err
	}
	mode := domain.Mode(v)
	if mode != domain.ModeNIDD && mode != domain.ModeUDP {
		return 0, fmt.Errorf("unknown service mode %d", v)
	}
	return mode, nil
}

// Send writes the payload to the uplink window and waits for the dongle's
// response. "Uplink Completed" is success; any other response is a
// rejection; no response before ctx expires is a transmit failure.
func (d *Driver) Send(ctx context.Context, payload []byte) error {
	avail, err := d.readUint16(ctx, regUploadAvail)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransmitFailure, err)
	}
	if avail != 0 {
		return fmt.Errorf("%w: upload not available (%d)", domain.ErrTransmitFailure, avail)
	}

	data := encodeUplink(payload)
	err = d.do(ctx, func(c modbus.Client) error {
		const chunk = writeChunkRegisters * 2
		for off := 0; off < len(data); off += chunk {
			end := off + chunk
			if end > len(data) {
				end = len(data)
			}
			addr := uint16(regSendStart + off/2)
			if _, err := c.WriteMultipleRegisters(addr, uint16((end-off)/2), data[off:end]); err != nil {
				return fmt.Errorf("write %#04x: %w", addr, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransmitFailure, err)
	}

	d.logger.Debug("uplink written, waiting for response", ports.Int("registers", len(data)/2))
	return d.awaitResponse(ctx)
}

func (d *Driver) awaitResponse(ctx context.Context) error {
	for {
		n, err := d.readUint16(ctx, regSendRespLen)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrTransmitFailure, err)
		}
		if n > 0 {
			resp, err := d.readText(ctx, regSendResp, n)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrTransmitFailure, err)
			}
			d.logger.Info("uplink response", ports.String("response", resp))
			if strings.Contains(resp, uplinkCompleted) {
				return nil
			}
			return fmt.Errorf("%w: %q", domain.ErrTransmitRejected, resp)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: no response: %w", domain.ErrTransmitFailure, ctx.Err())
		case <-time.After(d.cfg.ResponsePoll):
		}
	}
}

// ReadDownlink returns the pending downlink text, if any.
func (d *Driver) ReadDownlink(ctx context.Context) (string, bool, error) {
	var (
		text string
		ok   bool
	)
	err := d.do(ctx, func(c modbus.Client) error {
		lb, err := readInput(c, regDownlinkLen, 1)
		if err != nil {
			return err
		}
		n := registerUint16(lb)
		if n == 0 {
			return nil
		}
		b, err := readInput(c, regDownlinkData, n)
		if err != nil {
			return err
		}
		text, ok = registerText(b), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return text, ok, nil
}

// ReadNetworkInfo reads IMSI, signal and GPS fields.
func (d *Driver) ReadNetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	var info domain.NetworkInfo
	fields := []struct {
		addr, n uint16
		dst     *string
	}{
		{regIMSI, lenIMSI, &info.IMSI},
		{regSINR, lenSINR, &info.SINR},
		{regRSRP, lenRSRP, &info.RSRP},
		{regNetworkTime, lenNetworkTime, &info.NetworkTime},
		{regGPSLat, lenGPSLat, &info.Latitude},
		{regGPSLon, lenGPSLon, &info.Longitude},
	}
	for _, f := range fields {
		s, err := d.readText(ctx, f.addr, f.n)
		if err != nil {
			return info, err
		}
		*f.dst = s
	}
	return info, nil
}

// Identify reads the MCU model, firmware version and serial/SKU.
func (d *Driver) Identify(ctx context.Context) (Identity, error) {
	var id Identity
	var err error
	if id.Model, err = d.readText(ctx, regMCUModelName, lenMCUModelName); err != nil {
		return id, err
	}
	if id.FWVersion, err = d.readText(ctx, regMCUFWVersion, lenMCUFWVersion); err != nil {
		return id, err
	}
	if id.SerialSKU, err = d.readText(ctx, regMCUSerialSKU, lenMCUSerialSKU); err != nil {
		return id, err
	}
	return id, nil
}
