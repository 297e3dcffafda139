package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// DefaultSampleTimeout bounds the network-info read of one sample.
const DefaultSampleTimeout = 3 * time.Second

// Sampler builds measurement payloads from the current readiness snapshot
// and, when the driver supports it, the dongle's network information.
type Sampler struct {
	readiness ReadinessSource
	network   ports.NetworkReader
	logger    ports.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewSampler returns a sampler. Network data is read only if driver
// implements ports.NetworkReader.
func NewSampler(readiness ReadinessSource, driver ports.Driver, logger ports.Logger) *Sampler {
	nr, _ := driver.(ports.NetworkReader)
	return &Sampler{
		readiness: readiness,
		network:   nr,
		logger:    logger,
		timeout:   DefaultSampleTimeout,
		now:       time.Now,
	}
}

// Sample returns the JSON payload for a new queue item. extra, if set,
// must be valid JSON and is carried verbatim.
func (s *Sampler) Sample(ctx context.Context, source domain.Source, trigger string, extra json.RawMessage) (json.RawMessage, error) {
	if len(extra) > 0 && !json.Valid(extra) {
		return nil, fmt.Errorf("%w: extra is not valid JSON", domain.ErrDecode)
	}
	snap := s.readiness.Current()
	m := domain.Measurement{
		CapturedAt: s.now().UTC(),
		Source:     source,
		Mode:       snap.Mode.String(),
		Status:     snap.Raw,
		AllReady:   snap.AllReady,
		Trigger:    trigger,
		Extra:      extra,
	}
	if s.network != nil {
		info, err := s.readNetwork(ctx)
		if err != nil {
			s.logger.Debug("network info unavailable for sample", ports.Err(err))
		} else {
			m.Network = info
		}
	}
	return m.Encode()
}

// readNetwork calls the driver with a timeout. A driver panic becomes an
// error.
func (s *Sampler) readNetwork(ctx context.Context) (info domain.NetworkInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", domain.ErrHardwareUnavailable, r)
		}
	}()
	return s.network.ReadNetworkInfo(ctx)
}
