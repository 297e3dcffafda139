package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the NTN transport mode. Each mode requires a different set of
// readiness flags.
type Mode int

const (
	ModeNIDD Mode = 1
	ModeUDP  Mode = 2
)

// String returns the lower-case mode name.
func (m Mode) String() string {
	switch m {
	case ModeNIDD:
		return "nidd"
	case ModeUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode parses "nidd" or "udp" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nidd":
		return ModeNIDD, nil
	case "udp":
		return ModeUDP, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Status register bits.
const (
	StatusATReady           uint16 = 0x01
	StatusIPOrDownlinkReady uint16 = 0x02
	StatusSIMReady          uint16 = 0x04
	StatusNetworkRegistered uint16 = 0x08
	StatusSocketReady       uint16 = 0x10
)

// RequiredMask returns the status bits that must all be set for mode to be ready.
func (m Mode) RequiredMask() uint16 {
	mask := StatusATReady | StatusIPOrDownlinkReady | StatusSIMReady | StatusNetworkRegistered
	if m == ModeUDP {
		mask |= StatusSocketReady
	}
	return mask
}

// ReadinessSnapshot is one consistent view of the dongle status.
// Snapshots are immutable once published.
type ReadinessSnapshot struct {
	ATReady           bool      `json:"at_ready"`
	IPOrDownlinkReady bool      `json:"ip_or_downlink_ready"`
	SIMReady          bool      `json:"sim_ready"`
	NetworkRegistered bool      `json:"network_registered"`
	SocketReady       bool      `json:"socket_ready"`
	Mode              Mode      `json:"mode"`
	AllReady          bool      `json:"all_ready"`
	Reported          bool      `json:"reported"`
	Raw               uint16    `json:"raw"`
	PolledAt          time.Time `json:"polled_at"`
	Err               string    `json:"error,omitempty"`
}

// NewReadinessSnapshot derives flags and AllReady from a raw status register.
func NewReadinessSnapshot(raw uint16, mode Mode, at time.Time) ReadinessSnapshot {
	required := mode.RequiredMask()
	return ReadinessSnapshot{
		ATReady:           raw&StatusATReady != 0,
		IPOrDownlinkReady: raw&StatusIPOrDownlinkReady != 0,
		SIMReady:          raw&StatusSIMReady != 0,
		NetworkRegistered: raw&StatusNetworkRegistered != 0,
		SocketReady:       mode == ModeUDP && raw&StatusSocketReady != 0,
		Mode:              mode,
		AllReady:          raw&required == required,
		Reported:          true,
		Raw:               raw,
		PolledAt:          at,
	}
}

// UnavailableSnapshot reports every flag false after a failed poll.
func UnavailableSnapshot(mode Mode, at time.Time, err error) ReadinessSnapshot {
	s := ReadinessSnapshot{Mode: mode, PolledAt: at}
	if err != nil {
		s.Err = err.Error()
	}
	return s
}

// Flags returns the named flags relevant to the snapshot's mode.
func (s ReadinessSnapshot) Flags() map[string]bool {
	flags := map[string]bool{
		"at_ready":           s.ATReady,
		"sim_ready":          s.SIMReady,
		"network_registered": s.NetworkRegistered,
	}
	if s.Mode == ModeUDP {
		flags["ip_ready"] = s.IPOrDownlinkReady
		flags["socket_ready"] = s.SocketReady
	} else {
		flags["downlink_ready"] = s.IPOrDownlinkReady
	}
	return flags
}
