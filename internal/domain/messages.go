package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel names a history buffer.
type Channel string

const (
	ChannelUplink   Channel = "uplink"
	ChannelDownlink Channel = "downlink"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelUplink, ChannelDownlink:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// DownlinkMessage is an inbound message. Decoded is nil when the payload
// was not valid hex or JSON.
type DownlinkMessage struct {
	RawHex     string         `json:"raw_hex"`
	Decoded    map[string]any `json:"decoded,omitempty"`
	DecodeErr  string         `json:"decode_error,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Outcome is the final state of an uplink item.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeDropped Outcome = "dropped"
)

// UplinkRecord records a transmitted or dropped item.
type UplinkRecord struct {
	ItemID   string          `json:"item_id"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
	Outcome  Outcome         `json:"outcome"`
	Attempts int             `json:"attempts"`
	Source   Source          `json:"source"`
}
