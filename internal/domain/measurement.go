package domain

import (
	"encoding/json"
	"time"
)

// NetworkInfo is the dongle's view of the radio link and position.
// Values are kept as the strings the dongle reports.
type NetworkInfo struct {
	IMSI        string `json:"imsi,omitempty"`
	SINR        string `json:"sinr,omitempty"`
	RSRP        string `json:"rsrp,omitempty"`
	Latitude    string `json:"latitude,omitempty"`
	Longitude   string `json:"longitude,omitempty"`
	NetworkTime string `json:"network_time,omitempty"`
}

// Measurement is the snapshot captured into the queue and sent uplink.
type Measurement struct {
	CapturedAt time.Time       `json:"captured_at"`
	Source     Source          `json:"source"`
	Mode       string          `json:"mode"`
	Status     uint16          `json:"status"`
	AllReady   bool            `json:"all_ready"`
	Network    NetworkInfo     `json:"network"`
	Trigger    string          `json:"trigger,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// Encode returns the JSON form used as a queue payload.
func (m Measurement) Encode() (json.RawMessage, error) {
	return json.Marshal(m)
}
