package history

import (
	"encoding/json"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// History holds the two independent message buffers.
type History struct {
	uplink   *Buffer[domain.UplinkRecord]
	downlink *Buffer[domain.DownlinkMessage]
}

// Snapshot is a copy of both buffers.
type Snapshot struct {
	Uplink   []domain.UplinkRecord    `json:"uplink"`
	Downlink []domain.DownlinkMessage `json:"downlink"`
}

// New returns empty buffers of the given capacity.
func New(capacity int) *History {
	return &History{
		uplink:   NewBuffer[domain.UplinkRecord](capacity),
		downlink: NewBuffer[domain.DownlinkMessage](capacity),
	}
}

// PushUplink records an uplink outcome.
func (h *History) PushUplink(r domain.UplinkRecord) {
	r.Payload = append(json.RawMessage(nil), r.Payload...)
	h.uplink.Push(r)
}

// PushDownlink records an inbound message.
func (h *History) PushDownlink(m domain.DownlinkMessage) {
	m.Decoded = cloneObject(m.Decoded)
	h.downlink.Push(m)
}

// Snapshot deep-copies both buffers. Payloads and decoded content in the
// result share no memory with the buffers.
func (h *History) Snapshot() Snapshot {
	up := h.uplink.Snapshot()
	for i := range up {
		up[i].Payload = append(json.RawMessage(nil), up[i].Payload...)
	}
	down := h.downlink.Snapshot()
	for i := range down {
		down[i].Decoded = cloneObject(down[i].Decoded)
	}
	return Snapshot{Uplink: up, Downlink: down}
}

func cloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types encoding/json decodes into.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Clear empties one channel and leaves the other untouched.
func (h *History) Clear(ch domain.Channel) error {
	switch ch {
	case domain.ChannelUplink:
		h.uplink.Clear()
	case domain.ChannelDownlink:
		h.downlink.Clear()
	default:
		return domain.ErrUnknownChannel
	}
	return nil
}
