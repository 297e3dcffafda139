package app

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// DecodeDownlink turns the dongle's hex text into a DownlinkMessage.
// A decode failure leaves Decoded nil and sets DecodeErr.
func DecodeDownlink(rawHex string, receivedAt time.Time) domain.DownlinkMessage {
	msg := domain.DownlinkMessage{RawHex: rawHex, ReceivedAt: receivedAt}
	decoded, err := decodePayload(rawHex)
	if err != nil {
		msg.DecodeErr = err.Error()
		return msg
	}
	msg.Decoded = decoded
	return msg
}

func decodePayload(rawHex string) (map[string]any, error) {
	text := strings.TrimSpace(rawHex)
	if text == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrDecode)
	}
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: hex: %v", domain.ErrDecode, err)
	}
	b = bytes.TrimRight(b, "\x00\r\n ")

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: json: %v", domain.ErrDecode, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a JSON object", domain.ErrDecode)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: json: trailing data after object", domain.ErrDecode)
	}
	return m, nil
}

// MatchTrigger returns the first trigger key present in decoded.
// Keys compare case-insensitively.
func MatchTrigger(decoded map[string]any, triggers []string) (string, bool) {
	for _, t := range triggers {
		for k := range decoded {
			if strings.EqualFold(k, t) {
				return t, true
			}
		}
	}
	return "", false
}
