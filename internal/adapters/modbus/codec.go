package modbus

import (
	"encoding/hex"
	"strings"
)

// encodeUplink returns the register bytes for an uplink payload: the
// payload as ASCII hex, CRLF terminated, padded with '0' to a whole
// register.
func encodeUplink(payload []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(payload)), hex.EncodedLen(len(payload))+3)
	hex.Encode(out, payload)
	out = append(out, '\r', '\n')
	if len(out)%2 != 0 {
		out = append(out, '0')
	}
	return out
}

// registerText decodes big-endian register bytes as text, dropping NUL
// padding and line terminators.
func registerText(b []byte) string {
	return strings.Trim(string(b), "\x00\r\n ")
}

// registerUint16 returns the first register as an unsigned value.
func registerUint16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// packRegisters converts register values to big-endian bytes.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
