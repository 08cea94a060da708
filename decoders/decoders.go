// Package decoders interprets vendor service data carried in BLE
// advertisements. Decoders receive the bytes following the 16-bit UUID of a
// Service Data structure.
package decoders

import (
	"errors"
	"fmt"
	"strings"

	"ble-adv-parser/advdata"
)

var (
	// ErrNoDecoder is returned for hardware types without a decoder.
	ErrNoDecoder = errors.New("no decoder for device hardware type")
	// ErrUnexpectedUUID is returned when the service UUID does not belong to
	// the hardware type.
	ErrUnexpectedUUID = errors.New("unexpected service uuid")
)

// Meta carries the message context copied into every decoded output.
type Meta struct {
	Timestamp  int64
	MAC        string
	DeviceName string
	RSSI       *int
}

func (m Meta) fields(messageType string, frameType byte) map[string]any {
	out := map[string]any{
		"message_type": messageType,
		"timestamp":    m.Timestamp,
		"mac":          upperMAC(m.MAC),
		"device_name":  m.DeviceName,
		"frame_type":   fmt.Sprintf("0x%02X", frameType),
	}
	if m.RSSI != nil {
		out["rssi"] = *m.RSSI
	}
	return out
}

type decoder struct {
	uuid   string
	decode func(data []byte, meta Meta) (map[string]any, error)
}

// decoders is keyed by the device hardware type stored for each device.
var decoders = map[string]decoder{
	"H4 Pro": {uuid: H4ProServiceUUID, decode: DecodeH4Pro},
	"ATC":    {uuid: ATCServiceUUID, decode: DecodeATC},
}

// Supported reports whether hwType has a decoder.
func Supported(hwType string) bool {
	_, ok := decoders[hwType]
	return ok
}

// Decode decodes service data sent by a device of the given hardware type.
func Decode(hwType string, sd advdata.ServiceData, meta Meta) (map[string]any, error) {
	d, ok := decoders[hwType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, hwType)
	}
	if !strings.EqualFold(sd.UUID, d.uuid) {
		return nil, fmt.Errorf("%w %s (need %s)", ErrUnexpectedUUID, sd.UUID, d.uuid)
	}
	return d.decode(sd.Data, meta)
}

// EventType names a decoded output for callback consumers. The decoder's own
// message_type wins; otherwise the hardware type slug and frame type are used.
func EventType(hwType string, decoded map[string]any) string {
	if v, ok := decoded["message_type"].(string); ok && v != "" {
		return v
	}
	if v, ok := decoded["type"].(string); ok && v != "" {
		return v
	}
	frame, _ := decoded["frame_type"].(string)
	if frame == "" {
		return slugDeviceFamily(hwType)
	}
	return slugDeviceFamily(hwType) + "/" + frame
}

// slugDeviceFamily turns "H4 Pro" into "h4-pro".
func slugDeviceFamily(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, r)
		case r >= 'A' && r <= 'Z':
			b = append(b, r+('a'-'A'))
		case r == ' ' || r == '_' || r == '-' || r == '/':
			if len(b) == 0 || b[len(b)-1] == '-' {
				continue
			}
			b = append(b, '-')
		}
	}
	if len(b) > 0 && b[len(b)-1] == '-' {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		return "unknown"
	}
	return string(b)
}
