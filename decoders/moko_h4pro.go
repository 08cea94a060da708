package decoders

import (
	"fmt"
	"strings"
)

// H4ProServiceUUID is the 16-bit service UUID MOKO H4 Pro beacons advertise.
const H4ProServiceUUID = "FEAB"

// H4 Pro frame types, first byte of the service data.
const (
	H4ProFrameTH   byte = 0x70
	H4ProFrameInfo byte = 0x40
)

// DecodeH4Pro decodes a MOKO H4 Pro service data frame. data starts with the
// frame type byte.
func DecodeH4Pro(data []byte, meta Meta) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty H4 Pro service data")
	}
	frameType, p := data[0], data[1:]
	switch frameType {
	case H4ProFrameTH:
		return buildTH(meta, p), nil
	case H4ProFrameInfo:
		return buildInfo(meta, p), nil
	default:
		return nil, fmt.Errorf("unknown H4 Pro frame_type 0x%02X", frameType)
	}
}

func u16be(b []byte, off *int) (int, bool) {
	if len(b) < *off+2 {
		return 0, false
	}
	v := int(b[*off])<<8 | int(b[*off+1])
	*off += 2
	return v, true
}

func i16be(b []byte, off *int) (int, bool) {
	if len(b) < *off+2 {
		return 0, false
	}
	v := int(int16(uint16(b[*off])<<8 | uint16(b[*off+1])))
	*off += 2
	return v, true
}

// readAdvInterval skips the ranging byte and reads the advertising interval,
// stored in 100 ms steps.
func readAdvInterval(out map[string]any, p []byte, off *int) {
	if len(p) >= *off+1 {
		*off++
	}
	if len(p) >= *off+1 {
		steps := int(p[*off])
		*off++
		out["adv_interval_steps"] = steps
		out["adv_interval_ms"] = steps * 100
	}
}

func buildTH(meta Meta, p []byte) map[string]any {
	out := meta.fields("h4pro-t&h", H4ProFrameTH)

	off := 0
	readAdvInterval(out, p, &off)

	// Temperature and humidity in 0.1 units
	if v, ok := i16be(p, &off); ok {
		out["temperature"] = float64(v) / 10.0
	}
	if v, ok := u16be(p, &off); ok {
		out["humidity"] = float64(v) / 10.0
	}
	if v, ok := u16be(p, &off); ok {
		out["batt_vol"] = v
	}

	if len(p) >= off+1 {
		out["device_type"] = int(p[off])
		off++
	}
	// MAC echoed in the frame, not reported
	if len(p) >= off+6 {
		off += 6
	}
	if rem := len(p) - off; rem > 0 {
		out["trailing_bytes"] = rem
	}

	return out
}

func buildInfo(meta Meta, p []byte) map[string]any {
	out := meta.fields("h4pro-info", H4ProFrameInfo)

	off := 0
	readAdvInterval(out, p, &off)

	if v, ok := u16be(p, &off); ok {
		out["batt_vol"] = v
	}
	if len(p) >= off+1 {
		val := int(p[off])
		off++
		out["device_prop"] = val
		out["device_prop_bits"] = fmt.Sprintf("%08b", val)
	}
	if len(p) >= off+1 {
		val := int(p[off])
		off++
		out["switch_status"] = val
		out["switch_status_bits"] = fmt.Sprintf("%08b", val)
	}
	if len(p) >= off+6 {
		off += 6
	}
	// Firmware version, rendered as V0.0.<n>
	if v, ok := u16be(p, &off); ok {
		out["firmware_ver"] = fmt.Sprintf("V0.0.%d", v)
	}

	return out
}

func upperMAC(mac string) string {
	return strings.ToUpper(mac)
}
