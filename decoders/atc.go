package decoders

import (
	"encoding/binary"
	"fmt"
)

// ATCServiceUUID is the environmental sensing UUID used by the
// ATC_MiThermometer custom firmware.
const ATCServiceUUID = "181A"

const atcFrameLen = 13

// DecodeATC decodes the ATC_MiThermometer service data frame:
//
//	0-5   MAC address (big endian)
//	6-7   temperature, 0.1 °C, int16 little endian
//	8     humidity %
//	9     battery %
//	10-11 battery voltage mV, uint16 little endian
//	12    frame counter
func DecodeATC(data []byte, meta Meta) (map[string]any, error) {
	if len(data) < atcFrameLen {
		return nil, fmt.Errorf("invalid ATC advertisement length: expected at least %d bytes, got %d", atcFrameLen, len(data))
	}

	out := meta.fields("atc-thermometer", 0)
	delete(out, "frame_type")

	out["sensor_mac"] = fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		data[0], data[1], data[2], data[3], data[4], data[5])
	out["temperature"] = float64(int16(binary.LittleEndian.Uint16(data[6:8]))) / 10.0
	out["humidity"] = int(data[8])
	out["battery_percent"] = int(data[9])
	out["batt_vol"] = int(binary.LittleEndian.Uint16(data[10:12]))
	out["frame_counter"] = int(data[12])

	return out, nil
}
