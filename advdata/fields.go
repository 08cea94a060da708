package advdata

import (
	"encoding/binary"
	"fmt"
	"strings"

	"ble-adv-parser/hexcodec"
)

// LegacyMaxPayload is the largest legacy (BLE 4.x) advertising payload.
// Anything longer was received as an extended advertisement.
const LegacyMaxPayload = 31

// Manufacturer is a decoded Manufacturer Specific Data structure.
type Manufacturer struct {
	CompanyID uint16 `json:"company_id"`
	Data      []byte `json:"data"`
}

// ServiceData is a decoded Service Data - 16-bit UUID structure.
type ServiceData struct {
	UUID string `json:"uuid"` // e.g. "FEAB"
	Data []byte `json:"data"`
}

// LocalName returns the device name, preferring the complete name over the
// shortened one.
func LocalName(items []Item) (string, bool) {
	var short *string
	for _, it := range items {
		if it.TextValue == nil {
			continue
		}
		switch it.TypeCode {
		case TypeCompleteLocalName:
			return *it.TextValue, true
		case TypeShortLocalName:
			if short == nil {
				short = it.TextValue
			}
		}
	}
	if short != nil {
		return *short, true
	}
	return "", false
}

// TxPower returns the advertised TX power level in dBm.
func TxPower(items []Item) (int8, bool) {
	for _, it := range items {
		if it.TypeCode != TypeTxPowerLevel {
			continue
		}
		if b := it.Raw(); len(b) >= 1 {
			return int8(b[0]), true
		}
	}
	return 0, false
}

// ManufacturerData returns every manufacturer structure carrying a company ID.
func ManufacturerData(items []Item) []Manufacturer {
	var out []Manufacturer
	for _, it := range items {
		if it.TypeCode != TypeManufacturerData {
			continue
		}
		b := it.Raw()
		if len(b) < 2 {
			continue
		}
		out = append(out, Manufacturer{
			CompanyID: binary.LittleEndian.Uint16(b[:2]),
			Data:      b[2:],
		})
	}
	return out
}

// ManufacturerSummary renders manufacturer data for display, e.g.
// "ID: 0x4C Data: 0215...". Data longer than two bytes that reads as
// printable ASCII gets a "Text (UTF-8)" line. Returns "None" when absent.
func ManufacturerSummary(items []Item) string {
	var sb strings.Builder
	for _, m := range ManufacturerData(items) {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "ID: 0x%X Data: %s", m.CompanyID, hexcodec.Encode(m.Data))
		if len(m.Data) > 2 {
			if text, ok := decodeText(m.Data); ok && text != "" && printableASCII(text) {
				sb.WriteString("\nText (UTF-8): ")
				sb.WriteString(text)
			}
		}
	}
	if sb.Len() == 0 {
		return "None"
	}
	return sb.String()
}

// ServiceData16 returns the first 16-bit UUID service data structure.
// The UUID is little endian on air and rendered most significant byte first.
func ServiceData16(items []Item) (ServiceData, bool) {
	for _, it := range items {
		if it.TypeCode != TypeServiceData16 {
			continue
		}
		b := it.Raw()
		if len(b) < 2 {
			continue
		}
		return ServiceData{
			UUID: fmt.Sprintf("%02X%02X", b[1], b[0]),
			Data: b[2:],
		}, true
	}
	return ServiceData{}, false
}

// PayloadSize returns the number of bytes a displayed hex payload holds.
func PayloadSize(hexText string) int {
	clean := strings.ReplaceAll(strings.ReplaceAll(hexText, "0x", ""), " ", "")
	return len(clean) / 2
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] >= 127 {
			return false
		}
	}
	return true
}
