package advdata

import "fmt"

// AD type codes referenced by this package.
const (
	TypeFlags             byte = 0x01
	TypeShortLocalName    byte = 0x08
	TypeCompleteLocalName byte = 0x09
	TypeTxPowerLevel      byte = 0x0A
	TypeServiceData16     byte = 0x16
	TypeManufacturerData  byte = 0xFF
)

// typeNames holds the Bluetooth SIG assigned AD type names. Read only.
var typeNames = map[byte]string{
	0x01: "Flags",
	0x02: "Incomplete List of 16-bit Service UUIDs",
	0x03: "Complete List of 16-bit Service UUIDs",
	0x04: "Incomplete List of 32-bit Service UUIDs",
	0x05: "Complete List of 32-bit Service UUIDs",
	0x06: "Incomplete List of 128-bit Service UUIDs",
	0x07: "Complete List of 128-bit Service UUIDs",
	0x08: "Shortened Local Name",
	0x09: "Complete Local Name",
	0x0A: "TX Power Level",
	0x0D: "Class of Device",
	0x0E: "Simple Pairing Hash C",
	0x0F: "Simple Pairing Randomizer R",
	0x10: "Device ID",
	0x16: "Service Data - 16-bit UUID",
	0x1F: "List of 32-bit Service Solicitation UUIDs",
	0x20: "Service Data - 32-bit UUID",
	0x21: "Service Data - 128-bit UUID",
	0x24: "URI",
	0x25: "Indoor Positioning",
	0x26: "Transport Discovery Data",
	0x27: "LE Supported Features",
	0x28: "Channel Map Update Indication",
	0x29: "PB-ADV",
	0x2A: "Mesh Message",
	0x2B: "Mesh Beacon",
	0x2C: "BIGInfo",
	0x2D: "Broadcast_Code",
	0xFF: "Manufacturer Specific Data",
}

// TypeName returns the registered name of an AD type code, or
// "Unknown (0xNN)" for codes outside the table.
func TypeName(code byte) string {
	if name, ok := typeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", code)
}

// KnownType reports whether code has a registered name.
func KnownType(code byte) bool {
	_, ok := typeNames[code]
	return ok
}
