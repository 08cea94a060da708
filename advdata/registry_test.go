package advdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{0x01, "Flags"},
		{0x08, "Shortened Local Name"},
		{0x09, "Complete Local Name"},
		{0x0A, "TX Power Level"},
		{0x16, "Service Data - 16-bit UUID"},
		{0x2D, "Broadcast_Code"},
		{0xFF, "Manufacturer Specific Data"},
		{0x00, "Unknown (0x00)"},
		{0x0B, "Unknown (0x0B)"},
		{0x99, "Unknown (0x99)"},
		{0xFE, "Unknown (0xFE)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeName(tt.code), "code 0x%02X", tt.code)
	}
}

func TestRegistrySize(t *testing.T) {
	known := 0
	for c := 0; c < 256; c++ {
		if KnownType(byte(c)) {
			known++
		}
	}
	assert.Equal(t, 29, known)
}
