package scanner

import (
	"testing"

	"ble-adv-parser/advdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// rawPayload implements bluetooth.AdvertisementPayload. With raw left nil it
// behaves like the BlueZ backend, which reports decoded fields only.
type rawPayload struct {
	name         string
	raw          []byte
	manufacturer []bluetooth.ManufacturerDataElement
	serviceData  []bluetooth.ServiceDataElement
}

func (p rawPayload) LocalName() string                  { return p.name }
func (p rawPayload) HasServiceUUID(bluetooth.UUID) bool { return false }
func (p rawPayload) Bytes() []byte                      { return p.raw }

func (p rawPayload) ManufacturerData() []bluetooth.ManufacturerDataElement {
	return p.manufacturer
}

func (p rawPayload) ServiceData() []bluetooth.ServiceDataElement {
	return p.serviceData
}

func scanResult(name string, raw []byte) bluetooth.ScanResult {
	return bluetooth.ScanResult{
		RSSI:                 -67,
		AdvertisementPayload: rawPayload{name: name, raw: raw},
	}
}

func TestNew_NormalizesFilter(t *testing.T) {
	s := New(Filter{
		MACAddresses: []string{" a4:c1:38:00:00:01 "},
		NameContains: []string{"atc", " ", ""},
	}, func(Capture) {}, zap.NewNop())

	assert.True(t, s.macs["A4:C1:38:00:00:01"])
	assert.Equal(t, []string{"ATC"}, s.names)
	assert.NotNil(t, s.adapter)
}

func TestAccept(t *testing.T) {
	open := New(Filter{}, nil, zap.NewNop())
	assert.True(t, open.accept("AA:BB:CC:DD:EE:FF", ""))

	s := New(Filter{
		MACAddresses: []string{"A4:C1:38:00:00:01"},
		NameContains: []string{"LYWSD03MMC"},
	}, nil, zap.NewNop())

	assert.True(t, s.accept("A4:C1:38:00:00:01", ""))
	assert.True(t, s.accept("AA:BB:CC:DD:EE:FF", "lywsd03mmc-kitchen"))
	assert.False(t, s.accept("AA:BB:CC:DD:EE:FF", "phone"))
}

func TestCapture(t *testing.T) {
	raw := []byte{0x02, 0x01, 0x06, 0x04, 0x09, 'A', 'T', 'C'}
	s := New(Filter{NameContains: []string{"ATC"}}, nil, zap.NewNop())

	c, ok := s.capture(scanResult("ATC", raw))
	require.True(t, ok)
	assert.Equal(t, "ATC", c.Name)
	assert.Equal(t, int16(-67), c.RSSI)
	assert.Equal(t, raw, c.Raw)
	assert.False(t, c.SeenAt.IsZero())

	// The capture owns its bytes.
	raw[0] = 0xFF
	assert.Equal(t, byte(0x02), c.Raw[0])

	_, ok = s.capture(scanResult("phone", raw))
	assert.False(t, ok)

	_, ok = New(Filter{}, nil, zap.NewNop()).capture(bluetooth.ScanResult{AdvertisementPayload: rawPayload{}})
	assert.False(t, ok, "empty advertisement")
}

func TestCapture_DecodedFieldsOnly(t *testing.T) {
	s := New(Filter{}, nil, zap.NewNop())

	c, ok := s.capture(bluetooth.ScanResult{
		RSSI: -71,
		AdvertisementPayload: rawPayload{
			name: "ATC_0001",
			serviceData: []bluetooth.ServiceDataElement{
				{UUID: bluetooth.New16BitUUID(0x181A), Data: []byte{0xA4, 0xC1, 0x38}},
				{UUID: bluetooth.UUID{1, 2, 3, 4}, Data: []byte{0x01}},
			},
			manufacturer: []bluetooth.ManufacturerDataElement{
				{CompanyID: 0x004C, Data: []byte{0x02, 0x15}},
			},
		},
	})
	require.True(t, ok)
	assert.Equal(t, int16(-71), c.RSSI)

	items := advdata.Parse(c.Raw)
	require.Len(t, items, 3)

	name, ok := advdata.LocalName(items)
	require.True(t, ok)
	assert.Equal(t, "ATC_0001", name)

	sd, ok := advdata.ServiceData16(items)
	require.True(t, ok)
	assert.Equal(t, "181A", sd.UUID)
	assert.Equal(t, []byte{0xA4, 0xC1, 0x38}, sd.Data)

	assert.Equal(t, "ID: 0x4C Data: 0215", advdata.ManufacturerSummary(items))
}

func TestAppendAD_SkipsOversizedValue(t *testing.T) {
	raw := appendAD(nil, advdata.TypeManufacturerData, make([]byte, 255))
	assert.Empty(t, raw)

	raw = appendAD(nil, advdata.TypeManufacturerData, make([]byte, 254))
	assert.Len(t, raw, 256)
	assert.Equal(t, byte(0xFF), raw[0])
}

func TestStop_NotScanning(t *testing.T) {
	s := New(Filter{}, nil, zap.NewNop())
	assert.NoError(t, s.Stop())
}
