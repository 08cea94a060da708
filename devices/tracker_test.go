package devices

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var legacyPayload = []byte{
	0x02, 0x01, 0x06,
	0x05, 0x09, 'T', 'e', 's', 't',
	0x05, 0xFF, 0x4C, 0x00, 0x02, 0x15,
}

func extendedPayload() []byte {
	raw := []byte{0x02, 0x01, 0x06, 0x24, 0xFF, 0x59, 0x00}
	for i := 0; i < 34; i++ {
		raw = append(raw, byte(i))
	}
	return raw
}

func TestTracker_ObserveNewDevice(t *testing.T) {
	tr := NewTracker()
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	dev := tr.Observe(Observation{Address: "a4:c1:38:00:00:01", RSSI: -60, Raw: legacyPayload, SeenAt: seen})

	assert.Equal(t, "A4:C1:38:00:00:01", dev.Address)
	assert.Equal(t, "Test", dev.Name)
	assert.Equal(t, int16(-60), dev.RSSI)
	assert.False(t, dev.Extended)
	assert.Equal(t, 1, dev.PacketCount)
	assert.Equal(t, len(legacyPayload), dev.PayloadSize)
	assert.Equal(t, "0x02010605095465737405FF4C000215", dev.RawPayload)
	assert.Equal(t, "ID: 0x4C Data: 0215", dev.Manufacturer)
	assert.Len(t, dev.Items, 3)
	assert.Equal(t, seen, dev.LastSeen)
	assert.Nil(t, dev.TxPower)
}

func TestTracker_ObserveTxPower(t *testing.T) {
	tr := NewTracker()
	raw := []byte{0x02, 0x01, 0x06, 0x02, 0x0A, 0xF4}

	dev := tr.Observe(Observation{Address: "AA:00:00:00:00:03", Raw: raw})

	require.NotNil(t, dev.TxPower)
	assert.Equal(t, int8(-12), *dev.TxPower)
	assert.Equal(t, 6, dev.PayloadSize)
}

func TestTracker_PacketCount(t *testing.T) {
	tr := NewTracker()

	tr.Observe(Observation{Address: "AA:00:00:00:00:01", Name: "first", RSSI: -70, Raw: legacyPayload})
	tr.Observe(Observation{Address: "AA:00:00:00:00:02", Raw: legacyPayload})
	dev := tr.Observe(Observation{Address: "aa:00:00:00:00:01", Name: "renamed", RSSI: -50, Raw: legacyPayload})
	tr.Observe(Observation{Address: "AA:00:00:00:00:01", Name: "renamed", RSSI: -55, Raw: legacyPayload})

	assert.Equal(t, 2, dev.PacketCount)
	assert.Equal(t, "renamed", dev.Name)
	assert.Equal(t, int16(-50), dev.RSSI)

	list := tr.List(false)
	require.Len(t, list, 2)
	assert.Equal(t, "AA:00:00:00:00:01", list[0].Address)
	assert.Equal(t, 3, list[0].PacketCount)
	assert.Equal(t, int16(-55), list[0].RSSI)
	assert.Equal(t, 1, list[1].PacketCount)
}

func TestTracker_UnknownName(t *testing.T) {
	tr := NewTracker()
	dev := tr.Observe(Observation{Address: "AA:00:00:00:00:01", Raw: []byte{0x02, 0x01, 0x06}})
	assert.Equal(t, "Unknown Device", dev.Name)
	assert.Equal(t, "None", dev.Manufacturer)
}

func TestTracker_ExtendedOnly(t *testing.T) {
	tr := NewTracker()
	tr.Observe(Observation{Address: "AA:00:00:00:00:01", Raw: legacyPayload})
	tr.Observe(Observation{Address: "AA:00:00:00:00:02", Raw: extendedPayload()})

	all := tr.List(false)
	assert.Len(t, all, 2)

	ext := tr.List(true)
	require.Len(t, ext, 1)
	assert.Equal(t, "AA:00:00:00:00:02", ext[0].Address)
	assert.True(t, ext[0].Extended)
	assert.Equal(t, 41, ext[0].PayloadSize)
}

func TestTracker_GetAndReset(t *testing.T) {
	tr := NewTracker()
	tr.Observe(Observation{Address: "AA:00:00:00:00:01", Raw: legacyPayload})

	dev, ok := tr.Get("aa:00:00:00:00:01")
	require.True(t, ok)
	assert.Equal(t, "Test", dev.Name)

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.List(false))
	_, ok = tr.Get("AA:00:00:00:00:01")
	assert.False(t, ok)

	dev = tr.Observe(Observation{Address: "AA:00:00:00:00:01", Raw: legacyPayload})
	assert.Equal(t, 1, dev.PacketCount)
}

func TestTracker_Prune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	tr.Observe(Observation{Address: "AA:00:00:00:00:01", SeenAt: now.Add(-10 * time.Minute)})
	tr.Observe(Observation{Address: "AA:00:00:00:00:02", SeenAt: now.Add(-30 * time.Second)})
	tr.Observe(Observation{Address: "AA:00:00:00:00:03"})

	removed := tr.Prune(5 * time.Minute)
	assert.Equal(t, 1, removed)

	list := tr.List(false)
	require.Len(t, list, 2)
	assert.Equal(t, "AA:00:00:00:00:02", list[0].Address)
	assert.Equal(t, "AA:00:00:00:00:03", list[1].Address)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Observe(Observation{Address: "AA:00:00:00:00:01", Raw: legacyPayload})
				_ = tr.List(false)
			}
		}()
	}
	wg.Wait()

	dev, ok := tr.Get("AA:00:00:00:00:01")
	require.True(t, ok)
	assert.Equal(t, 1000, dev.PacketCount)
}

func TestNewPruner(t *testing.T) {
	logger := zap.NewNop()

	p, err := NewPruner(NewTracker(), "@every 1m", time.Minute, logger)
	require.NoError(t, err)
	p.Start()
	p.Stop()

	_, err = NewPruner(NewTracker(), "not a schedule", time.Minute, logger)
	assert.Error(t, err)
}

func TestPruner_Run(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }
	tr.Observe(Observation{Address: "AA:00:00:00:00:01", SeenAt: now.Add(-time.Hour)})

	p, err := NewPruner(tr, "@every 1m", time.Minute, zap.NewNop())
	require.NoError(t, err)
	p.run()

	assert.Equal(t, 0, tr.Len())
}
