// Package devices keeps the list of advertisers seen during a scan session.
package devices

import (
	"strings"
	"sync"
	"time"

	"ble-adv-parser/advdata"
	"ble-adv-parser/hexcodec"
)

// Observation is one advertisement received from the air or from a gateway.
type Observation struct {
	Address string
	Name    string
	RSSI    int16
	Raw     []byte
	SeenAt  time.Time
}

// Device is the latest known state of one advertiser.
type Device struct {
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	RSSI         int16          `json:"rssi_dbm"`
	Extended     bool           `json:"extended"`
	Manufacturer string         `json:"manufacturer_data"`
	RawPayload   string         `json:"raw_payload"`
	PayloadSize  int            `json:"payload_size"`
	TxPower      *int8          `json:"tx_power_dbm,omitempty"`
	Items        []advdata.Item `json:"items"`
	PacketCount  int            `json:"packet_count"`
	LastSeen     time.Time      `json:"last_seen"`
}

// Tracker deduplicates observations by address and counts packets.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[string]*Device),
		now:     time.Now,
	}
}

// Observe records obs and returns the updated device. The first observation
// of an address counts as one packet.
func (t *Tracker) Observe(obs Observation) Device {
	addr := strings.ToUpper(strings.TrimSpace(obs.Address))
	if obs.SeenAt.IsZero() {
		obs.SeenAt = t.now()
	}
	dev := newDevice(addr, obs)

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.devices[addr]; ok {
		dev.PacketCount = prev.PacketCount + 1
	} else {
		t.order = append(t.order, addr)
	}
	t.devices[addr] = dev
	return *dev
}

func newDevice(addr string, obs Observation) *Device {
	items := advdata.Parse(obs.Raw)

	name := obs.Name
	if name == "" {
		if n, ok := advdata.LocalName(items); ok {
			name = n
		} else {
			name = "Unknown Device"
		}
	}

	rawHex := "0x" + hexcodec.Encode(obs.Raw)
	dev := &Device{
		Name:         name,
		Address:      addr,
		RSSI:         obs.RSSI,
		Extended:     len(obs.Raw) > advdata.LegacyMaxPayload,
		Manufacturer: advdata.ManufacturerSummary(items),
		RawPayload:   rawHex,
		PayloadSize:  advdata.PayloadSize(rawHex),
		Items:        items,
		PacketCount:  1,
		LastSeen:     obs.SeenAt,
	}
	if p, ok := advdata.TxPower(items); ok {
		dev.TxPower = &p
	}
	return dev
}

// List returns devices in order of first appearance. With extendedOnly set,
// only devices last heard with an extended advertisement are returned.
func (t *Tracker) List(extendedOnly bool) []Device {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Device, 0, len(t.order))
	for _, addr := range t.order {
		d := t.devices[addr]
		if extendedOnly && !d.Extended {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// Get returns the device with the given address.
func (t *Tracker) Get(address string) (Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.devices[strings.ToUpper(strings.TrimSpace(address))]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Len returns the number of tracked devices.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Reset forgets every device.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = make(map[string]*Device)
	t.order = nil
}

// Prune drops devices not seen within maxAge and returns how many were removed.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	removed := 0
	for _, addr := range t.order {
		if t.devices[addr].LastSeen.Before(cutoff) {
			delete(t.devices, addr)
			removed++
			continue
		}
		kept = append(kept, addr)
	}
	t.order = kept
	return removed
}
