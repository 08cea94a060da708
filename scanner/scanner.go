// Package scanner captures raw advertising payloads from the local BLE radio.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ble-adv-parser/advdata"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// Handler receives every accepted advertisement.
type Handler func(Capture)

// Capture is one advertisement as received from the radio.
type Capture struct {
	Address string
	Name    string
	RSSI    int16
	Raw     []byte
	SeenAt  time.Time
}

// Filter selects advertisers by MAC address or by a substring of their
// local name. An empty filter accepts everything.
type Filter struct {
	MACAddresses []string
	NameContains []string
}

// Scanner drives the default BLE adapter.
type Scanner struct {
	adapter *bluetooth.Adapter
	macs    map[string]bool
	names   []string
	handler Handler
	logger  *zap.Logger

	// scanning is set while adapter.Scan runs; whoever clears it stops the scan.
	scanning atomic.Bool
}

// New creates a scanner that passes matching advertisements to handler.
func New(filter Filter, handler Handler, logger *zap.Logger) *Scanner {
	macs := make(map[string]bool)
	for _, mac := range filter.MACAddresses {
		macs[strings.ToUpper(strings.TrimSpace(mac))] = true
	}
	names := make([]string, 0, len(filter.NameContains))
	for _, n := range filter.NameContains {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, strings.ToUpper(n))
		}
	}

	return &Scanner{
		adapter: bluetooth.DefaultAdapter,
		macs:    macs,
		names:   names,
		handler: handler,
		logger:  logger,
	}
}

// Start enables the adapter and scans until ctx is cancelled or Stop is
// called. It blocks while scanning.
func (s *Scanner) Start(ctx context.Context) error {
	s.logger.Info("initializing BLE adapter")

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	s.logger.Info("starting BLE scan",
		zap.Int("mac_filter_count", len(s.macs)),
		zap.Strings("name_filters", s.names),
	)

	s.scanning.Store(true)
	defer s.scanning.Store(false)

	err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		select {
		case <-ctx.Done():
			if s.scanning.CompareAndSwap(true, false) {
				if err := adapter.StopScan(); err != nil {
					s.logger.Warn("failed to stop BLE scan", zap.Error(err))
				}
			}
			return
		default:
		}

		c, ok := s.capture(result)
		if !ok {
			return
		}
		s.logger.Debug("BLE advertisement",
			zap.String("mac", c.Address),
			zap.String("name", c.Name),
			zap.Int16("rssi_dbm", c.RSSI),
			zap.Int("payload_size", len(c.Raw)),
		)
		s.handler(c)
	})
	if err != nil {
		return fmt.Errorf("failed to start BLE scan: %w", err)
	}

	return nil
}

// capture converts a scan result, applying the filter. Results carrying
// nothing to parse are skipped.
func (s *Scanner) capture(result bluetooth.ScanResult) (Capture, bool) {
	mac := strings.ToUpper(result.Address.String())
	name := result.LocalName()
	if !s.accept(mac, name) {
		return Capture{}, false
	}

	var raw []byte
	if b := result.Bytes(); len(b) > 0 {
		raw = append(raw, b...)
	} else {
		raw = rebuildPayload(result.AdvertisementPayload)
	}
	if len(raw) == 0 {
		return Capture{}, false
	}

	return Capture{
		Address: mac,
		Name:    name,
		RSSI:    result.RSSI,
		Raw:     raw,
		SeenAt:  time.Now(),
	}, true
}

// rebuildPayload re-encodes the fields of an advertisement as AD structures.
// BlueZ, CoreBluetooth and WinRT hand out decoded fields only, so Bytes()
// is empty there. Flags and 128-bit service data are not reported by those
// backends and cannot be recovered.
func rebuildPayload(p bluetooth.AdvertisementPayload) []byte {
	var raw []byte
	if name := p.LocalName(); name != "" {
		raw = appendAD(raw, advdata.TypeCompleteLocalName, []byte(name))
	}
	for _, sd := range p.ServiceData() {
		if !sd.UUID.Is16Bit() {
			continue
		}
		uuid := uint16(sd.UUID[3])
		value := append([]byte{byte(uuid), byte(uuid >> 8)}, sd.Data...)
		raw = appendAD(raw, advdata.TypeServiceData16, value)
	}
	for _, m := range p.ManufacturerData() {
		value := append([]byte{byte(m.CompanyID), byte(m.CompanyID >> 8)}, m.Data...)
		raw = appendAD(raw, advdata.TypeManufacturerData, value)
	}
	return raw
}

func appendAD(raw []byte, typeCode byte, value []byte) []byte {
	// The length byte covers the type byte and the value.
	if len(value) > 254 {
		return raw
	}
	raw = append(raw, byte(len(value)+1), typeCode)
	return append(raw, value...)
}

func (s *Scanner) accept(mac, name string) bool {
	if len(s.macs) == 0 && len(s.names) == 0 {
		return true
	}
	if s.macs[mac] {
		return true
	}
	upper := strings.ToUpper(name)
	for _, n := range s.names {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// Stop stops the BLE scan. It is a no-op when no scan is running, including
// after the scan already stopped on context cancellation.
func (s *Scanner) Stop() error {
	if !s.scanning.CompareAndSwap(true, false) {
		s.logger.Debug("BLE scan not running")
		return nil
	}
	s.logger.Info("stopping BLE scan")
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("failed to stop BLE scan: %w", err)
	}
	return nil
}
