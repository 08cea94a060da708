package main

import (
	"ble-adv-parser/advdata"
	"ble-adv-parser/decoders"

	"go.uber.org/zap"
)

// parsedOutput is stored in backend_message.parser_json and sent with
// callback events.
type parsedOutput struct {
	Size         int            `json:"size"`
	ADStructures []advdata.Item `json:"ad_structures"`
	LocalName    *string        `json:"local_name,omitempty"`
	TxPower      *int8          `json:"tx_power_dbm,omitempty"`
	Manufacturer string         `json:"manufacturer"`
	ExtendedAdv  bool           `json:"extended"`
	PacketCount  int            `json:"packet_count"`
	DeviceHWType string         `json:"device_hw_type,omitempty"`
	ServiceUUID  string         `json:"service_uuid,omitempty"`
	Decoded      map[string]any `json:"decoded,omitempty"`
}

func (o parsedOutput) eventType() string {
	if o.Decoded != nil {
		return decoders.EventType(o.DeviceHWType, o.Decoded)
	}
	return "ble/advertisement"
}

// parseAdvertisement splits raw into AD structures and logs each one.
func parseAdvertisement(raw []byte, log *zap.Logger) []advdata.Item {
	items := advdata.Parse(raw)
	consumed := 0
	for i, it := range items {
		log.Debug("AD",
			zap.Int("idx", i),
			zap.Int("len", it.Length),
			zap.String("type", it.TypeName),
			zap.Uint8("code", it.TypeCode),
		)
		if !advdata.KnownType(it.TypeCode) {
			log.Info("unregistered AD type", zap.Int("idx", i), zap.Uint8("code", it.TypeCode))
		}
		consumed += it.Length + 1
	}
	if consumed < len(raw) && raw[consumed] != 0 {
		log.Debug("AD tail dropped", zap.Int("at", consumed), zap.Int("total", len(raw)))
	}
	return items
}
