package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"ble-adv-parser/advdata"
	"ble-adv-parser/decoders"
	"ble-adv-parser/devices"
	"ble-adv-parser/hexcodec"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// MQTTMessage is the upload format of the BLE gateways.
type MQTTMessage struct {
	MessageID  int64  `json:"message_id"`
	GatewayMAC string `json:"gateway_mac"`
	GatewayHW  string `json:"gateway_hw"`
	DeviceMAC  string `json:"device_mac"`
	Payload    string `json:"payload"`
	QoS        int    `json:"qos"`
	Timestamp  int64  `json:"timestamp"`
	RSSI       *int   `json:"rssi,omitempty"`
}

type messageStore interface {
	FetchGateway(ctx context.Context, mac string) (Gateway, error)
	FetchDevice(ctx context.Context, mac string) (DeviceRecord, error)
	UpdateParsedJSON(ctx context.Context, backendID int64, v any) error
}

type callbackPublisher interface {
	Publish(ctx context.Context, evt CallbackEvent) error
	Topic() string
}

type server struct {
	store        messageStore
	publisher    callbackPublisher
	tracker      *devices.Tracker
	logger       *zap.Logger
	previewChars int
}

func newServer(store messageStore, publisher callbackPublisher, tracker *devices.Tracker, logger *zap.Logger, previewChars int) *server {
	return &server{
		store:        store,
		publisher:    publisher,
		tracker:      tracker,
		logger:       logger,
		previewChars: previewChars,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("parser ok"))
	})
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/parse", s.handleParse)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("parser"))
	})
	return mux
}

type parseRequest struct {
	Payload string `json:"payload"`
}

type parseResponse struct {
	Size         int            `json:"size"`
	Items        []advdata.Item `json:"items"`
	LocalName    *string        `json:"local_name,omitempty"`
	TxPower      *int8          `json:"tx_power_dbm,omitempty"`
	Manufacturer string         `json:"manufacturer"`
}

// handleParse decodes a displayed hex payload into its AD structures.
func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST", http.StatusMethodNotAllowed)
		return
	}

	var in parseRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}

	raw, err := hexcodec.Decode(in.Payload)
	if err != nil {
		s.logger.Debug("parse rejected", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing data: " + err.Error()})
		return
	}

	items := advdata.Parse(raw)
	resp := parseResponse{
		Size:         len(raw),
		Items:        items,
		Manufacturer: advdata.ManufacturerSummary(items),
	}
	if name, ok := advdata.LocalName(items); ok {
		resp.LocalName = &name
	}
	if p, ok := advdata.TxPower(items); ok {
		resp.TxPower = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDevices lists (GET) or clears (DELETE) the tracked devices.
func (s *server) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		extendedOnly := strings.EqualFold(r.URL.Query().Get("extended"), "true")
		writeJSON(w, http.StatusOK, s.tracker.List(extendedOnly))
	case http.MethodDelete:
		s.tracker.Reset()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "only GET or DELETE", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.logger.With(zap.String("trace", uuid.NewString()))

	if r.Method != http.MethodPost {
		http.Error(w, "only POST", http.StatusMethodNotAllowed)
		return
	}

	var in MQTTMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.Warn("decode error", zap.Error(err))
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	normalize(&in)
	log.Info("recv",
		zap.Int64("msg_id", in.MessageID),
		zap.String("gw_mac", in.GatewayMAC),
		zap.String("gw_hw", in.GatewayHW),
		zap.String("dev_mac", in.DeviceMAC),
		zap.Int("qos", in.QoS),
		zap.Int64("ts", in.Timestamp),
		zap.String("rssi", ptrIntStr(in.RSSI)),
	)

	if err := validate(&in); err != nil {
		log.Warn("validation error", zap.Error(err))
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}

	log.Debug("payload",
		zap.Int("len", len(in.Payload)),
		zap.String("preview", head(in.Payload, s.previewChars)),
	)

	raw, err := hexcodec.Decode(in.Payload)
	if err != nil {
		log.Warn("invalid hex payload", zap.Error(err))
		http.Error(w, "payload must be hex: "+err.Error(), http.StatusBadRequest)
		return
	}

	items := parseAdvertisement(raw, log)

	obs := devices.Observation{Address: formatMAC(in.DeviceMAC), Raw: raw}
	if in.RSSI != nil {
		obs.RSSI = int16(*in.RSSI)
	}
	if in.Timestamp > 0 {
		obs.SeenAt = time.UnixMilli(in.Timestamp)
	}
	tracked := s.tracker.Observe(obs)

	ctx := r.Context()

	gw, err := s.store.FetchGateway(ctx, in.GatewayMAC)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("gateway not found", zap.String("gw_mac", in.GatewayMAC))
	case err != nil:
		log.Warn("gateway lookup failed", zap.String("gw_mac", in.GatewayMAC), zap.Error(err))
	default:
		log.Info("gateway ok", zap.String("name", gw.Name), zap.String("hw", gw.HWType), zap.String("client_id", gw.ClientID))
	}

	dev, err := s.store.FetchDevice(ctx, in.DeviceMAC)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("device not found; storing structures only", zap.String("dev_mac", in.DeviceMAC))
	case err != nil:
		log.Error("device lookup failed", zap.String("dev_mac", in.DeviceMAC), zap.Error(err))
		http.Error(w, "device lookup: "+err.Error(), http.StatusInternalServerError)
		return
	default:
		log.Info("device ok", zap.String("name", dev.Name), zap.String("hw", dev.HWType))
	}

	out := parsedOutput{
		Size:         len(raw),
		ADStructures: items,
		Manufacturer: advdata.ManufacturerSummary(items),
		PacketCount:  tracked.PacketCount,
		DeviceHWType: dev.HWType,
		ExtendedAdv:  tracked.Extended,
	}
	if name, ok := advdata.LocalName(items); ok {
		out.LocalName = &name
	}
	out.TxPower = tracked.TxPower

	if decoders.Supported(dev.HWType) {
		sd, ok := advdata.ServiceData16(items)
		if !ok {
			log.Warn("no 0x16 service data in ADV")
			http.Error(w, "no 0x16 service data in advertisement", http.StatusBadRequest)
			return
		}
		decoded, err := decoders.Decode(dev.HWType, sd, decoders.Meta{
			Timestamp:  in.Timestamp,
			MAC:        in.DeviceMAC,
			DeviceName: dev.Name,
			RSSI:       in.RSSI,
		})
		if err != nil {
			log.Warn("decode error", zap.String("uuid", sd.UUID), zap.Error(err))
			http.Error(w, "parse error: "+err.Error(), http.StatusBadRequest)
			return
		}
		out.ServiceUUID = sd.UUID
		out.Decoded = decoded
		log.Info("decode ok", zap.String("hw", dev.HWType), zap.String("uuid", sd.UUID))
	} else if dev.HWType != "" {
		log.Info("no decoder for device hardware type", zap.String("hw", dev.HWType))
	}

	if err := s.store.UpdateParsedJSON(ctx, in.MessageID, out); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Error("db update error",
				zap.String("message", pgErr.Message),
				zap.String("code", pgErr.Code),
				zap.String("detail", pgErr.Detail),
			)
		} else {
			log.Error("db update error", zap.Error(err))
		}
		http.Error(w, "db update parsed_json: "+err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info("db update ok", zap.Int64("message_id", in.MessageID))

	if s.publisher != nil {
		evt := CallbackEvent{
			DeviceId:  strings.ToUpper(in.DeviceMAC),
			Type:      out.eventType(),
			Timestamp: in.Timestamp,
			GatewayID: strings.ToUpper(in.GatewayMAC),
			Data: map[string]any{
				"parsed_json": out,
				"raw_data":    in.Payload,
			},
			BackendID: in.MessageID,
		}
		if out.ServiceUUID != "" {
			evt.Data["uuid"] = out.ServiceUUID
		}
		if in.RSSI != nil {
			evt.Data["rssi"] = *in.RSSI
		}

		// Non fatal: parsed_json is already stored.
		if err := s.publisher.Publish(ctx, evt); err != nil {
			log.Warn("publishCallback error", zap.Error(err))
		} else {
			log.Info("publishCallback ok", zap.String("topic", s.publisher.Topic()), zap.String("device", evt.DeviceId))
		}
	} else {
		log.Debug("pubsub not initialized; skipping publish")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"message_id":     in.MessageID,
		"device_hw_type": dev.HWType,
		"ad_count":       len(items),
		"ms":             time.Since(start).Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var macSeparators = strings.NewReplacer(":", "", "-", "", ".", "", " ", "")

func normalize(m *MQTTMessage) {
	m.DeviceMAC = strings.ToLower(macSeparators.Replace(m.DeviceMAC))
	m.GatewayMAC = strings.ToUpper(macSeparators.Replace(m.GatewayMAC))
	m.Payload = strings.TrimSpace(m.Payload)
}

func validate(m *MQTTMessage) error {
	if m.MessageID <= 0 {
		return fmt.Errorf("message_id must be > 0")
	}
	if m.DeviceMAC == "" {
		return fmt.Errorf("device_mac required")
	}
	if m.Payload == "" {
		return fmt.Errorf("payload empty")
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("timestamp ms required")
	}
	// RSSI is a signed byte on air.
	if m.RSSI != nil && (*m.RSSI < math.MinInt8 || *m.RSSI > math.MaxInt8) {
		return fmt.Errorf("rssi %d out of range", *m.RSSI)
	}
	return nil
}

// formatMAC renders a bare hex MAC as AA:BB:CC:DD:EE:FF. Anything that is
// not six bytes is returned uppercased.
func formatMAC(mac string) string {
	b, err := macHexToBytea(mac)
	if err != nil {
		return strings.ToUpper(mac)
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

func head(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func ptrIntStr(p *int) string {
	if p == nil {
		return "nil"
	}
	return fmt.Sprintf("%d", *p)
}
