package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ble-adv-parser/config"

	"cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"
)

// CallbackEvent is published for every stored message.
type CallbackEvent struct {
	DeviceId  string         `json:"deviceId"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	GatewayID string         `json:"gateway_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	BackendID int64          `json:"backend_id"`
}

// callbackMessage builds the Pub/Sub message for evt. With ordering enabled
// messages are keyed per device.
func callbackMessage(evt CallbackEvent, ordering bool) (*pubsub.Message, error) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}
	evt.DeviceId = strings.ToUpper(evt.DeviceId)

	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal callback event: %w", err)
	}

	msg := &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"source":     "ble-parser",
			"type":       evt.Type,
			"deviceId":   evt.DeviceId,
			"gateway_id": evt.GatewayID,
		},
	}
	if ordering {
		msg.OrderingKey = evt.DeviceId
	}
	return msg, nil
}

type pubsubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	ordering  bool
	logger    *zap.Logger
}

func newPubSubPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (*pubsubPublisher, error) {
	cl, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	// Accepts the topic ID ("ble-callbacks") or the full name.
	pub := cl.Publisher(cfg.Topic)
	pub.PublishSettings.DelayThreshold = 50 * time.Millisecond
	pub.PublishSettings.Timeout = 10 * time.Second
	pub.EnableMessageOrdering = cfg.Ordering

	logger.Info("Pub/Sub v2 initialized", zap.String("topic", cfg.Topic), zap.Bool("ordering", cfg.Ordering))
	return &pubsubPublisher{
		client:    cl,
		publisher: pub,
		topic:     cfg.Topic,
		ordering:  cfg.Ordering,
		logger:    logger,
	}, nil
}

func (p *pubsubPublisher) Topic() string {
	return p.topic
}

func (p *pubsubPublisher) Publish(ctx context.Context, evt CallbackEvent) error {
	msg, err := callbackMessage(evt, p.ordering)
	if err != nil {
		return err
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	p.logger.Debug("publishCallback ok", zap.String("topic", p.topic), zap.String("id", id), zap.Int("bytes", len(msg.Data)))
	return nil
}

func (p *pubsubPublisher) Close() {
	p.publisher.Stop()
	if err := p.client.Close(); err != nil {
		p.logger.Warn("closing pubsub client", zap.Error(err))
	}
}
