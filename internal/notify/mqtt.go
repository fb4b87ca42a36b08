package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher publishes logger events to an MQTT broker.
type MQTTPublisher struct {
	client paho.Client
	prefix string
	logger *slog.Logger
}

// NewMQTTPublisher connects to broker and returns a publisher for topics
// under prefix.
func NewMQTTPublisher(broker, clientID, prefix string, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "mqtt")

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("broker connection lost", "error", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("connected to broker", "broker", broker)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return newMQTTPublisher(client, prefix, logger), nil
}

func newMQTTPublisher(client paho.Client, prefix string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "mqtt"),
	}
}

// PublishProgress sends a retained progress message so late subscribers
// see the latest state.
func (p *MQTTPublisher) PublishProgress(ctx context.Context, progress dglogger.Progress) error {
	return p.publish(ctx, ProgressTopic(p.prefix, progress.LoggerID), true, progress)
}

// PublishFinished sends the finish event. Not retained.
func (p *MQTTPublisher) PublishFinished(ctx context.Context, progress dglogger.Progress) error {
	return p.publish(ctx, FinishedTopic(p.prefix, progress.LoggerID), false, progress)
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, retained bool, progress dglogger.Progress) error {
	body, err := FormatPayload(progress)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1: progress updates must survive a broker reconnect.
	token := p.client.Publish(topic, 1, retained, body)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("published", "topic", topic, "bytes", len(body))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

var _ dglogger.Notifier = (*MQTTPublisher)(nil)
