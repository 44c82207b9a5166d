package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/uskin/config"
	"github.com/banshee-data/uskin/internal/monitoring"
	"github.com/banshee-data/uskin/uskin"
)

// DefaultPublishTimeout bounds how long FrameReady waits for the broker.
const DefaultPublishTimeout = 2 * time.Second

// Publisher is the subset of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each frame as a JSON FramePayload.
type MQTTSink struct {
	client  Publisher
	topic   string
	qos     byte
	Timeout time.Duration
}

// NewMQTTSink publishes on topic through client.
func NewMQTTSink(client Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: qos, Timeout: DefaultPublishTimeout}
}

// ConnectMQTT connects to the configured broker and returns a sink on the
// configured topic together with the client, which the caller disconnects.
func ConnectMQTT(cfg *config.MQTTConfig) (*MQTTSink, mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.GetClientID())
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("publish: mqtt connection to %s lost: %v", cfg.Broker, err)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	monitoring.Logf("publish: connected to mqtt broker %s as %s", cfg.Broker, cfg.GetClientID())
	return NewMQTTSink(c, cfg.GetTopic(), cfg.GetQoS()), c, nil
}

// FrameReady implements uskin.FrameSink.
func (s *MQTTSink) FrameReady(sensorID string, f *uskin.Frame, n *uskin.NormalizedFrame) error {
	msg, err := json.Marshal(NewFramePayload(sensorID, f, n))
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, s.qos, false, msg)
	if !token.WaitTimeout(s.Timeout) {
		return fmt.Errorf("mqtt publish to %s timed out after %s", s.topic, s.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", s.topic, err)
	}
	return nil
}
