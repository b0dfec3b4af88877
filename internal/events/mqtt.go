package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTPublisher publishes JSON-encoded events to an MQTT broker. Topics are
// translated from dotted form to slash form under a prefix, so
// "baywatch.tag.accepted" with prefix "site1" becomes "site1/tag/accepted".
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte

	mu        sync.RWMutex
	connected bool
}

// NewMQTTPublisher connects to broker (host:port or a full URL) and returns a
// publisher that reconnects automatically.
func NewMQTTPublisher(broker, clientID, prefix string) (*MQTTPublisher, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	p := &MQTTPublisher{prefix: strings.Trim(prefix, "/"), qos: 1}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		slog.Info("mqtt connected", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("mqtt connection lost", "broker", broker, "err", err)
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connecting to MQTT at %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT at %s: %w", broker, err)
	}
	p.setConnected(true)
	return p, nil
}

// MQTTTopic converts a dotted event topic to an MQTT topic under prefix.
// The leading "baywatch." namespace is replaced by the prefix when one is set.
func MQTTTopic(prefix, topic string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		topic = strings.TrimPrefix(topic, "baywatch.")
	}
	topic = strings.ReplaceAll(topic, ".", "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic string, event any) error {
	if !p.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	target := MQTTTopic(p.prefix, topic)
	token := p.client.Publish(target, p.qos, false, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publishing to %s: timeout", target)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", target, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	return nil
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
