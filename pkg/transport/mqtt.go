package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MQTTConfig configures the MQTT uplink.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// MQTT maps API paths onto topics. Put publishes the document; Get waits
// for the retained document of the topic.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	log     logrus.FieldLogger
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTT, error) {
	log = log.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID + "-" + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("connection lost")
	})

	client := mqtt.NewClient(opts)
	t := NewMQTT(client, cfg.QoS, cfg.Timeout, log)
	if err := t.wait(context.Background(), client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return t, nil
}

// NewMQTT wraps an existing client.
func NewMQTT(client mqtt.Client, qos byte, timeout time.Duration, log logrus.FieldLogger) *MQTT {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &MQTT{client: client, qos: qos, timeout: timeout, log: log}
}

// Topic converts an API path to a topic.
func Topic(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Put publishes body on the topic of path.
func (m *MQTT) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	topic := Topic(path)
	if err := m.wait(ctx, m.client.Publish(topic, m.qos, false, body)); err != nil {
		return nil, fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return &Response{Status: 200}, nil
}

// Get returns the retained message of the topic of path. The broker has no
// server clock, so Date is left zero.
func (m *MQTT) Get(ctx context.Context, path string) (*Response, error) {
	topic := Topic(path)
	msgs := make(chan []byte, 1)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case msgs <- msg.Payload():
		default:
		}
	}
	if err := m.wait(ctx, m.client.Subscribe(topic, m.qos, handler)); err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	defer func() {
		if err := m.wait(context.Background(), m.client.Unsubscribe(topic)); err != nil {
			m.log.WithError(err).WithField("topic", topic).Debug("unsubscribe failed")
		}
	}()

	t := time.NewTimer(m.timeout)
	defer t.Stop()

	select {
	case body := <-msgs:
		return &Response{Status: 200, Body: body}, nil
	case <-t.C:
		return nil, fmt.Errorf("no retained message on topic %s", topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) wait(ctx context.Context, token mqtt.Token) error {
	t := time.NewTimer(m.timeout)
	defer t.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-t.C:
		return fmt.Errorf("timed out after %s", m.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
