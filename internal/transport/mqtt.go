package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultMQTTTopic is used when the address has no path.
const DefaultMQTTTopic = "sensors/temperature"

// mqttTarget is a parsed MQTT destination.
type mqttTarget struct {
	broker   string // paho broker URI, e.g. tcp://host:1883
	topic    string
	qos      byte
	retained bool
	username string
	password string
}

func parseMQTT(u *url.URL) (mqttTarget, error) {
	if u.Host == "" {
		return mqttTarget{}, fmt.Errorf("mqtt address %q has no broker host", u.Redacted())
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	host := u.Host
	if u.Port() == "" {
		port := "1883"
		if scheme == "ssl" {
			port = "8883"
		}
		host += ":" + port
	}

	t := mqttTarget{
		broker: scheme + "://" + host,
		topic:  strings.Trim(u.Path, "/"),
	}
	if t.topic == "" {
		t.topic = DefaultMQTTTopic
	}

	q := u.Query()
	if v := q.Get("qos"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 2 {
			return mqttTarget{}, fmt.Errorf("invalid mqtt qos %q", v)
		}
		t.qos = byte(n)
	}
	t.retained = q.Get("retain") == "true"

	if u.User != nil {
		t.username = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// MQTTSender publishes payloads to MQTT brokers, keeping one client per broker.
type MQTTSender struct {
	mu      sync.Mutex
	clients map[string]mqtt.Client
	log     *logrus.Entry
}

// NewMQTTSender creates a sender with no open connections.
func NewMQTTSender(log *logrus.Entry) *MQTTSender {
	return &MQTTSender{
		clients: make(map[string]mqtt.Client),
		log:     log,
	}
}

// Send publishes payload to the topic named by u's path.
func (s *MQTTSender) Send(ctx context.Context, u *url.URL, payload []byte) (string, error) {
	t, err := parseMQTT(u)
	if err != nil {
		return "", err
	}
	client, err := s.client(ctx, t)
	if err != nil {
		return "", err
	}

	token := client.Publish(t.topic, t.qos, t.retained, payload)
	if err := waitToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", t.topic, err)
	}
	return fmt.Sprintf("published to %s on %s", t.topic, t.broker), nil
}

func (s *MQTTSender) client(ctx context.Context, t mqttTarget) (mqtt.Client, error) {
	key := t.username + "@" + t.broker

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[key]; ok && c.IsConnectionOpen() {
		return c, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(t.broker).
		SetClientID("thermo-ocr-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}
	c := mqtt.NewClient(opts)
	if err := waitToken(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.broker, err)
	}
	s.log.WithField("broker", t.broker).Info("Connected to MQTT broker")
	s.clients[key] = c
	return c, nil
}

// waitToken waits for token to complete or ctx to end.
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects every broker client.
func (s *MQTTSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.clients {
		c.Disconnect(250)
		delete(s.clients, key)
	}
}
