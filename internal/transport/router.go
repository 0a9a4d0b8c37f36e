// Package transport delivers JSON payloads to network sinks.
//
// The destination scheme selects the protocol:
//
//	http://host/path, https://host/path   HTTP POST with Content-Type application/json
//	mqtt://host:1883/topic                 MQTT publish (also mqtts, tcp, ssl, ws, wss)
//	kafka://broker1,broker2/topic          Kafka produce
//
// Router implements sink.Sender.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedScheme is returned for addresses whose scheme has no sender.
var ErrUnsupportedScheme = errors.New("unsupported address scheme")

// Router dispatches payloads to the sender matching the address scheme.
type Router struct {
	http  *HTTPSender
	mqtt  *MQTTSender
	kafka *KafkaSender
	log   *logrus.Entry
}

// NewRouter creates a router with one sender per protocol. Broker
// connections are opened lazily on first use and reused afterwards.
func NewRouter(log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		http:  NewHTTPSender(nil),
		mqtt:  NewMQTTSender(log),
		kafka: NewKafkaSender(log),
		log:   log,
	}
}

// Send delivers payload to address.
func (r *Router) Send(ctx context.Context, address string, payload []byte) (string, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.http.Send(ctx, u, payload)
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		return r.mqtt.Send(ctx, u, payload)
	case "kafka":
		return r.kafka.Send(ctx, u, payload)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Close releases broker connections.
func (r *Router) Close() error {
	r.mqtt.Close()
	return r.kafka.Close()
}
