package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSender.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaTarget struct {
	brokers []string
	topic   string
	key     string
}

// parseKafka reads kafka://host1:9092,host2:9092/topic?key=name.
func parseKafka(u *url.URL) (kafkaTarget, error) {
	var t kafkaTarget
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			if !strings.Contains(b, ":") {
				b += ":9092"
			}
			t.brokers = append(t.brokers, b)
		}
	}
	if len(t.brokers) == 0 {
		return kafkaTarget{}, fmt.Errorf("kafka address %q has no brokers", u.Redacted())
	}
	t.topic = strings.Trim(u.Path, "/")
	if t.topic == "" {
		return kafkaTarget{}, fmt.Errorf("kafka address %q has no topic", u.Redacted())
	}
	t.key = u.Query().Get("key")
	return t, nil
}

// KafkaSender produces payloads to Kafka topics, keeping one writer per
// broker list and topic.
type KafkaSender struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	newWriter func(t kafkaTarget) messageWriter
	log       *logrus.Entry
}

// NewKafkaSender creates a sender with no open writers.
func NewKafkaSender(log *logrus.Entry) *KafkaSender {
	return &KafkaSender{
		writers: make(map[string]messageWriter),
		newWriter: func(t kafkaTarget) messageWriter {
			return &kafka.Writer{
				Addr:                   kafka.TCP(t.brokers...),
				Topic:                  t.topic,
				RequiredAcks:           kafka.RequireOne,
				AllowAutoTopicCreation: false,
				Balancer:               &kafka.Hash{},
			}
		},
		log: log,
	}
}

// Send writes payload as a single message to the topic named by u's path.
func (s *KafkaSender) Send(ctx context.Context, u *url.URL, payload []byte) (string, error) {
	t, err := parseKafka(u)
	if err != nil {
		return "", err
	}

	msg := kafka.Message{Value: payload}
	if t.key != "" {
		msg.Key = []byte(t.key)
	}
	if err := s.writer(t).WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to write to kafka topic %s: %w", t.topic, err)
	}
	return fmt.Sprintf("produced to %s", t.topic), nil
}

func (s *KafkaSender) writer(t kafkaTarget) messageWriter {
	key := strings.Join(t.brokers, ",") + "/" + t.topic

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[key]
	if !ok {
		w = s.newWriter(t)
		s.writers[key] = w
		s.log.WithFields(logrus.Fields{"brokers": t.brokers, "topic": t.topic}).Info("Created Kafka writer")
	}
	return w
}

// Close flushes and closes every writer.
func (s *KafkaSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.writers, key)
	}
	return errors.Join(errs...)
}
