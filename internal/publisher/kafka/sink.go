// Package kafka implements a sink that publishes each record as a JSON message.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config selects the brokers and topic records are published to.
type Config struct {
	Brokers []string
	Topic   string
	// Spider is used as the message key.
	Spider string
}

// Message is the JSON value of one published record.
type Message struct {
	Spider     string            `json:"spider"`
	Fields     []string          `json:"fields"`
	Record     map[string]string `json:"record"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Sink publishes one message per record.
type Sink struct {
	writer messageWriter
	spider string
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewSink creates a sink writing to cfg.Topic.
func NewSink(cfg Config) (*Sink, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return NewSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}, cfg.Spider), nil
}

// NewSinkWithWriter builds a sink using a custom writer (tests).
func NewSinkWithWriter(writer messageWriter, spider string) *Sink {
	return &Sink{writer: writer, spider: spider, now: time.Now}
}

// Write publishes the record formed by fields and values.
func (s *Sink) Write(ctx context.Context, fields []string, values []string) error {
	if len(values) != len(fields) {
		return fmt.Errorf("got %d values for %d fields", len(values), len(fields))
	}
	record := make(map[string]string, len(fields))
	for i, f := range fields {
		record[f] = values[i]
	}
	now := s.now().UTC()
	payload, err := json.Marshal(Message{
		Spider:     s.spider,
		Fields:     fields,
		Record:     record,
		CapturedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(s.spider),
		Value: payload,
		Time:  now,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Close flushes and closes the writer. Later calls return the first result.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.writer.Close()
	})
	return s.closeErr
}
