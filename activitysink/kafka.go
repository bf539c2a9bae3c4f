// Package activitysink publishes auth activity events to external systems.
package activitysink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/txnjournal/go-txn-auth/activitymap"
)

const (
	headerEventType = "event_type"
	headerCategory  = "category"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the producer and the records it publishes.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Channel      string
	MaxAttempts  int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// RecordOptions are the activitymap options implied by the config.
func (c KafkaConfig) RecordOptions() []activitymap.Option {
	return []activitymap.Option{activitymap.WithChannel(c.Channel)}
}

// NewKafkaWriter builds a synchronous writer that waits for the leader.
func NewKafkaWriter(cfg KafkaConfig, logger auth.Logger) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, goerrors.New("kafka brokers and topic are required", goerrors.CategoryBadInput).
			WithTextCode(auth.TextCodeConfigMissing)
	}
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Compression:  kafka.Snappy,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error("kafka writer error", "detail", sprintf(msg, args...))
		}),
	}, nil
}

// KafkaSink writes activity records keyed by the affected user, so all
// events of one account land on the same partition in order.
type KafkaSink struct {
	writer  MessageWriter
	options []activitymap.Option
}

var _ auth.ActivitySink = (*KafkaSink)(nil)

// NewKafkaSink wraps writer.
func NewKafkaSink(writer MessageWriter, opts ...activitymap.Option) *KafkaSink {
	return &KafkaSink{writer: writer, options: opts}
}

// Record implements auth.ActivitySink.
func (k *KafkaSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	record := activitymap.FromEvent(event, k.options...)
	payload, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity record")
	}

	msg := kafka.Message{
		Key:   record.PartitionKey(),
		Value: payload,
		Time:  record.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerCategory, Value: []byte(record.Category)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish activity record").
			WithMetadata(map[string]any{"event_type": string(event.EventType)})
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func sprintf(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
