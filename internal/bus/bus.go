// Package bus carries exchange commands and feed logs over Kafka.
package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/0x5487/stock-exchange/internal/config"
)

//go:generate go run -mod=mod github.com/golang/mock/mockgen --source=bus.go --destination=mocks/bus.go --package=mocks

// MessageReader abstracts the inbound stream.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter abstracts the outbound stream.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader builds a consumer-group reader on the order topic.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.OrderTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// commands carry a SeqID; replays after a rebalance are accepted as duplicates
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})
}

// NewFeedTopicReader builds a reader that follows topic from the latest
// offset under its own consumer group, so every reader sees every log.
func NewFeedTopicReader(cfg config.KafkaConfig, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     200 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
}

// NewWriter builds a writer without a fixed topic; every message names its own.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 5 * time.Millisecond,
		WriteTimeout: time.Second,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		Compression:  kafka.Snappy,
	}
}

func headers(source, kind string) []kafka.Header {
	return []kafka.Header{
		{Key: "source", Value: []byte(source)},
		{Key: "type", Value: []byte(kind)},
	}
}
