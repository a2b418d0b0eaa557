package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/internal/config"
)

const publishTimeout = 2 * time.Second

// FeedPublisher writes exchange logs to one topic per log type, keyed by
// symbol so each instrument's logs stay ordered within a partition.
// Wrap it in an exchange.AsyncPublishLog so network writes stay off the trading path.
type FeedPublisher struct {
	writer MessageWriter
	topics map[exchange.LogType]string
	logger *zap.Logger
}

func NewFeedPublisher(writer MessageWriter, cfg config.KafkaConfig, logger *zap.Logger) *FeedPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedPublisher{
		writer: writer,
		topics: map[exchange.LogType]string{
			exchange.LogTypeQuote:  cfg.QuoteTopic,
			exchange.LogTypeFill:   cfg.FillTopic,
			exchange.LogTypeReject: cfg.RejectTopic,
			exchange.LogTypeShock:  cfg.EventTopic,
		},
		logger: logger,
	}
}

// Publish implements exchange.PublishLog. Failed writes are logged and dropped.
func (p *FeedPublisher) Publish(logs ...*exchange.ExchangeLog) {
	msgs := make([]kafka.Message, 0, len(logs))
	for _, log := range logs {
		topic, ok := p.topics[log.Type]
		if !ok || topic == "" {
			continue
		}

		value, err := json.Marshal(log)
		if err != nil {
			p.logger.Error("encode exchange log", zap.Uint64("seq_id", log.SequenceID), zap.Error(err))
			continue
		}

		key := log.Symbol
		if log.Type == exchange.LogTypeShock {
			key = log.EventLabel
		}

		msgs = append(msgs, kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   value,
			Headers: headers("exchange", string(log.Type)),
			Time:    log.CreatedAt,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish exchange logs to kafka",
			zap.Int("count", len(msgs)),
			zap.Uint64("first_seq_id", logs[0].SequenceID),
			zap.Error(err),
		)
	}
}

// Close closes the underlying writer.
func (p *FeedPublisher) Close() error {
	return p.writer.Close()
}
