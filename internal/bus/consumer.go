package bus

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/protocol"
)

// CommandSink accepts decoded commands. *exchange.Exchange satisfies it.
type CommandSink interface {
	EnqueueCommand(cmd *protocol.Command) error
}

// Consumer feeds command envelopes from Kafka into the exchange.
type Consumer struct {
	reader MessageReader
	sink   CommandSink
	logger *zap.Logger
}

func NewConsumer(reader MessageReader, sink CommandSink, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, sink: sink, logger: logger}
}

// Run reads until ctx is done, the reader is exhausted or the sink shuts down.
// Malformed envelopes are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("command consumer started")
	defer c.logger.Info("command consumer stopped")

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var cmd protocol.Command
		if err := json.Unmarshal(m.Value, &cmd); err != nil {
			c.logger.Warn("malformed command envelope", zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if cmd.Symbol == "" {
			cmd.Symbol = string(m.Key)
		}

		if err := c.sink.EnqueueCommand(&cmd); err != nil {
			if errors.Is(err, exchange.ErrShutdown) {
				return nil
			}
			c.logger.Error("enqueue command failed", zap.Uint64("seq_id", cmd.SeqID), zap.Error(err))
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
