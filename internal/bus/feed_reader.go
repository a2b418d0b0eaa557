package bus

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
)

// FeedReader replays exchange logs from a feed topic into a PublishLog,
// typically an exchange.QuoteBoard.
type FeedReader struct {
	reader MessageReader
	sink   exchange.PublishLog
	logger *zap.Logger
}

func NewFeedReader(reader MessageReader, sink exchange.PublishLog, logger *zap.Logger) *FeedReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedReader{reader: reader, sink: sink, logger: logger}
}

// Run reads until ctx is done or the reader fails.
func (f *FeedReader) Run(ctx context.Context) error {
	for {
		m, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var log exchange.ExchangeLog
		if err := json.Unmarshal(m.Value, &log); err != nil {
			f.logger.Warn("malformed exchange log", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		f.sink.Publish(&log)
	}
}

func (f *FeedReader) Close() error {
	return f.reader.Close()
}
