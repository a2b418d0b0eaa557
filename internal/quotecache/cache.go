// Package quotecache mirrors the quote feed into Redis: the latest quote per
// symbol, a bounded history list and a pub/sub channel.
package quotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
)

const writeTimeout = 2 * time.Second

// Client abstracts the Redis connection.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipeline() redis.Pipeliner
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

func LatestKey(symbol string) string  { return fmt.Sprintf("quote:%s", symbol) }
func HistoryKey(symbol string) string { return fmt.Sprintf("quotes:%s:history", symbol) }
func Channel(symbol string) string    { return fmt.Sprintf("quotes.%s", symbol) }

// Cache implements exchange.PublishLog for quote logs; other log types are ignored.
type Cache struct {
	rdb         Client
	historySize int64
	logger      *zap.Logger
}

func New(rdb Client, historySize int64, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historySize <= 0 {
		historySize = 1
	}
	return &Cache{rdb: rdb, historySize: historySize, logger: logger}
}

// Publish writes every quote in one pipeline. Errors are logged; the feed never blocks on Redis.
func (c *Cache) Publish(logs ...*exchange.ExchangeLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := c.rdb.Pipeline()
	queued := 0
	for _, log := range logs {
		if log.Type != exchange.LogTypeQuote {
			continue
		}

		payload, err := json.Marshal(log)
		if err != nil {
			c.logger.Error("encode quote", zap.String("symbol", log.Symbol), zap.Error(err))
			continue
		}

		history := HistoryKey(log.Symbol)
		pipe.Set(ctx, LatestKey(log.Symbol), payload, 0)
		pipe.LPush(ctx, history, payload)
		pipe.LTrim(ctx, history, 0, c.historySize-1)
		pipe.Publish(ctx, Channel(log.Symbol), payload)
		queued++
	}
	if queued == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Redis Pipeline Error", zap.Int("quotes", queued), zap.Error(err))
	}
}

// Latest returns the last cached quote for symbol, or exchange.ErrNotFound.
func (c *Cache) Latest(ctx context.Context, symbol string) (*exchange.ExchangeLog, error) {
	raw, err := c.rdb.Get(ctx, LatestKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no cached quote for %s", exchange.ErrNotFound, symbol)
	}
	if err != nil {
		return nil, err
	}

	var log exchange.ExchangeLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("decode cached quote: %w", err)
	}
	return &log, nil
}

// History returns up to limit cached quotes for symbol, newest first.
func (c *Cache) History(ctx context.Context, symbol string, limit int64) ([]*exchange.ExchangeLog, error) {
	if limit <= 0 || limit > c.historySize {
		limit = c.historySize
	}

	raws, err := c.rdb.LRange(ctx, HistoryKey(symbol), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	logs := make([]*exchange.ExchangeLog, 0, len(raws))
	for _, raw := range raws {
		var log exchange.ExchangeLog
		if err := json.Unmarshal([]byte(raw), &log); err != nil {
			c.logger.Warn("skipping undecodable history entry", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		logs = append(logs, &log)
	}
	return logs, nil
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
