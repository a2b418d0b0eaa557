package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/internal/api"
	"github.com/0x5487/stock-exchange/internal/bus"
	"github.com/0x5487/stock-exchange/internal/config"
	"github.com/0x5487/stock-exchange/internal/logging"
	"github.com/0x5487/stock-exchange/internal/metrics"
	"github.com/0x5487/stock-exchange/internal/quotecache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.ForEnv(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	exchange.SetLogger(logger.Named("engine"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.App.MarketDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.App.MarketDuration)
		defer cancel()
	}

	m := metrics.New()
	hub := api.NewHub(logger.Named("ws"))
	sinks := []exchange.PublishLog{m, hub}
	var closers []func() error

	var cache *quotecache.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = quotecache.New(rdb, cfg.Redis.HistorySize, logger.Named("redis"))
		if err := cache.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		sinks = append(sinks, cache)
		closers = append(closers, cache.Close)
	}

	if cfg.Kafka.Enabled {
		publisher := bus.NewFeedPublisher(bus.NewWriter(cfg.Kafka), cfg.Kafka, logger.Named("kafka"))
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	feed := exchange.NewAsyncPublishLog(int64(cfg.Exchange.FeedBuffer), exchange.NewMultiPublishLog(sinks...))

	ex, err := exchange.NewExchange(feed,
		exchange.WithRandomWalkInterval(cfg.Exchange.RandomWalkInterval),
		exchange.WithEventInterval(cfg.Exchange.EventIntervalMin, cfg.Exchange.EventIntervalMax),
		exchange.WithPollInterval(cfg.Exchange.PollInterval),
		exchange.WithCommandBuffer(cfg.Exchange.CommandBuffer),
	)
	if err != nil {
		return fmt.Errorf("failed to build exchange: %w", err)
	}

	m.WatchPending("pending_limit_orders", "Limit orders waiting for their price", func() float64 {
		return float64(ex.PendingCount())
	})
	m.WatchPending("feed_pending_batches", "Feed batches not yet delivered to sinks", func() float64 {
		return float64(feed.Pending())
	})

	opts := []api.Option{api.WithMetrics(m.Handler()), api.WithLogger(logger.Named("api"))}
	if cache != nil {
		opts = append(opts, api.WithHistory(cache))
	}
	server := api.NewServer(ex, hub, opts...)

	var wg sync.WaitGroup
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(serveCtx)
	}()
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(serveCtx, cfg.App.HTTPAddr); err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}()

	if cfg.Kafka.Enabled {
		consumer := bus.NewConsumer(bus.NewReader(cfg.Kafka), ex, logger.Named("kafka"))
		closers = append(closers, consumer.Close)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("command consumer stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("market open",
		zap.String("http_addr", cfg.App.HTTPAddr),
		zap.Duration("market_duration", cfg.App.MarketDuration),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	// Run returns once ctx is done and pending limits are abandoned
	runErr := ex.Run(ctx)
	logger.Info("market closed", zap.Any("final_quotes", ex.Quotes()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	errs = append(errs, feed.Shutdown(shutdownCtx))
	stopServing()
	wg.Wait()
	for _, closeFn := range closers {
		errs = append(errs, closeFn())
	}

	return errors.Join(errs...)
}
