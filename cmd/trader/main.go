package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/xid"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/internal/broker"
	"github.com/0x5487/stock-exchange/internal/bus"
	"github.com/0x5487/stock-exchange/internal/config"
	"github.com/0x5487/stock-exchange/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	inject := flag.String("inject", "", "apply the named macro event and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.ForEnv(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.App.MarketDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.App.MarketDuration)
		defer cancel()
	}

	client := broker.NewHTTPClient(cfg.Trader.ExchangeURL, nil)
	symbols, err := client.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instruments from %s: %w", cfg.Trader.ExchangeURL, err)
	}

	var submit broker.Submitter = client
	var quotes broker.QuoteSource = client
	var events broker.EventTrigger = client
	if cfg.Kafka.Enabled {
		orders := bus.NewOrderWriter(bus.NewWriter(cfg.Kafka), cfg.Kafka.OrderTopic, "trader")
		defer func() {
			if err := orders.Close(); err != nil {
				logger.Error("closing order writer", zap.Error(err))
			}
		}()
		submit = orders
		events = orders
	}

	if *inject != "" {
		if err := events.InjectEvent(ctx, *inject); err != nil {
			return fmt.Errorf("failed to inject %q: %w", *inject, err)
		}
		logger.Info("event sent", zap.String("label", *inject))
		return nil
	}

	if cfg.Kafka.Enabled {
		// follow the quote topic instead of polling the API for limit prices
		snap, err := client.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch snapshot: %w", err)
		}
		board := exchange.NewQuoteBoard()
		board.OnRebuild(snap)

		groupID := fmt.Sprintf("%s-trader-%s", cfg.Kafka.GroupID, xid.New().String())
		feed := bus.NewFeedReader(bus.NewFeedTopicReader(cfg.Kafka, cfg.Kafka.QuoteTopic, groupID), board, logger.Named("quotes"))
		defer feed.Close()
		go func() {
			if err := feed.Run(ctx); err != nil {
				logger.Error("quote feed stopped", zap.Error(err))
			}
		}()
		quotes = board
	}

	sim, err := broker.NewSimulator(broker.Config{
		Brokers:  cfg.Trader.Brokers,
		Symbols:  symbols,
		MinDelay: cfg.Trader.MinDelay,
		MaxDelay: cfg.Trader.MaxDelay,
	}, submit, quotes, nil, exchange.RealClock{}, logger.Named("broker"))
	if err != nil {
		return err
	}

	logger.Info("trading started",
		zap.Int("brokers", cfg.Trader.Brokers),
		zap.Strings("symbols", symbols),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)
	sim.Run(ctx)
	logger.Info("trading stopped")
	return nil
}
