// Package broker simulates brokers sending random orders to the exchange.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/protocol"
)

const (
	minQuantity = 1
	maxQuantity = 99
	// limit prices land within ±maxLimitOffsetPct percent of the current price
	maxLimitOffsetPct = 10
	limitPriceScale   = 2
)

// Submitter delivers orders to the exchange.
type Submitter interface {
	Submit(ctx context.Context, cmd *protocol.PlaceOrderCommand) error
}

// EventTrigger asks the exchange to apply a named macro event.
type EventTrigger interface {
	InjectEvent(ctx context.Context, label string) error
}

// QuoteSource returns the current price of a symbol.
type QuoteSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Config struct {
	Brokers  int
	Symbols  []string
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Simulator runs Config.Brokers brokers, each sending one random order per delay.
type Simulator struct {
	cfg    Config
	submit Submitter
	quotes QuoteSource
	rnd    exchange.Rand
	clock  exchange.Clock
	logger *zap.Logger
}

func NewSimulator(cfg Config, submit Submitter, quotes QuoteSource, rnd exchange.Rand, clock exchange.Clock, logger *zap.Logger) (*Simulator, error) {
	if cfg.Brokers <= 0 || len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: need at least one broker and one symbol", exchange.ErrInvalidParam)
	}
	if cfg.MinDelay <= 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("%w: delay range [%s, %s]", exchange.ErrInvalidParam, cfg.MinDelay, cfg.MaxDelay)
	}
	if clock == nil {
		clock = exchange.RealClock{}
	}
	if rnd == nil {
		rnd = exchange.NewLockedRand(clock.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Simulator{cfg: cfg, submit: submit, quotes: quotes, rnd: rnd, clock: clock, logger: logger}, nil
}

// Run starts every broker and blocks until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i <= s.cfg.Brokers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.runBroker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) runBroker(ctx context.Context, id int) {
	log := s.logger.With(zap.Int("broker", id))
	log.Info("broker started")
	defer log.Info("broker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.nextDelay()):
		}

		if err := s.SendOne(ctx, id); err != nil && ctx.Err() == nil {
			log.Warn("order not sent", zap.Error(err))
		}
	}
}

// SendOne builds and submits a single random order.
func (s *Simulator) SendOne(ctx context.Context, brokerID int) error {
	cmd, err := s.NextOrder(ctx, brokerID)
	if err != nil {
		return err
	}

	if err := s.submit.Submit(ctx, cmd); err != nil {
		return fmt.Errorf("submit %s: %w", cmd.ClientOrderID, err)
	}

	s.logger.Info("order sent",
		zap.Int("broker", brokerID),
		zap.String("client_order_id", cmd.ClientOrderID),
		zap.String("symbol", cmd.Symbol),
		zap.Stringer("side", cmd.Side),
		zap.String("kind", string(cmd.Kind)),
		zap.Uint64("quantity", cmd.Quantity),
		zap.String("limit_price", cmd.LimitPrice),
	)
	return nil
}

// NextOrder draws a random order: symbol, side, quantity in [1, 99] and kind.
// Limit prices are the current price moved by a whole percentage in
// [-10, 10], rounded to cents and kept at or above the price floor.
func (s *Simulator) NextOrder(ctx context.Context, brokerID int) (*protocol.PlaceOrderCommand, error) {
	cmd := &protocol.PlaceOrderCommand{
		ClientOrderID: fmt.Sprintf("b%d-%s", brokerID, xid.New().String()),
		Symbol:        s.cfg.Symbols[s.rnd.Intn(len(s.cfg.Symbols))],
		Side:          exchange.Buy,
		Kind:          exchange.Market,
		Quantity:      uint64(minQuantity + s.rnd.Intn(maxQuantity-minQuantity+1)), //nolint:gosec // bounded
		Timestamp:     s.clock.Now().UnixNano(),
	}
	if s.rnd.Intn(2) == 1 {
		cmd.Side = exchange.Sell
	}
	if s.rnd.Intn(2) == 0 {
		return cmd, nil
	}

	if s.quotes == nil {
		return nil, errors.New("no quote source for limit orders")
	}
	price, err := s.quotes.Price(ctx, cmd.Symbol)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", cmd.Symbol, err)
	}

	offset := int64(s.rnd.Intn(2*maxLimitOffsetPct+1) - maxLimitOffsetPct)
	limit := price.Mul(decimal.NewFromInt(100 + offset)).Div(decimal.NewFromInt(100)).Round(limitPriceScale)
	if limit.LessThan(exchange.PriceFloor) {
		limit = exchange.PriceFloor
	}

	cmd.Kind = exchange.Limit
	cmd.LimitPrice = limit.StringFixed(limitPriceScale)
	return cmd, nil
}

func (s *Simulator) nextDelay() time.Duration {
	span := s.cfg.MaxDelay - s.cfg.MinDelay
	if span <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(s.rnd.Intn(int(span/time.Millisecond)+1))*time.Millisecond
}
