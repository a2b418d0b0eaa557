package exchange

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/0x5487/stock-exchange/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, opts ...Option) (*Exchange, *MemoryPublishLog) {
	t.Helper()
	publish := NewMemoryPublishLog()
	ex, err := NewExchange(publish, opts...)
	require.NoError(t, err)
	return ex, publish
}

// fastOptions shrink every timer so Run produces activity within a test.
func fastOptions() []Option {
	return []Option{
		WithRand(NewLockedRand(42)),
		WithRandomWalkInterval(5 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithEventInterval(10*time.Millisecond, 20*time.Millisecond),
	}
}

func startExchange(t *testing.T, ex *Exchange, publish *MemoryPublishLog) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background()) }()

	// opening quotes mean Run has started its loops
	require.Eventually(t, func() bool {
		return len(publish.ByType(LogTypeQuote)) >= len(ex.Registry().Symbols())
	}, time.Second, time.Millisecond)
	return errCh
}

func stopExchange(t *testing.T, ex *Exchange, errCh <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ex.Shutdown(ctx))
	require.NoError(t, <-errCh)
}

func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("NewExchangeRejectsBadOptions", func(t *testing.T) {
		_, err := NewExchange(nil, WithPollInterval(0))
		assert.ErrorIs(t, err, ErrInvalidParam)

		_, err = NewExchange(nil, WithEventInterval(time.Second, time.Millisecond))
		assert.ErrorIs(t, err, ErrInvalidParam)

		_, err = NewExchange(nil, WithInstruments())
		assert.ErrorIs(t, err, ErrInvalidParam)
	})

	t.Run("PlaceMarketOrder", func(t *testing.T) {
		ex, publish := newTestExchange(t)

		outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			ClientOrderID: "c-1",
			Symbol:        "AAPL",
			Side:          Buy,
			Kind:          Market,
			Quantity:      100,
		})
		require.NoError(t, err)
		assert.Equal(t, OrderStatusExecuted, outcome.Status)
		assert.Equal(t, uint64(1), outcome.OrderID)
		require.NotNil(t, outcome.Fill)
		assertDecimal(t, "150", outcome.Fill.Price)
		assertDecimal(t, "162", outcome.Fill.NewPrice)

		q, err := ex.Quote("AAPL")
		require.NoError(t, err)
		assertDecimal(t, "162", q.Price)
		assert.Equal(t, uint64(900), q.Availability)

		logs := publish.Logs()
		require.Len(t, logs, 2)
		assert.Equal(t, LogTypeFill, logs[0].Type)
		assert.Equal(t, "c-1", logs[0].ClientOrderID)
		assert.Equal(t, LogTypeQuote, logs[1].Type)
	})

	t.Run("PlaceLimitOrderWatches", func(t *testing.T) {
		ex, _ := newTestExchange(t)

		outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol:     "MSFT",
			Side:       Buy,
			Kind:       Limit,
			Quantity:   5,
			LimitPrice: "250",
		})
		require.NoError(t, err)
		assert.Equal(t, OrderStatusWatching, outcome.Status)
		assert.Equal(t, 1, ex.PendingCount())

		pending := ex.PendingOrders()
		require.Len(t, pending, 1)
		assertDecimal(t, "250", pending[0].LimitPrice)
	})

	t.Run("MalformedOrdersAreRejected", func(t *testing.T) {
		ex, publish := newTestExchange(t)

		outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol: "AAPL", Side: Side(9), Kind: Market, Quantity: 1,
		})
		assert.ErrorIs(t, err, ErrUnknownOrderKindOrSide)
		assert.Equal(t, OrderStatusRejected, outcome.Status)
		assert.Equal(t, protocol.RejectReasonInvalidOrder, outcome.Reason)

		_, err = ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol: "AAPL", Side: Sell, Kind: Limit, Quantity: 1, LimitPrice: "abc",
		})
		assert.ErrorIs(t, err, ErrInvalidLimitPrice)

		_, err = ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{Symbol: "NOPE", Side: Buy, Kind: Market, Quantity: 1})
		assert.ErrorIs(t, err, ErrUnknownInstrument)

		rejects := publish.ByType(LogTypeReject)
		require.Len(t, rejects, 3)
		// undefined variants stay off the feed
		assert.False(t, rejects[0].Side.IsValid())
		assert.Equal(t, uint64(1), rejects[0].OrderID)
		assert.Equal(t, uint64(3), rejects[2].OrderID)

		_, err = ex.Quote("NOPE")
		assert.ErrorIs(t, err, ErrUnknownInstrument)
	})

	t.Run("OversizedQuantityIsRejected", func(t *testing.T) {
		ex, publish := newTestExchange(t)

		for _, qty := range []uint64{math.MaxUint64 - 999, 1 << 63, MaxOrderQuantity + 1} {
			cmd := &protocol.PlaceOrderCommand{Symbol: "AAPL", Side: Sell, Kind: Market, Quantity: qty}
			assert.Error(t, protocol.Validate(cmd))

			outcome, err := ex.PlaceOrder(ctx, cmd)
			assert.ErrorIs(t, err, ErrInvalidParam)
			assert.Equal(t, OrderStatusRejected, outcome.Status)
		}
		assert.Len(t, publish.ByType(LogTypeReject), 3)
		assert.Empty(t, publish.ByType(LogTypeFill))

		q, err := ex.Quote("AAPL")
		require.NoError(t, err)
		assertDecimal(t, "150", q.Price)
		assert.Equal(t, uint64(1000), q.Availability)

		// the largest order still trades and a sell never raises the price
		outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol: "AAPL", Side: Sell, Kind: Market, Quantity: MaxOrderQuantity,
		})
		require.NoError(t, err)
		assertDecimal(t, "127.5", outcome.Fill.NewPrice)
		assert.Equal(t, MaxOrderQuantity+1000, outcome.Fill.NewAvailability)
	})

	t.Run("ConcurrentOrderIDsAreUnique", func(t *testing.T) {
		ex, _ := newTestExchange(t)

		const workers, perWorker = 50, 20
		ids := make(chan uint64, workers*perWorker)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
						Symbol: "TSLA", Side: Buy, Kind: Market, Quantity: 1,
					})
					if err == nil {
						ids <- outcome.OrderID
					}
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[uint64]bool, workers*perWorker)
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, workers*perWorker)
		for id := uint64(1); id <= workers*perWorker; id++ {
			assert.True(t, seen[id], "missing id %d", id)
		}

		q, err := ex.Quote("TSLA")
		require.NoError(t, err)
		assert.Equal(t, uint64(200), q.Availability)
	})

	t.Run("InjectEvent", func(t *testing.T) {
		ex, publish := newTestExchange(t)

		event, err := ex.InjectEvent("Interest Rate Hike")
		require.NoError(t, err)
		assertDecimal(t, "-0.1", event.Impact)

		q, _ := ex.Quote("GOOGL")
		assertDecimal(t, "2520", q.Price)
		assert.Len(t, publish.ByType(LogTypeShock), 1)
		assert.Len(t, ex.EventCatalog(), len(DefaultEventCatalog))
	})
}

func TestExchange_Run(t *testing.T) {
	t.Run("TimersMovePrices", func(t *testing.T) {
		ex, publish := newTestExchange(t, fastOptions()...)
		errCh := startExchange(t, ex, publish)

		assert.Eventually(t, func() bool {
			return len(publish.ByType(LogTypeShock)) > 0 &&
				len(publish.ByType(LogTypeQuote)) > 3*len(ex.Registry().Symbols())
		}, 2*time.Second, 5*time.Millisecond)

		stopExchange(t, ex, errCh)

		// sequence IDs are dense and ordered
		logs := publish.Logs()
		for i, log := range logs {
			require.Equal(t, uint64(i+1), log.SequenceID)
		}
	})

	t.Run("PollerExecutesTriggeredLimit", func(t *testing.T) {
		ex, publish := newTestExchange(t, fastOptions()...)
		errCh := startExchange(t, ex, publish)

		// every price is at or above the floor, so a sell limit at 1 fires on the next poll
		outcome, err := ex.PlaceOrder(context.Background(), &protocol.PlaceOrderCommand{
			Symbol: "AAPL", Side: Sell, Kind: Limit, Quantity: 10, LimitPrice: "1",
		})
		require.NoError(t, err)
		assert.Equal(t, OrderStatusWatching, outcome.Status)

		assert.Eventually(t, func() bool {
			return len(publish.ByType(LogTypeFill)) == 1 && ex.PendingCount() == 0
		}, 2*time.Second, 5*time.Millisecond)

		stopExchange(t, ex, errCh)

		fill := publish.ByType(LogTypeFill)[0]
		assert.Equal(t, outcome.OrderID, fill.OrderID)
		assert.Equal(t, Limit, fill.OrderKind)
	})

	t.Run("EnqueueCommand", func(t *testing.T) {
		ex, publish := newTestExchange(t, fastOptions()...)
		errCh := startExchange(t, ex, publish)

		serializer := protocol.DefaultJSONSerializer{}
		payload, err := serializer.Marshal(&protocol.PlaceOrderCommand{
			ClientOrderID: "bus-1", Symbol: "GOOGL", Side: Buy, Kind: Market, Quantity: 8,
		})
		require.NoError(t, err)

		require.NoError(t, ex.EnqueueCommand(&protocol.Command{
			Type: protocol.CmdPlaceOrder, Symbol: "GOOGL", SeqID: 7, Payload: payload,
		}))
		require.NoError(t, ex.EnqueueCommand(&protocol.Command{
			Type: protocol.CmdPlaceOrder, SeqID: 8, Payload: []byte("{"),
		}))

		assert.Eventually(t, func() bool {
			return ex.LastCmdSeqID() == 8
		}, time.Second, time.Millisecond)

		stopExchange(t, ex, errCh)

		fills := publish.ByType(LogTypeFill)
		require.Len(t, fills, 1)
		assert.Equal(t, "bus-1", fills[0].ClientOrderID)
		assert.Equal(t, uint64(8), fills[0].Quantity)
	})

	t.Run("RunTwice", func(t *testing.T) {
		ex, publish := newTestExchange(t, fastOptions()...)
		errCh := startExchange(t, ex, publish)

		assert.ErrorIs(t, ex.Run(context.Background()), ErrInvalidParam)

		stopExchange(t, ex, errCh)
	})

	t.Run("ContextCancelStops", func(t *testing.T) {
		ex, _ := newTestExchange(t, fastOptions()...)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- ex.Run(ctx) }()

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}

func TestExchange_ConservationUnderInterleaving(t *testing.T) {
	ex, publish := newTestExchange(t, fastOptions()...)
	errCh := startExchange(t, ex, publish)
	ctx := context.Background()

	start := make(map[string]uint64)
	for _, inst := range ex.Registry().Instruments() {
		start[inst.Symbol] = inst.Availability
	}
	symbols := ex.Registry().Symbols()

	const traders, perTrader = 16, 100
	var wg sync.WaitGroup
	for w := 0; w < traders; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < perTrader; i++ {
				symbol := symbols[rnd.Intn(len(symbols))]
				cmd := &protocol.PlaceOrderCommand{
					Symbol:   symbol,
					Side:     Buy,
					Kind:     Market,
					Quantity: uint64(1 + rnd.Intn(300)),
				}
				if rnd.Intn(2) == 0 {
					cmd.Side = Sell
				}
				if rnd.Intn(3) == 0 {
					cmd.Kind = Limit
					cmd.LimitPrice = ex.oracle.Snapshot(symbol).StringFixed(2)
				}
				_, _ = ex.PlaceOrder(ctx, cmd)
			}
		}(int64(w + 1))
	}

	// extra price movers on top of the exchange's own timers
	catalog := ex.EventCatalog()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if w%2 == 0 {
					ex.randomWalk()
				} else {
					_, _ = ex.InjectEvent(catalog[i%len(catalog)].Label)
				}
				ex.matching.Poll()
			}
		}(w)
	}
	wg.Wait()
	stopExchange(t, ex, errCh)

	fills := publish.ByType(LogTypeFill)
	require.NotEmpty(t, fills)

	expected := make(map[string]uint64, len(start))
	for symbol, avail := range start {
		expected[symbol] = avail
	}
	for _, fill := range fills {
		if fill.Side == Buy {
			expected[fill.Symbol] -= fill.Quantity
		} else {
			expected[fill.Symbol] += fill.Quantity
		}
	}

	for _, q := range ex.Quotes() {
		assert.Equal(t, expected[q.Symbol], q.Availability, q.Symbol)
		assert.True(t, q.Price.GreaterThanOrEqual(PriceFloor), "%s price %s", q.Symbol, q.Price)
	}

	// sequence ids stay contiguous however the writers interleave
	logs := publish.Logs()
	for i := 1; i < len(logs); i++ {
		assert.Equal(t, logs[i-1].SequenceID+1, logs[i].SequenceID)
	}
}

func TestExchange_Shutdown(t *testing.T) {
	ctx := context.Background()

	t.Run("AbandonsPendingLimits", func(t *testing.T) {
		ex, publish := newTestExchange(t, fastOptions()...)
		errCh := startExchange(t, ex, publish)

		// a buy far below the floor never triggers
		_, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol: "AMZN", Side: Buy, Kind: Limit, Quantity: 1, LimitPrice: "0.5",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, ex.PendingCount())

		stopExchange(t, ex, errCh)

		assert.Equal(t, 0, ex.PendingCount())
		assert.Empty(t, publish.ByType(LogTypeFill))
	})

	t.Run("RejectsAfterShutdown", func(t *testing.T) {
		ex, _ := newTestExchange(t)
		require.NoError(t, ex.Shutdown(ctx))

		outcome, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
			Symbol: "AAPL", Side: Buy, Kind: Market, Quantity: 1,
		})
		assert.ErrorIs(t, err, ErrShutdown)
		assert.Equal(t, protocol.RejectReasonShutdown, outcome.Reason)

		assert.ErrorIs(t, ex.EnqueueCommand(&protocol.Command{Type: protocol.CmdPlaceOrder}), ErrShutdown)

		_, err = ex.InjectEvent("US Election")
		assert.ErrorIs(t, err, ErrShutdown)

		assert.ErrorIs(t, ex.Run(ctx), ErrShutdown)
	})
}

func TestExchange_Snapshot(t *testing.T) {
	ex, _ := newTestExchange(t)
	ctx := context.Background()

	_, err := ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{Symbol: "AAPL", Side: Buy, Kind: Market, Quantity: 10})
	require.NoError(t, err)
	_, err = ex.PlaceOrder(ctx, &protocol.PlaceOrderCommand{
		Symbol: "TSLA", Side: Sell, Kind: Limit, Quantity: 3, LimitPrice: "900",
	})
	require.NoError(t, err)

	snap := ex.Snapshot()
	assert.Equal(t, EngineVersion, snap.EngineVersion)
	assert.Equal(t, uint64(2), snap.LastOrderID)
	assert.Equal(t, uint64(2), snap.LastSeqID)
	assert.Len(t, snap.Quotes, 5)
	require.Len(t, snap.PendingOrders, 1)
	assert.Equal(t, "TSLA", snap.PendingOrders[0].Symbol)
}
