package exchange

import (
	"context"
	"testing"

	"github.com/0x5487/stock-exchange/protocol"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteBoard(t *testing.T) {
	board := NewQuoteBoard()
	board.OnRebuild(&ExchangeSnapshot{
		LastSeqID: 10,
		Quotes: []Quote{
			{Symbol: "MSFT", Price: decimal.NewFromInt(290), Availability: 900},
			{Symbol: "AAPL", Price: decimal.NewFromInt(150), Availability: 1000},
		},
	})
	assert.Equal(t, uint64(10), board.SequenceID())

	t.Run("StaleLogsAreIgnored", func(t *testing.T) {
		assert.False(t, board.Replay(&ExchangeLog{SequenceID: 9, Type: LogTypeQuote, Symbol: "AAPL", Price: decimal.NewFromInt(1)}))
		q, _ := board.Quote("AAPL")
		assertDecimal(t, "150", q.Price)
	})

	t.Run("NewerLogsApply", func(t *testing.T) {
		assert.True(t, board.Replay(&ExchangeLog{SequenceID: 12, Type: LogTypeQuote, Symbol: "AAPL", Price: decimal.NewFromInt(162), Availability: 900}))
		// MSFT's log is older than AAPL's but newer than MSFT's own
		assert.True(t, board.Replay(&ExchangeLog{SequenceID: 11, Type: LogTypeQuote, Symbol: "MSFT", Price: decimal.NewFromInt(300)}))
		assert.False(t, board.Replay(&ExchangeLog{SequenceID: 13, Type: LogTypeFill, Symbol: "AAPL"}))

		assert.Equal(t, uint64(12), board.SequenceID())
		quotes := board.Quotes()
		require.Len(t, quotes, 2)
		assert.Equal(t, "AAPL", quotes[0].Symbol)
		assert.Equal(t, uint64(900), quotes[0].Availability)
		assertDecimal(t, "300", quotes[1].Price)
	})

	t.Run("Price", func(t *testing.T) {
		price, err := board.Price(context.Background(), "AAPL")
		require.NoError(t, err)
		assertDecimal(t, "162", price)

		_, err = board.Price(context.Background(), "TSLA")
		assert.ErrorIs(t, err, ErrUnknownInstrument)
	})
}

func TestQuoteBoard_FollowsExchange(t *testing.T) {
	board := NewQuoteBoard()
	ex, err := NewExchange(board)
	require.NoError(t, err)
	board.OnRebuild(ex.Snapshot())

	_, err = ex.InjectEvent("Pandemic News")
	require.NoError(t, err)
	_, err = ex.PlaceOrder(context.Background(), &protocol.PlaceOrderCommand{Symbol: "GOOGL", Side: Buy, Kind: Market, Quantity: 80})
	require.NoError(t, err)

	want := ex.Quotes()
	got := board.Quotes()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Symbol, got[i].Symbol)
		assert.True(t, want[i].Price.Equal(got[i].Price), want[i].Symbol)
		assert.Equal(t, want[i].Availability, got[i].Availability)
	}
	assert.Equal(t, ex.Snapshot().LastSeqID, board.SequenceID())
}
