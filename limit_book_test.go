package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitOrder(id uint64, symbol string, side Side, limit string) *Order {
	return &Order{
		ID:         id,
		Symbol:     symbol,
		Side:       side,
		Kind:       Limit,
		Quantity:   10,
		LimitPrice: decimal.RequireFromString(limit),
	}
}

func orderIDs(orders []*Order) []uint64 {
	ids := make([]uint64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestLimitQueue(t *testing.T) {
	t.Run("BuyQueueTriggersHighestLimitsFirst", func(t *testing.T) {
		q := newBuyLimitQueue()
		q.insertOrder(limitOrder(1, "AAPL", Buy, "140"))
		q.insertOrder(limitOrder(2, "AAPL", Buy, "145"))
		q.insertOrder(limitOrder(3, "AAPL", Buy, "130"))
		q.insertOrder(limitOrder(4, "AAPL", Buy, "145.00"))
		assert.Equal(t, int64(4), q.orderCount())

		// nothing fires above every limit
		assert.Empty(t, q.popTriggered(decimal.NewFromInt(150)))

		triggered := q.popTriggered(decimal.NewFromInt(140))
		assert.Equal(t, []uint64{2, 4, 1}, orderIDs(triggered))
		assert.Equal(t, int64(1), q.orderCount())

		snap := q.toSnapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, uint64(3), snap[0].ID)
	})

	t.Run("SellQueueTriggersLowestLimitsFirst", func(t *testing.T) {
		q := newSellLimitQueue()
		q.insertOrder(limitOrder(1, "AAPL", Sell, "160"))
		q.insertOrder(limitOrder(2, "AAPL", Sell, "155"))
		q.insertOrder(limitOrder(3, "AAPL", Sell, "170"))

		assert.Empty(t, q.popTriggered(decimal.NewFromInt(150)))

		triggered := q.popTriggered(decimal.NewFromInt(160))
		assert.Equal(t, []uint64{2, 1}, orderIDs(triggered))
		assert.Equal(t, int64(1), q.orderCount())
	})
}

func TestLimitBook(t *testing.T) {
	book := NewLimitBook()
	book.Add(limitOrder(1, "AAPL", Sell, "160"))
	book.Add(limitOrder(2, "AAPL", Buy, "140"))
	book.Add(limitOrder(3, "TSLA", Buy, "650"))

	assert.Equal(t, 3, book.Len())
	assert.Equal(t, []string{"AAPL", "TSLA"}, book.Symbols())

	orders := book.Orders()
	require.Len(t, orders, 3)
	assert.Equal(t, uint64(1), orders[0].ID)
	assert.Equal(t, uint64(3), orders[2].ID)

	// a price between both AAPL limits fires neither
	assert.Empty(t, book.PopTriggered("AAPL", decimal.NewFromInt(150)))
	assert.Empty(t, book.PopTriggered("MSFT", decimal.NewFromInt(150)))

	assert.Equal(t, []uint64{1}, orderIDs(book.PopTriggered("AAPL", decimal.NewFromInt(165))))
	assert.Equal(t, []string{"AAPL", "TSLA"}, book.Symbols())

	assert.Equal(t, []uint64{3}, orderIDs(book.PopTriggered("TSLA", decimal.NewFromInt(600))))
	assert.Equal(t, []string{"AAPL"}, book.Symbols())

	drained := book.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, uint64(2), drained[0].ID)
	assert.Equal(t, 0, book.Len())

	// a drained book is closed for good
	assert.ErrorIs(t, book.Add(limitOrder(4, "AAPL", Buy, "140")), ErrShutdown)
	assert.Equal(t, 0, book.Len())
	assert.Empty(t, book.Drain())
}
