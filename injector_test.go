package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInjector(t *testing.T) {
	newInjector := func(t *testing.T, rnd Rand) (*EventInjector, *PriceOracle, *MemoryPublishLog) {
		oracle := newTestOracle(t)
		publish := NewMemoryPublishLog()
		injector, err := NewEventInjector(oracle, NewFeed(publish, nil), rnd, DefaultEventCatalog)
		require.NoError(t, err)
		return injector, oracle, publish
	}

	t.Run("TickPicksFromCatalog", func(t *testing.T) {
		// index 1 is Tech Bubble Burst
		injector, oracle, publish := newInjector(t, &fakeRand{ints: []int{1}})

		event := injector.Tick()
		assert.Equal(t, "Tech Bubble Burst", event.Label)
		assertDecimal(t, "105", oracle.Snapshot("AAPL"))

		logs := publish.Logs()
		require.Len(t, logs, 6)
		assert.Equal(t, LogTypeShock, logs[0].Type)
		assert.Equal(t, "Tech Bubble Burst", logs[0].EventLabel)
		assertDecimal(t, "-0.3", logs[0].Impact)
		for _, log := range logs[1:] {
			assert.Equal(t, LogTypeQuote, log.Type)
		}
	})

	t.Run("Inject", func(t *testing.T) {
		injector, oracle, _ := newInjector(t, &fakeRand{})

		event, err := injector.Inject("Major Product Launch")
		require.NoError(t, err)
		assertDecimal(t, "0.25", event.Impact)
		assertDecimal(t, "362.5", oracle.Snapshot("MSFT"))

		_, err = injector.Inject("Alien Invasion")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NextDelay", func(t *testing.T) {
		injector, _, _ := newInjector(t, NewLockedRand(1))

		for i := 0; i < 100; i++ {
			d := injector.NextDelay(20*time.Second, 25*time.Second)
			assert.GreaterOrEqual(t, d, 20*time.Second)
			assert.LessOrEqual(t, d, 25*time.Second)
		}
		assert.Equal(t, 3*time.Second, injector.NextDelay(3*time.Second, time.Second))
	})

	t.Run("RejectsBadCatalog", func(t *testing.T) {
		oracle := newTestOracle(t)

		_, err := NewEventInjector(oracle, NewFeed(nil, nil), &fakeRand{}, nil)
		assert.ErrorIs(t, err, ErrInvalidParam)

		_, err = NewEventInjector(oracle, NewFeed(nil, nil), &fakeRand{}, []PriceEvent{
			{Label: "Doom", Impact: decimal.RequireFromString("-1.5")},
		})
		assert.ErrorIs(t, err, ErrInvalidParam)
	})
}
