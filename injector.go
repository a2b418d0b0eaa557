package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultEventCatalog lists the macro events the injector draws from.
var DefaultEventCatalog = []PriceEvent{
	{Label: "US Election", Impact: decimal.RequireFromString("0.2")},
	{Label: "Tech Bubble Burst", Impact: decimal.RequireFromString("-0.3")},
	{Label: "Interest Rate Hike", Impact: decimal.RequireFromString("-0.1")},
	{Label: "Major Product Launch", Impact: decimal.RequireFromString("0.25")},
	{Label: "Economic Boom", Impact: decimal.RequireFromString("0.15")},
	{Label: "Pandemic News", Impact: decimal.RequireFromString("-0.2")},
}

// EventInjector applies randomly chosen macro events to the whole market.
type EventInjector struct {
	oracle  *PriceOracle
	feed    *Feed
	rnd     Rand
	catalog []PriceEvent
}

// NewEventInjector validates that every impact lies in [-1, 1].
func NewEventInjector(oracle *PriceOracle, feed *Feed, rnd Rand, catalog []PriceEvent) (*EventInjector, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: empty event catalog", ErrInvalidParam)
	}

	one := decimal.NewFromInt(1)
	for _, ev := range catalog {
		if ev.Label == "" || ev.Impact.Abs().GreaterThan(one) {
			return nil, fmt.Errorf("%w: event %q impact %s", ErrInvalidParam, ev.Label, ev.Impact)
		}
	}

	events := make([]PriceEvent, len(catalog))
	copy(events, catalog)

	return &EventInjector{oracle: oracle, feed: feed, rnd: rnd, catalog: events}, nil
}

// Tick draws one event uniformly from the catalog and applies it.
func (i *EventInjector) Tick() PriceEvent {
	event := i.catalog[i.rnd.Intn(len(i.catalog))]
	i.apply(event)
	return event
}

// Inject applies the catalog event with the given label.
func (i *EventInjector) Inject(label string) (PriceEvent, error) {
	for _, ev := range i.catalog {
		if ev.Label == label {
			i.apply(ev)
			return ev, nil
		}
	}
	return PriceEvent{}, fmt.Errorf("%w: event %q", ErrNotFound, label)
}

// Catalog returns a copy of the events the injector draws from.
func (i *EventInjector) Catalog() []PriceEvent {
	result := make([]PriceEvent, len(i.catalog))
	copy(result, i.catalog)
	return result
}

// NextDelay draws the wait before the next event uniformly from [lo, hi].
func (i *EventInjector) NextDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(i.rnd.Intn(int(hi-lo)+1))
}

func (i *EventInjector) apply(event PriceEvent) {
	quotes := i.oracle.ApplyEvent(event.Impact)
	i.feed.Shock(event, quotes)

	logger.Info("market event",
		zap.String("label", event.Label),
		zap.Stringer("impact", event.Impact),
	)
}
