package exchange

import (
	"fmt"
	"math"
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

type instrumentState struct {
	price        decimal.Decimal
	availability uint64
}

// TradeResult is the effect of one trade on an instrument.
type TradeResult struct {
	// ExecutionPrice is the price the trade realized at: the price before impact,
	// read in the same critical section that applied the trade.
	ExecutionPrice  decimal.Decimal
	NewPrice        decimal.Decimal
	NewAvailability uint64
}

// PriceOracle owns the live price and availability of every instrument.
// All reads and writes go through one mutex so no caller sees a torn pair.
type PriceOracle struct {
	mu    sync.Mutex
	table *treemap.TreeMap[string, *instrumentState]
}

// NewPriceOracle seeds the table from the registry's opening listings.
func NewPriceOracle(registry *Registry) *PriceOracle {
	o := &PriceOracle{
		table: treemap.New[string, *instrumentState](),
	}
	for _, inst := range registry.Instruments() {
		o.table.Set(inst.Symbol, &instrumentState{
			price:        normalizePrice(inst.Price),
			availability: inst.Availability,
		})
	}
	return o
}

// Snapshot returns the current price of symbol, or zero if it is not listed.
func (o *PriceOracle) Snapshot(symbol string) decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.table.Get(symbol)
	if !ok {
		return decimal.Zero
	}
	return st.price
}

// Quote returns the current price and availability of symbol.
func (o *PriceOracle) Quote(symbol string) (Quote, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.table.Get(symbol)
	if !ok {
		return Quote{}, false
	}
	return Quote{Symbol: symbol, Price: st.price, Availability: st.availability}, true
}

// Quotes returns every instrument in symbol order, read under one lock.
func (o *PriceOracle) Quotes() []Quote {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quotesLocked()
}

func (o *PriceOracle) quotesLocked() []Quote {
	result := make([]Quote, 0, o.table.Len())
	for it := o.table.Iterator(); it.Valid(); it.Next() {
		st := it.Value()
		result = append(result, Quote{Symbol: it.Key(), Price: st.price, Availability: st.availability})
	}
	return result
}

// ApplyRandomWalk moves each instrument independently by a fraction drawn
// uniformly from [-10%, +10%] and returns the resulting quotes.
func (o *PriceOracle) ApplyRandomWalk(rnd Rand) []Quote {
	o.mu.Lock()
	defer o.mu.Unlock()

	for it := o.table.Iterator(); it.Valid(); it.Next() {
		st := it.Value()
		fraction := walkFraction(rnd.Float64())
		st.price = normalizePrice(st.price.Add(st.price.Mul(fraction)))
	}
	return o.quotesLocked()
}

// ApplyEvent moves every instrument by the same signed fraction and returns the resulting quotes.
func (o *PriceOracle) ApplyEvent(impact decimal.Decimal) []Quote {
	o.mu.Lock()
	defer o.mu.Unlock()

	for it := o.table.Iterator(); it.Valid(); it.Next() {
		st := it.Value()
		st.price = normalizePrice(st.price.Add(st.price.Mul(impact)))
	}
	return o.quotesLocked()
}

// ApplyTrade debits (Buy) or credits (Sell) availability and moves the price
// by PriceImpact. A Buy larger than the current availability fails with
// ErrInsufficientAvailability and leaves the instrument untouched.
func (o *PriceOracle) ApplyTrade(symbol string, side Side, quantity uint64) (TradeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.table.Get(symbol)
	if !ok {
		return TradeResult{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}

	result := TradeResult{ExecutionPrice: st.price}
	impact := PriceImpact(st.price, quantity, st.availability)

	switch side {
	case Buy:
		if st.availability < quantity {
			return TradeResult{}, fmt.Errorf("%w: %s requested %d, available %d",
				ErrInsufficientAvailability, symbol, quantity, st.availability)
		}
		st.availability -= quantity
		st.price = normalizePrice(st.price.Add(impact))
	case Sell:
		if quantity > math.MaxUint64-st.availability {
			return TradeResult{}, fmt.Errorf("%w: %s sell of %d overflows availability %d",
				ErrInvalidParam, symbol, quantity, st.availability)
		}
		st.availability += quantity
		st.price = normalizePrice(st.price.Sub(impact))
	default:
		return TradeResult{}, fmt.Errorf("%w: side=%d", ErrUnknownOrderKindOrSide, side)
	}

	result.NewPrice = st.price
	result.NewAvailability = st.availability
	return result, nil
}

// Symbols returns the symbols the oracle tracks, in order.
func (o *PriceOracle) Symbols() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := make([]string, 0, o.table.Len())
	for it := o.table.Iterator(); it.Valid(); it.Next() {
		result = append(result, it.Key())
	}
	return result
}
