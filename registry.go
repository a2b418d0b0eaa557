package exchange

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// maxSuggestDistance is the largest edit distance still offered as a "did you mean".
const maxSuggestDistance = 2

// StarterBasket returns the fixed set of instruments the exchange opens with.
func StarterBasket() []Instrument {
	return []Instrument{
		{Symbol: "AAPL", Price: decimal.NewFromInt(150), Availability: 1000},
		{Symbol: "GOOGL", Price: decimal.NewFromInt(2800), Availability: 800},
		{Symbol: "AMZN", Price: decimal.NewFromInt(3400), Availability: 600},
		{Symbol: "TSLA", Price: decimal.NewFromInt(700), Availability: 1200},
		{Symbol: "MSFT", Price: decimal.NewFromInt(290), Availability: 900},
	}
}

// Registry is the immutable set of listed instruments.
type Registry struct {
	instruments map[string]Instrument
	symbols     []string
}

// NewRegistry validates the listing and returns a registry over it.
// Symbols must be unique and non-empty; opening prices must be at least PriceFloor.
func NewRegistry(instruments ...Instrument) (*Registry, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("%w: empty instrument list", ErrInvalidParam)
	}

	r := &Registry{
		instruments: make(map[string]Instrument, len(instruments)),
		symbols:     make([]string, 0, len(instruments)),
	}

	for _, inst := range instruments {
		if strings.TrimSpace(inst.Symbol) == "" {
			return nil, fmt.Errorf("%w: empty symbol", ErrInvalidParam)
		}
		if _, exists := r.instruments[inst.Symbol]; exists {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidParam, inst.Symbol)
		}
		if inst.Price.LessThan(PriceFloor) {
			return nil, fmt.Errorf("%w: %s price %s below floor", ErrInvalidParam, inst.Symbol, inst.Price)
		}
		r.instruments[inst.Symbol] = inst
		r.symbols = append(r.symbols, inst.Symbol)
	}

	sort.Strings(r.symbols)
	return r, nil
}

// Contains reports whether symbol is listed.
func (r *Registry) Contains(symbol string) bool {
	_, ok := r.instruments[symbol]
	return ok
}

// Instrument returns the opening listing for symbol.
func (r *Registry) Instrument(symbol string) (Instrument, bool) {
	inst, ok := r.instruments[symbol]
	return inst, ok
}

// Instruments returns the opening listings in symbol order.
func (r *Registry) Instruments() []Instrument {
	result := make([]Instrument, 0, len(r.symbols))
	for _, s := range r.symbols {
		result = append(result, r.instruments[s])
	}
	return result
}

// Symbols returns the listed symbols in sorted order.
func (r *Registry) Symbols() []string {
	result := make([]string, len(r.symbols))
	copy(result, r.symbols)
	return result
}

// Suggest returns the closest listed symbol to an unknown one, if any is near enough.
func (r *Registry) Suggest(symbol string) (string, bool) {
	needle := strings.ToUpper(strings.TrimSpace(symbol))
	best, bestDist := "", maxSuggestDistance+1

	for _, s := range r.symbols {
		d := levenshtein.ComputeDistance(needle, s)
		if d < bestDist {
			best, bestDist = s, d
		}
	}

	if best == "" || best == symbol {
		return "", false
	}
	return best, true
}
