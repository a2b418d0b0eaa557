package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

type boardEntry struct {
	quote Quote
	seqID uint64
}

// QuoteBoard maintains a downstream copy of the quote board, rebuilt from a
// snapshot and then kept current by replaying quote logs from the feed.
// Logs may arrive per-symbol ordered only (one partition per symbol), so
// staleness is tracked per symbol rather than as a global sequence.
type QuoteBoard struct {
	mu     sync.RWMutex
	seqID  uint64 // highest applied SequenceID
	quotes *treemap.TreeMap[string, boardEntry]
}

func NewQuoteBoard() *QuoteBoard {
	return &QuoteBoard{quotes: treemap.New[string, boardEntry]()}
}

// SequenceID returns the highest sequence ID applied.
func (b *QuoteBoard) SequenceID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seqID
}

// OnRebuild resets the board to snap. Call it before replaying logs.
func (b *QuoteBoard) OnRebuild(snap *ExchangeSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.quotes = treemap.New[string, boardEntry]()
	b.seqID = snap.LastSeqID
	for _, q := range snap.Quotes {
		b.quotes.Set(q.Symbol, boardEntry{quote: q, seqID: snap.LastSeqID})
	}
}

// Replay applies a quote log. Other log types and logs no newer than the
// symbol's last applied log are ignored. Reports whether the board changed.
func (b *QuoteBoard) Replay(log *ExchangeLog) bool {
	if log.Type != LogTypeQuote {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.quotes.Get(log.Symbol); ok && log.SequenceID <= prev.seqID {
		return false
	}

	b.quotes.Set(log.Symbol, boardEntry{
		quote: Quote{Symbol: log.Symbol, Price: log.Price, Availability: log.Availability},
		seqID: log.SequenceID,
	})
	if log.SequenceID > b.seqID {
		b.seqID = log.SequenceID
	}
	return true
}

// Publish implements PublishLog so the board can sit directly on a feed.
func (b *QuoteBoard) Publish(logs ...*ExchangeLog) {
	for _, log := range logs {
		b.Replay(log)
	}
}

func (b *QuoteBoard) Quote(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.quotes.Get(symbol)
	return e.quote, ok
}

// Quotes returns the board in symbol order.
func (b *QuoteBoard) Quotes() []Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Quote, 0, b.quotes.Len())
	for it := b.quotes.Iterator(); it.Valid(); it.Next() {
		out = append(out, it.Value().quote)
	}
	return out
}

// Price returns the last known price of symbol.
func (b *QuoteBoard) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	q, ok := b.Quote(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return q.Price, nil
}
