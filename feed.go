package exchange

import "sync"

// Feed stamps exchange logs with a global sequence ID and hands them to a PublishLog.
// Sequence assignment and publication happen under one lock, so sinks see logs in SequenceID order.
type Feed struct {
	mu      sync.Mutex
	seqID   uint64
	clock   Clock
	publish PublishLog
}

func NewFeed(publish PublishLog, clock Clock) *Feed {
	if publish == nil {
		publish = NewDiscardPublishLog()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Feed{publish: publish, clock: clock}
}

func (f *Feed) nextSeq() uint64 {
	f.seqID++
	return f.seqID
}

// Quotes publishes a quote log per instrument.
func (f *Feed) Quotes(quotes ...Quote) {
	if len(quotes) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now().UTC()
	logs := make([]*ExchangeLog, 0, len(quotes))
	for _, q := range quotes {
		logs = append(logs, NewQuoteLog(f.nextSeq(), q, now))
	}
	f.publish.Publish(logs...)
}

// Fill publishes an executed order followed by the quote it produced.
func (f *Feed) Fill(fill *Fill) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fillLog := NewFillLog(f.nextSeq(), fill)
	quoteLog := NewQuoteLog(f.nextSeq(), Quote{
		Symbol:       fill.Symbol,
		Price:        fill.NewPrice,
		Availability: fill.NewAvailability,
	}, fill.CreatedAt)
	f.publish.Publish(fillLog, quoteLog)
}

// Reject publishes a rejected order.
func (f *Feed) Reject(order *Order, reason RejectReason) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publish.Publish(NewRejectLog(f.nextSeq(), order, reason, f.clock.Now().UTC()))
}

// Shock publishes a macro event followed by the quotes it produced.
func (f *Feed) Shock(event PriceEvent, quotes []Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now().UTC()
	logs := make([]*ExchangeLog, 0, len(quotes)+1)
	logs = append(logs, NewShockLog(f.nextSeq(), event, now))
	for _, q := range quotes {
		logs = append(logs, NewQuoteLog(f.nextSeq(), q, now))
	}
	f.publish.Publish(logs...)
}

// SequenceID returns the last assigned sequence ID.
func (f *Feed) SequenceID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seqID
}
