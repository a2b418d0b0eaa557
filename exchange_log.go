package exchange

import (
	"time"

	"github.com/0x5487/stock-exchange/protocol"
	"github.com/shopspring/decimal"
)

type LogType = protocol.LogType

const (
	LogTypeQuote  LogType = protocol.LogTypeQuote
	LogTypeFill   LogType = protocol.LogTypeFill
	LogTypeReject LogType = protocol.LogTypeReject
	LogTypeShock  LogType = protocol.LogTypeShock
)

type RejectReason = protocol.RejectReason

// ExchangeLog represents an event on the exchange feed.
// SequenceID is a globally increasing ID for every event, used for ordering
// and deduplication in downstream systems.
// - Quote: a new (price, availability) pair for Symbol
// - Fill: an executed order; Price is the realized price
// - Reject: an order that changed nothing
// - Shock: a macro event applied to every instrument
type ExchangeLog struct {
	SequenceID    uint64          `json:"seq_id"`
	Type          LogType         `json:"type"`
	Symbol        string          `json:"symbol,omitempty"`
	Side          Side            `json:"side,omitempty"`
	OrderKind     OrderKind       `json:"order_kind,omitempty"`
	Quantity      uint64          `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Availability  uint64          `json:"availability"`
	OrderID       uint64          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	RejectReason  RejectReason    `json:"reject_reason,omitempty"` // only set for Reject events
	EventLabel    string          `json:"event_label,omitempty"`   // only set for Shock events
	Impact        decimal.Decimal `json:"impact"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewQuoteLog(seqID uint64, quote Quote, createdAt time.Time) *ExchangeLog {
	return &ExchangeLog{
		SequenceID:   seqID,
		Type:         LogTypeQuote,
		Symbol:       quote.Symbol,
		Price:        quote.Price,
		Availability: quote.Availability,
		CreatedAt:    createdAt,
	}
}

func NewFillLog(seqID uint64, fill *Fill) *ExchangeLog {
	return &ExchangeLog{
		SequenceID:    seqID,
		Type:          LogTypeFill,
		Symbol:        fill.Symbol,
		Side:          fill.Side,
		OrderKind:     fill.Kind,
		Quantity:      fill.Quantity,
		Price:         fill.Price,
		Availability:  fill.NewAvailability,
		OrderID:       fill.OrderID,
		ClientOrderID: fill.ClientOrderID,
		CreatedAt:     fill.CreatedAt,
	}
}

// NewRejectLog records a rejected order. Side and kind are left empty when the
// order carried an undefined variant, so the log always encodes.
func NewRejectLog(seqID uint64, order *Order, reason RejectReason, createdAt time.Time) *ExchangeLog {
	log := &ExchangeLog{
		SequenceID:    seqID,
		Type:          LogTypeReject,
		Symbol:        order.Symbol,
		Quantity:      order.Quantity,
		Price:         order.LimitPrice,
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		RejectReason:  reason,
		CreatedAt:     createdAt,
	}
	if order.Side.IsValid() {
		log.Side = order.Side
	}
	if order.Kind.IsValid() {
		log.OrderKind = order.Kind
	}
	return log
}

func NewShockLog(seqID uint64, event PriceEvent, createdAt time.Time) *ExchangeLog {
	return &ExchangeLog{
		SequenceID: seqID,
		Type:       LogTypeShock,
		EventLabel: event.Label,
		Impact:     event.Impact,
		CreatedAt:  createdAt,
	}
}
