package protocol

import (
	"fmt"
	"strings"
)

// Side represents the order side (Buy/Sell).
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// MaxQuantity is the largest share count a single order may carry.
const MaxQuantity uint64 = 1_000_000_000

// IsValid reports whether s is one of the defined sides.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int8(s))
}

// MarshalText encodes the side as "buy" or "sell" so it reads naturally on the wire.
func (s Side) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("protocol: invalid side %d", int8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts "buy" or "sell" (case-insensitive).
func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "buy":
		*s = SideBuy
	case "sell":
		*s = SideSell
	default:
		return fmt.Errorf("protocol: unknown side %q", string(text))
	}
	return nil
}

// OrderKind represents the type of order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market" // executes immediately at the current price
	OrderKindLimit  OrderKind = "limit"  // waits until the price crosses the limit
)

// IsValid reports whether k is one of the defined kinds.
func (k OrderKind) IsValid() bool {
	return k == OrderKindMarket || k == OrderKindLimit
}

// LogType represents the type of event log.
type LogType string

const (
	LogTypeQuote  LogType = "quote"
	LogTypeFill   LogType = "fill"
	LogTypeReject LogType = "reject"
	LogTypeShock  LogType = "shock"
)

// RejectReason represents the reason why an order was rejected.
type RejectReason string

const (
	RejectReasonNone                     RejectReason = ""
	RejectReasonUnknownInstrument        RejectReason = "unknown_instrument"
	RejectReasonInsufficientAvailability RejectReason = "insufficient_availability" // Buy: quantity exceeds shares on offer
	RejectReasonInvalidLimitPrice        RejectReason = "invalid_limit_price"
	RejectReasonInvalidOrder             RejectReason = "invalid_order" // unknown side or kind
	RejectReasonInvalidPayload           RejectReason = "invalid_payload"
	RejectReasonShutdown                 RejectReason = "shutdown"
)
