package protocol

import "github.com/go-playground/validator/v10"

// CommandType defines the type of the command (using uint8 for memory alignment and performance)
type CommandType uint8

// Command Type Numbering Strategy:
// - 0-50:  Exchange Management Commands (internal, low-frequency admin operations)
// - 51+:   Trading Commands (external, high-frequency hot path)
const (
	CmdUnknown     CommandType = 0
	CmdInjectEvent CommandType = 1

	CmdPlaceOrder CommandType = 51
)

// Command is the standard carrier for commands entering the exchange.
type Command struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	// Symbol is the target instrument, used as the partition key on the bus.
	// Empty for exchange-wide commands.
	Symbol string `json:"symbol,omitempty"`

	// SeqID is assigned by the producer for ordering. Duplicates are not filtered.
	SeqID uint64 `json:"seq_id"`

	// Type identifies the payload type for fast routing.
	Type CommandType `json:"type"`

	// Payload contains the serialized business data (e.g., JSON bytes of PlaceOrderCommand).
	Payload []byte `json:"payload"`

	// Metadata stores non-business context (e.g., Tracing ID, Source IP).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PlaceOrderCommand is the payload for placing a new order.
type PlaceOrderCommand struct {
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Symbol        string    `json:"symbol" validate:"required"`
	Side          Side      `json:"side" validate:"oneof=1 2"`
	Kind          OrderKind `json:"kind" validate:"oneof=market limit"`
	Quantity      uint64    `json:"quantity" validate:"gt=0,lte=1000000000"`
	LimitPrice    string    `json:"limit_price,omitempty" validate:"required_if=Kind limit"` // Using string to prevent precision loss in JSON
	Timestamp     int64     `json:"timestamp,omitempty"`
}

// InjectEventCommand applies a named macro event from the catalog.
type InjectEventCommand struct {
	Label string `json:"label" validate:"required"`
}

var validate = validator.New()

// Validate checks the struct tags of a command payload.
func Validate(v any) error {
	return validate.Struct(v)
}
