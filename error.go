package exchange

import (
	"errors"

	"github.com/0x5487/stock-exchange/protocol"
)

var (
	ErrUnknownInstrument        = errors.New("unknown instrument")
	ErrInsufficientAvailability = errors.New("not enough shares available to fill the order")
	ErrInvalidLimitPrice        = errors.New("limit price must be positive")
	ErrUnknownOrderKindOrSide   = errors.New("unknown order kind or side")
	ErrInvalidParam             = errors.New("the param is invalid")
	ErrTimeout                  = errors.New("timeout")
	ErrShutdown                 = errors.New("exchange is shutting down")
	ErrNotFound                 = errors.New("not found")
)

// rejectReason maps an order error to the reason published on the feed.
func rejectReason(err error) protocol.RejectReason {
	switch {
	case err == nil:
		return protocol.RejectReasonNone
	case errors.Is(err, ErrUnknownInstrument):
		return protocol.RejectReasonUnknownInstrument
	case errors.Is(err, ErrInsufficientAvailability):
		return protocol.RejectReasonInsufficientAvailability
	case errors.Is(err, ErrInvalidLimitPrice):
		return protocol.RejectReasonInvalidLimitPrice
	case errors.Is(err, ErrUnknownOrderKindOrSide):
		return protocol.RejectReasonInvalidOrder
	case errors.Is(err, ErrShutdown):
		return protocol.RejectReasonShutdown
	}
	return protocol.RejectReasonInvalidPayload
}
