package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/0x5487/stock-exchange/protocol"
	"github.com/shopspring/decimal"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderKind = protocol.OrderKind

const (
	Market OrderKind = protocol.OrderKindMarket
	Limit  OrderKind = protocol.OrderKindLimit
)

// Instrument is a tradable symbol with its opening price and share supply.
type Instrument struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Availability uint64          `json:"availability"`
}

// Quote is a consistent (price, availability) reading of one instrument.
type Quote struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Availability uint64          `json:"availability"`
}

// Order is an immutable trading instruction. Build it with NewOrder.
type Order struct {
	ID            uint64          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Kind          OrderKind       `json:"kind"`
	Quantity      uint64          `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"` // zero for market orders
	CreatedAt     time.Time       `json:"created_at"`
}

// NewOrder builds an order from a place command. Side and kind must be one of
// the defined variants; anything else fails with ErrUnknownOrderKindOrSide.
// An empty symbol or a quantity outside [1, MaxOrderQuantity] fails with ErrInvalidParam.
// A limit price that cannot be parsed fails with ErrInvalidLimitPrice. Limit
// prices are rounded to PriceScale; their sign is checked when the order is watched.
func NewOrder(id uint64, cmd *protocol.PlaceOrderCommand, createdAt time.Time) (*Order, error) {
	if cmd == nil {
		return nil, ErrInvalidParam
	}
	if !cmd.Side.IsValid() || !cmd.Kind.IsValid() {
		return nil, fmt.Errorf("%w: side=%d kind=%q", ErrUnknownOrderKindOrSide, cmd.Side, cmd.Kind)
	}

	symbol := strings.TrimSpace(cmd.Symbol)
	if symbol == "" || cmd.Quantity == 0 {
		return nil, ErrInvalidParam
	}
	if cmd.Quantity > MaxOrderQuantity {
		return nil, fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidParam, cmd.Quantity, MaxOrderQuantity)
	}

	order := &Order{
		ID:            id,
		ClientOrderID: cmd.ClientOrderID,
		Symbol:        symbol,
		Side:          cmd.Side,
		Kind:          cmd.Kind,
		Quantity:      cmd.Quantity,
		CreatedAt:     createdAt,
	}

	if cmd.Kind == Limit {
		price, err := decimal.NewFromString(cmd.LimitPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLimitPrice, cmd.LimitPrice)
		}
		order.LimitPrice = price.Round(PriceScale)
	}

	return order, nil
}

// triggered reports whether a limit order fires at the given price.
func (o *Order) triggered(price decimal.Decimal) bool {
	if o.Side == Buy {
		return price.LessThanOrEqual(o.LimitPrice)
	}
	return price.GreaterThanOrEqual(o.LimitPrice)
}

// PriceEvent is a macro shock applied uniformly to every instrument.
type PriceEvent struct {
	Label  string          `json:"label"`
	Impact decimal.Decimal `json:"impact"`
}

// Fill describes an executed order.
type Fill struct {
	OrderID         uint64          `json:"order_id"`
	ClientOrderID   string          `json:"client_order_id,omitempty"`
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	Kind            OrderKind       `json:"kind"`
	Quantity        uint64          `json:"quantity"`
	Price           decimal.Decimal `json:"price"` // realized price, read inside the same critical section as the mutation
	NewPrice        decimal.Decimal `json:"new_price"`
	NewAvailability uint64          `json:"new_availability"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderStatus is the state an order is in once the exchange has handled it.
type OrderStatus string

const (
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusWatching  OrderStatus = "watching"
	OrderStatusAbandoned OrderStatus = "abandoned"
)

// Outcome is the result of routing one order.
type Outcome struct {
	OrderID uint64                `json:"order_id"`
	Status  OrderStatus           `json:"status"`
	Fill    *Fill                 `json:"fill,omitempty"`
	Reason  protocol.RejectReason `json:"reason,omitempty"`
}
