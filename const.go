package exchange

import (
	"time"

	"github.com/0x5487/stock-exchange/protocol"
	"github.com/shopspring/decimal"
)

const (
	// EngineVersion is the current version of the exchange engine
	EngineVersion = "v1.0.0"

	// PriceScale is the number of decimal places kept after each price mutation.
	PriceScale int32 = 8

	DefaultRandomWalkInterval = 5 * time.Second
	DefaultEventIntervalMin   = 20 * time.Second
	DefaultEventIntervalMax   = 25 * time.Second
	DefaultPollInterval       = 2 * time.Second
	DefaultCommandBuffer      = 32768

	// MaxOrderQuantity bounds the share count of one order.
	MaxOrderQuantity = protocol.MaxQuantity
)

var (
	// PriceFloor is the lowest price any instrument can reach.
	PriceFloor = decimal.NewFromInt(1)

	// ImpactScale scales the traded share of availability into a price move.
	ImpactScale = decimal.RequireFromString("0.8")

	// MaxImpactFraction caps the price move caused by a single trade.
	MaxImpactFraction = decimal.RequireFromString("0.15")

	// MaxWalkFraction bounds a single random-walk step in either direction.
	MaxWalkFraction = decimal.RequireFromString("0.1")
)
