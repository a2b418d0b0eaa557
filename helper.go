package exchange

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceImpact returns how far a trade of quantity shares moves price, given the
// availability before the trade. The move is price * min(0.8 * quantity / available, 0.15).
// A trade against zero availability moves the price by the full cap.
func PriceImpact(price decimal.Decimal, quantity, available uint64) decimal.Decimal {
	if available == 0 {
		return price.Mul(MaxImpactFraction)
	}

	fraction := ImpactScale.
		Mul(decimalFromUint(quantity)).
		Div(decimalFromUint(available))

	return price.Mul(decimal.Min(fraction, MaxImpactFraction))
}

func decimalFromUint(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// normalizePrice rounds to PriceScale and clamps at PriceFloor.
func normalizePrice(price decimal.Decimal) decimal.Decimal {
	price = price.Round(PriceScale)
	if price.LessThan(PriceFloor) {
		return PriceFloor
	}
	return price
}

// walkFraction maps a uniform sample in [0, 1) onto [-0.1, +0.1).
func walkFraction(sample float64) decimal.Decimal {
	return decimal.NewFromFloat(sample).
		Sub(decimal.NewFromFloat(0.5)).
		Mul(MaxWalkFraction.Mul(decimal.NewFromInt(2)))
}
