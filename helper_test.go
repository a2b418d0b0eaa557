package exchange

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceImpact(t *testing.T) {
	testCases := []struct {
		name      string
		price     string
		quantity  uint64
		available uint64
		want      string
	}{
		{"proportional", "150", 100, 1000, "12"},
		{"capped", "700", 300, 1200, "105"},
		{"at cap boundary", "100", 1875, 10000, "15"},
		{"zero availability", "100", 5, 0, "15"},
		{"single share", "2800", 1, 800, "2.8"},
		{"counts beyond MaxInt64", "100", 1 << 63, math.MaxUint64, "15"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := PriceImpact(decimal.RequireFromString(tc.price), tc.quantity, tc.available)
			assertDecimal(t, tc.want, got)
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	assertDecimal(t, "1", normalizePrice(decimal.RequireFromString("0.2")))
	assertDecimal(t, "1", normalizePrice(decimal.RequireFromString("-3")))
	assertDecimal(t, "12.34567891", normalizePrice(decimal.RequireFromString("12.345678912")))
}
