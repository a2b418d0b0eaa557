package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePlaceOrder(t *testing.T) {
	tests := []struct {
		name    string
		cmd     PlaceOrderCommand
		wantErr bool
	}{
		{"market", PlaceOrderCommand{Symbol: "AAPL", Side: SideBuy, Kind: OrderKindMarket, Quantity: 1}, false},
		{"limit", PlaceOrderCommand{Symbol: "AAPL", Side: SideSell, Kind: OrderKindLimit, Quantity: 1, LimitPrice: "150.5"}, false},
		{"missing symbol", PlaceOrderCommand{Side: SideBuy, Kind: OrderKindMarket, Quantity: 1}, true},
		{"bad side", PlaceOrderCommand{Symbol: "AAPL", Side: 3, Kind: OrderKindMarket, Quantity: 1}, true},
		{"bad kind", PlaceOrderCommand{Symbol: "AAPL", Side: SideBuy, Kind: "stop", Quantity: 1}, true},
		{"max quantity", PlaceOrderCommand{Symbol: "AAPL", Side: SideSell, Kind: OrderKindMarket, Quantity: MaxQuantity}, false},
		{"quantity over max", PlaceOrderCommand{Symbol: "AAPL", Side: SideSell, Kind: OrderKindMarket, Quantity: MaxQuantity + 1}, true},
		{"wrapping quantity", PlaceOrderCommand{Symbol: "AAPL", Side: SideSell, Kind: OrderKindMarket, Quantity: ^uint64(0) - 999}, true},
		{"zero quantity", PlaceOrderCommand{Symbol: "AAPL", Side: SideBuy, Kind: OrderKindMarket}, true},
		{"limit without price", PlaceOrderCommand{Symbol: "AAPL", Side: SideBuy, Kind: OrderKindLimit, Quantity: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cmd)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, Validate(&InjectEventCommand{}))
	assert.NoError(t, Validate(&InjectEventCommand{Label: "US Election"}))
}

func TestSideText(t *testing.T) {
	var cmd PlaceOrderCommand
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"AAPL","side":"SELL","kind":"limit","quantity":3,"limit_price":"9"}`), &cmd))
	assert.Equal(t, SideSell, cmd.Side)
	assert.Equal(t, OrderKindLimit, cmd.Kind)

	err := json.Unmarshal([]byte(`{"side":"hold"}`), &cmd)
	assert.Error(t, err)

	_, err = json.Marshal(PlaceOrderCommand{Side: 7})
	assert.Error(t, err)

	assert.Equal(t, "side(7)", Side(7).String())
}
