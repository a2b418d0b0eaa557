package exchange

import (
	"fmt"

	"go.uber.org/zap"
)

// OrderRouter dispatches orders to the matching engine by kind.
type OrderRouter struct {
	matching *MatchingEngine
}

func NewOrderRouter(matching *MatchingEngine) *OrderRouter {
	return &OrderRouter{matching: matching}
}

// Route executes market orders synchronously and hands limit orders to the
// poller. Orders of any other kind are rejected without touching state.
func (r *OrderRouter) Route(order *Order) (Outcome, error) {
	if !order.Side.IsValid() {
		return r.unroutable(order)
	}

	switch order.Kind {
	case Market:
		return r.matching.ExecuteMarket(order)
	case Limit:
		return r.matching.WatchLimit(order)
	}

	return r.unroutable(order)
}

func (r *OrderRouter) unroutable(order *Order) (Outcome, error) {
	err := fmt.Errorf("%w: side=%d kind=%q", ErrUnknownOrderKindOrSide, order.Side, order.Kind)
	logger.Error("order dropped by router",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Error(err),
	)
	return r.matching.reject(order, err), err
}
