package exchange

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// MatchingEngine executes market orders against the oracle and keeps limit
// orders pending until the price crosses their limit.
type MatchingEngine struct {
	registry *Registry
	oracle   *PriceOracle
	book     *LimitBook
	feed     *Feed
	clock    Clock
}

func NewMatchingEngine(registry *Registry, oracle *PriceOracle, feed *Feed, clock Clock) *MatchingEngine {
	if clock == nil {
		clock = RealClock{}
	}
	return &MatchingEngine{
		registry: registry,
		oracle:   oracle,
		book:     NewLimitBook(),
		feed:     feed,
		clock:    clock,
	}
}

// ExecuteMarket applies order to the oracle now.
func (m *MatchingEngine) ExecuteMarket(order *Order) (Outcome, error) {
	if err := m.checkSymbol(order); err != nil {
		return m.reject(order, err), err
	}
	return m.execute(order)
}

// WatchLimit registers a limit order with the poller. It returns at once with
// OrderStatusWatching; the order executes on a later Poll.
func (m *MatchingEngine) WatchLimit(order *Order) (Outcome, error) {
	if !order.LimitPrice.IsPositive() {
		err := fmt.Errorf("%w: %s", ErrInvalidLimitPrice, order.LimitPrice)
		return m.reject(order, err), err
	}
	if err := m.checkSymbol(order); err != nil {
		return m.reject(order, err), err
	}

	if err := m.book.Add(order); err != nil {
		return m.reject(order, err), err
	}

	logger.Debug("limit order watching",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Stringer("side", order.Side),
		zap.Stringer("limit_price", order.LimitPrice),
	)

	return Outcome{OrderID: order.ID, Status: OrderStatusWatching}, nil
}

// Poll runs one pass of the limit poller. Each symbol's price is read once;
// every order it triggers leaves the book before being applied, so a limit
// order reaches the oracle at most once. Triggered orders apply in ID order.
func (m *MatchingEngine) Poll() []Outcome {
	var triggered []*Order
	for _, symbol := range m.book.Symbols() {
		price := m.oracle.Snapshot(symbol)
		if price.IsZero() {
			continue
		}
		triggered = append(triggered, m.book.PopTriggered(symbol, price)...)
	}

	if len(triggered) == 0 {
		return nil
	}

	sort.Slice(triggered, func(i, j int) bool { return triggered[i].ID < triggered[j].ID })

	outcomes := make([]Outcome, 0, len(triggered))
	for _, order := range triggered {
		outcome, _ := m.execute(order)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// PendingOrders returns the limit orders still watching, sorted by ID.
func (m *MatchingEngine) PendingOrders() []Order {
	return m.book.Orders()
}

// PendingCount returns the number of limit orders still watching.
func (m *MatchingEngine) PendingCount() int {
	return m.book.Len()
}

// abandon empties the limit book. Orders still watching never execute.
func (m *MatchingEngine) abandon() []Order {
	orders := m.book.Drain()
	for _, o := range orders {
		logger.Info("limit order abandoned",
			zap.Uint64("order_id", o.ID),
			zap.String("symbol", o.Symbol),
			zap.Stringer("side", o.Side),
			zap.Stringer("limit_price", o.LimitPrice),
		)
	}
	return orders
}

func (m *MatchingEngine) execute(order *Order) (Outcome, error) {
	result, err := m.oracle.ApplyTrade(order.Symbol, order.Side, order.Quantity)
	if err != nil {
		return m.reject(order, err), err
	}

	fill := &Fill{
		OrderID:         order.ID,
		ClientOrderID:   order.ClientOrderID,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Kind:            order.Kind,
		Quantity:        order.Quantity,
		Price:           result.ExecutionPrice,
		NewPrice:        result.NewPrice,
		NewAvailability: result.NewAvailability,
		CreatedAt:       m.clock.Now().UTC(),
	}
	m.feed.Fill(fill)

	logger.Info("order executed",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Stringer("side", order.Side),
		zap.String("kind", string(order.Kind)),
		zap.Uint64("quantity", order.Quantity),
		zap.Stringer("price", result.ExecutionPrice),
		zap.Stringer("new_price", result.NewPrice),
		zap.Uint64("new_availability", result.NewAvailability),
	)

	return Outcome{OrderID: order.ID, Status: OrderStatusExecuted, Fill: fill}, nil
}

func (m *MatchingEngine) checkSymbol(order *Order) error {
	if m.registry.Contains(order.Symbol) {
		return nil
	}
	if suggestion, ok := m.registry.Suggest(order.Symbol); ok {
		return fmt.Errorf("%w: %s (did you mean %s?)", ErrUnknownInstrument, order.Symbol, suggestion)
	}
	return fmt.Errorf("%w: %s", ErrUnknownInstrument, order.Symbol)
}

func (m *MatchingEngine) reject(order *Order, err error) Outcome {
	reason := rejectReason(err)
	m.feed.Reject(order, reason)

	fields := []zap.Field{
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("reason", string(reason)),
		zap.Error(err),
	}
	if errors.Is(err, ErrInsufficientAvailability) && order.Kind == Limit {
		fields = append(fields, zap.Stringer("limit_price", order.LimitPrice))
	}
	logger.Warn("order rejected", fields...)

	return Outcome{OrderID: order.ID, Status: OrderStatusRejected, Reason: reason}
}
