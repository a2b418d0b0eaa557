package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x5487/stock-exchange/protocol"
	"go.uber.org/zap"
)

// enqueueTimeout bounds how long EnqueueCommand waits on a full command buffer.
const enqueueTimeout = time.Second

type options struct {
	instruments        []Instrument
	catalog            []PriceEvent
	clock              Clock
	rnd                Rand
	serializer         protocol.Serializer
	randomWalkInterval time.Duration
	eventIntervalMin   time.Duration
	eventIntervalMax   time.Duration
	pollInterval       time.Duration
	commandBuffer      int
}

// Option configures an Exchange.
type Option func(*options)

func WithInstruments(instruments ...Instrument) Option {
	return func(o *options) { o.instruments = instruments }
}

func WithEventCatalog(catalog []PriceEvent) Option {
	return func(o *options) { o.catalog = catalog }
}

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithRand(rnd Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

func WithSerializer(s protocol.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

func WithRandomWalkInterval(d time.Duration) Option {
	return func(o *options) { o.randomWalkInterval = d }
}

// WithEventInterval sets the range the delay between macro events is drawn from.
func WithEventInterval(lo, hi time.Duration) Option {
	return func(o *options) {
		o.eventIntervalMin = lo
		o.eventIntervalMax = hi
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

func WithCommandBuffer(size int) Option {
	return func(o *options) { o.commandBuffer = size }
}

// Exchange wires the registry, oracle, matching engine, event injector and
// feed together and runs the timers that move prices.
type Exchange struct {
	registry *Registry
	oracle   *PriceOracle
	feed     *Feed
	matching *MatchingEngine
	router   *OrderRouter
	injector *EventInjector
	opts     options

	orderSeq     atomic.Uint64 // last allocated order ID
	lastCmdSeqID atomic.Uint64 // last processed command sequence ID from the bus
	isShutdown   atomic.Bool
	running      atomic.Bool

	cmdChan          chan *protocol.Command
	done             chan struct{}
	doneOnce         sync.Once
	shutdownComplete chan struct{}
	completeOnce     sync.Once
	wg               sync.WaitGroup
}

// NewExchange builds an exchange over the starter basket unless WithInstruments says otherwise.
func NewExchange(publish PublishLog, opts ...Option) (*Exchange, error) {
	o := options{
		instruments:        StarterBasket(),
		catalog:            DefaultEventCatalog,
		clock:              RealClock{},
		serializer:         protocol.DefaultJSONSerializer{},
		randomWalkInterval: DefaultRandomWalkInterval,
		eventIntervalMin:   DefaultEventIntervalMin,
		eventIntervalMax:   DefaultEventIntervalMax,
		pollInterval:       DefaultPollInterval,
		commandBuffer:      DefaultCommandBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rnd == nil {
		o.rnd = NewLockedRand(o.clock.Now().UnixNano())
	}

	if o.randomWalkInterval <= 0 || o.pollInterval <= 0 || o.eventIntervalMin <= 0 ||
		o.eventIntervalMax < o.eventIntervalMin || o.commandBuffer <= 0 {
		return nil, fmt.Errorf("%w: non-positive interval or buffer", ErrInvalidParam)
	}

	registry, err := NewRegistry(o.instruments...)
	if err != nil {
		return nil, err
	}

	oracle := NewPriceOracle(registry)
	feed := NewFeed(publish, o.clock)
	matching := NewMatchingEngine(registry, oracle, feed, o.clock)

	injector, err := NewEventInjector(oracle, feed, o.rnd, o.catalog)
	if err != nil {
		return nil, err
	}

	return &Exchange{
		registry:         registry,
		oracle:           oracle,
		feed:             feed,
		matching:         matching,
		router:           NewOrderRouter(matching),
		injector:         injector,
		opts:             o,
		cmdChan:          make(chan *protocol.Command, o.commandBuffer),
		done:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}, nil
}

// PlaceOrder allocates an order ID and routes the order. Market orders are
// executed before it returns; limit orders come back with OrderStatusWatching.
// Rejections are returned as an error together with an Outcome carrying the reason.
func (e *Exchange) PlaceOrder(ctx context.Context, cmd *protocol.PlaceOrderCommand) (Outcome, error) {
	if e.isShutdown.Load() {
		return Outcome{Status: OrderStatusRejected, Reason: protocol.RejectReasonShutdown}, ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if cmd == nil {
		return Outcome{}, ErrInvalidParam
	}

	return e.placeOrder(cmd)
}

func (e *Exchange) placeOrder(cmd *protocol.PlaceOrderCommand) (Outcome, error) {
	id := e.orderSeq.Add(1)

	order, err := NewOrder(id, cmd, e.opts.clock.Now().UTC())
	if err != nil {
		// keep whatever the command carried so the reject is traceable
		partial := &Order{
			ID:            id,
			ClientOrderID: cmd.ClientOrderID,
			Symbol:        cmd.Symbol,
			Side:          cmd.Side,
			Kind:          cmd.Kind,
			Quantity:      cmd.Quantity,
		}
		return e.matching.reject(partial, err), err
	}

	return e.router.Route(order)
}

// InjectEvent applies a named macro event immediately.
func (e *Exchange) InjectEvent(label string) (PriceEvent, error) {
	if e.isShutdown.Load() {
		return PriceEvent{}, ErrShutdown
	}
	return e.injector.Inject(label)
}

// EnqueueCommand hands a command to the command loop started by Run.
// Returns ErrShutdown if the exchange is shutting down or ErrTimeout if the buffer stays full.
func (e *Exchange) EnqueueCommand(cmd *protocol.Command) error {
	if e.isShutdown.Load() {
		return ErrShutdown
	}
	if cmd == nil {
		return ErrInvalidParam
	}

	select {
	case e.cmdChan <- cmd:
		return nil
	case <-e.done:
		return ErrShutdown
	case <-time.After(enqueueTimeout):
		return ErrTimeout
	}
}

// Run publishes the opening quotes and starts the command loop, the random
// walk, the event injector and the limit poller. It blocks until ctx is done
// or Shutdown is called, then drains queued commands and abandons pending
// limit orders.
func (e *Exchange) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: exchange already running", ErrInvalidParam)
	}
	if e.isShutdown.Load() {
		e.complete()
		return ErrShutdown
	}

	e.feed.Quotes(e.oracle.Quotes()...)
	logger.Info("exchange open", zap.Strings("symbols", e.registry.Symbols()))

	e.wg.Add(4)
	go e.commandLoop()
	go e.tickLoop(e.opts.randomWalkInterval, e.randomWalk)
	go e.tickLoop(e.opts.pollInterval, func() { e.matching.Poll() })
	go e.eventLoop()

	select {
	case <-ctx.Done():
		e.stop()
	case <-e.done:
	}

	e.wg.Wait()
	e.matching.abandon()
	e.complete()

	logger.Info("exchange closed", zap.Uint64("last_order_id", e.orderSeq.Load()))
	return nil
}

// Shutdown stops accepting orders and commands and waits for Run to drain.
// Returns nil if shutdown completed, or ctx.Err() if the context was cancelled first.
func (e *Exchange) Shutdown(ctx context.Context) error {
	e.stop()

	if !e.running.Load() {
		e.matching.abandon()
		return nil
	}

	select {
	case <-e.shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exchange) stop() {
	e.isShutdown.Store(true)
	e.doneOnce.Do(func() { close(e.done) })
}

func (e *Exchange) complete() {
	e.completeOnce.Do(func() { close(e.shutdownComplete) })
}

func (e *Exchange) commandLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			e.drain()
			return
		case cmd := <-e.cmdChan:
			e.handleCommand(cmd)
		}
	}
}

// drain processes the commands still buffered when shutdown began.
func (e *Exchange) drain() {
	for {
		select {
		case cmd := <-e.cmdChan:
			e.handleCommand(cmd)
		default:
			return
		}
	}
}

func (e *Exchange) handleCommand(cmd *protocol.Command) {
	switch cmd.Type {
	case protocol.CmdPlaceOrder:
		payload := &protocol.PlaceOrderCommand{}
		if err := e.opts.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal PlaceOrder command", zap.Uint64("seq_id", cmd.SeqID), zap.Error(err))
			break
		}
		_, _ = e.placeOrder(payload)
	case protocol.CmdInjectEvent:
		payload := &protocol.InjectEventCommand{}
		if err := e.opts.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal InjectEvent command", zap.Uint64("seq_id", cmd.SeqID), zap.Error(err))
			break
		}
		if _, err := e.injector.Inject(payload.Label); err != nil {
			logger.Warn("event injection failed", zap.String("label", payload.Label), zap.Error(err))
		}
	default:
		logger.Warn("unknown command type", zap.Uint8("type", uint8(cmd.Type)), zap.Uint64("seq_id", cmd.SeqID))
	}

	if cmd.SeqID > 0 {
		e.lastCmdSeqID.Store(cmd.SeqID)
	}
}

func (e *Exchange) tickLoop(interval time.Duration, fn func()) {
	defer e.wg.Done()

	ticker := e.opts.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C():
			fn()
		}
	}
}

func (e *Exchange) eventLoop() {
	defer e.wg.Done()

	for {
		delay := e.injector.NextDelay(e.opts.eventIntervalMin, e.opts.eventIntervalMax)
		select {
		case <-e.done:
			return
		case <-e.opts.clock.After(delay):
			e.injector.Tick()
		}
	}
}

func (e *Exchange) randomWalk() {
	e.feed.Quotes(e.oracle.ApplyRandomWalk(e.opts.rnd)...)
}

// Quotes returns the current board in symbol order.
func (e *Exchange) Quotes() []Quote {
	return e.oracle.Quotes()
}

// Quote returns the current quote for symbol.
func (e *Exchange) Quote(symbol string) (Quote, error) {
	q, ok := e.oracle.Quote(symbol)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return q, nil
}

// PendingOrders returns the limit orders still watching, sorted by ID.
func (e *Exchange) PendingOrders() []Order {
	return e.matching.PendingOrders()
}

// PendingCount returns the number of limit orders still watching.
func (e *Exchange) PendingCount() int {
	return e.matching.PendingCount()
}

// Registry returns the listed instruments.
func (e *Exchange) Registry() *Registry {
	return e.registry
}

// EventCatalog returns the macro events the injector draws from.
func (e *Exchange) EventCatalog() []PriceEvent {
	return e.injector.Catalog()
}

// LastCmdSeqID returns the sequence ID of the last processed command.
func (e *Exchange) LastCmdSeqID() uint64 {
	return e.lastCmdSeqID.Load()
}
