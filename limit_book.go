package exchange

import (
	"sort"
	"sync"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

type limitNode struct {
	order *Order
	next  *limitNode
}

type priceLevel struct {
	price decimal.Decimal
	head  *limitNode
	tail  *limitNode
	count int64
}

// limitQueue holds the pending limit orders of one side of one symbol.
// Levels are ordered so that the orders a price move triggers first sit at the front.
type limitQueue struct {
	side        Side
	totalOrders int64
	depthList   *skiplist.SkipList
	priceList   map[string]*skiplist.Element
	orders      map[uint64]*limitNode
}

// newBuyLimitQueue sorts by limit price in descending order: a falling price
// reaches the highest buy limit first.
func newBuyLimitQueue() *limitQueue {
	return &limitQueue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.LessThan(d2) {
				return 1
			} else if d1.GreaterThan(d2) {
				return -1
			}

			return 0
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[uint64]*limitNode),
	}
}

// newSellLimitQueue sorts by limit price in ascending order: a rising price
// reaches the lowest sell limit first.
func newSellLimitQueue() *limitQueue {
	return &limitQueue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.GreaterThan(d2) {
				return 1
			} else if d1.LessThan(d2) {
				return -1
			}

			return 0
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[uint64]*limitNode),
	}
}

// priceKey normalizes a decimal for map lookup; 160 and 160.00 share a level.
func priceKey(price decimal.Decimal) string {
	return price.Round(PriceScale).String()
}

// insertOrder appends an order to the back of its price level.
func (q *limitQueue) insertOrder(order *Order) {
	node := &limitNode{order: order}
	key := priceKey(order.LimitPrice)

	el, ok := q.priceList[key]
	if ok {
		level, _ := el.Value.(*priceLevel)
		if level.tail != nil {
			level.tail.next = node
		}
		level.tail = node
		if level.head == nil {
			level.head = node
		}
		level.count++
	} else {
		level := &priceLevel{
			price: order.LimitPrice,
			head:  node,
			tail:  node,
			count: 1,
		}
		q.priceList[key] = q.depthList.Set(order.LimitPrice, level)
	}

	q.orders[order.ID] = node
	q.totalOrders++
}

// popTriggered removes and returns every order whose limit the price has crossed.
// Only a prefix of the queue can be triggered, so the walk stops at the first level that is not.
func (q *limitQueue) popTriggered(price decimal.Decimal) []*Order {
	var result []*Order

	el := q.depthList.Front()
	for el != nil {
		level, _ := el.Value.(*priceLevel)
		if !level.head.order.triggered(price) {
			break
		}

		for node := level.head; node != nil; node = node.next {
			result = append(result, node.order)
			delete(q.orders, node.order.ID)
		}
		q.totalOrders -= level.count

		next := el.Next()
		q.depthList.RemoveElement(el)
		delete(q.priceList, priceKey(level.price))
		el = next
	}

	return result
}

func (q *limitQueue) orderCount() int64 {
	return q.totalOrders
}

// toSnapshot lists the pending orders in trigger priority.
func (q *limitQueue) toSnapshot() []Order {
	snapshots := make([]Order, 0, q.totalOrders)

	for el := q.depthList.Front(); el != nil; el = el.Next() {
		level, _ := el.Value.(*priceLevel)
		for node := level.head; node != nil; node = node.next {
			snapshots = append(snapshots, *node.order)
		}
	}

	return snapshots
}

type symbolBook struct {
	buys  *limitQueue
	sells *limitQueue
}

// LimitBook is the set of pending limit orders across all symbols.
// Once drained it stays closed and refuses new orders.
type LimitBook struct {
	mu     sync.Mutex
	books  map[string]*symbolBook
	closed bool
}

func NewLimitBook() *LimitBook {
	return &LimitBook{books: make(map[string]*symbolBook)}
}

// Add registers an order. The caller has already validated symbol and limit price.
// Returns ErrShutdown once the book has been drained.
func (b *LimitBook) Add(order *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrShutdown
	}

	sb, ok := b.books[order.Symbol]
	if !ok {
		sb = &symbolBook{buys: newBuyLimitQueue(), sells: newSellLimitQueue()}
		b.books[order.Symbol] = sb
	}

	if order.Side == Buy {
		sb.buys.insertOrder(order)
	} else {
		sb.sells.insertOrder(order)
	}
	return nil
}

// Symbols returns the symbols that have at least one pending order.
func (b *LimitBook) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]string, 0, len(b.books))
	for symbol, sb := range b.books {
		if sb.buys.orderCount()+sb.sells.orderCount() > 0 {
			result = append(result, symbol)
		}
	}
	sort.Strings(result)
	return result
}

// PopTriggered removes and returns the orders on symbol that fire at price.
func (b *LimitBook) PopTriggered(symbol string, price decimal.Decimal) []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.books[symbol]
	if !ok {
		return nil
	}

	result := sb.buys.popTriggered(price)
	result = append(result, sb.sells.popTriggered(price)...)
	return result
}

// Len returns the number of pending orders.
func (b *LimitBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, sb := range b.books {
		total += sb.buys.orderCount() + sb.sells.orderCount()
	}
	return int(total)
}

// Orders returns every pending order, sorted by ID.
func (b *LimitBook) Orders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ordersLocked()
}

func (b *LimitBook) ordersLocked() []Order {
	var result []Order
	for _, sb := range b.books {
		result = append(result, sb.buys.toSnapshot()...)
		result = append(result, sb.sells.toSnapshot()...)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Drain empties and closes the book and returns what was pending, sorted by ID.
func (b *LimitBook) Drain() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := b.ordersLocked()
	b.books = make(map[string]*symbolBook)
	b.closed = true
	return orders
}
