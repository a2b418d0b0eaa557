package exchange

// ExchangeSnapshot is a read-only view of the exchange at one moment.
// The quotes are read under a single oracle lock; the pending orders are read
// separately, so an order executed in between may appear in neither list.
type ExchangeSnapshot struct {
	EngineVersion string  `json:"engine_version"`
	Timestamp     int64   `json:"timestamp"`       // Unix nano
	LastOrderID   uint64  `json:"last_order_id"`   // last allocated order ID
	LastSeqID     uint64  `json:"last_seq_id"`     // last feed sequence ID
	LastCmdSeqID  uint64  `json:"last_cmd_seq_id"` // last processed command sequence ID from the bus
	Quotes        []Quote `json:"quotes"`
	PendingOrders []Order `json:"pending_orders"`
}

// Snapshot captures the current board and pending limit orders.
func (e *Exchange) Snapshot() *ExchangeSnapshot {
	return &ExchangeSnapshot{
		EngineVersion: EngineVersion,
		Timestamp:     e.opts.clock.Now().UnixNano(),
		LastOrderID:   e.orderSeq.Load(),
		LastSeqID:     e.feed.SequenceID(),
		LastCmdSeqID:  e.lastCmdSeqID.Load(),
		Quotes:        e.oracle.Quotes(),
		PendingOrders: e.matching.PendingOrders(),
	}
}
