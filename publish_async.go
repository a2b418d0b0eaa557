package exchange

import (
	"context"

	"go.uber.org/zap"
)

type forwardHandler struct {
	next PublishLog
}

func (h forwardHandler) OnEvent(batch []*ExchangeLog) {
	h.next.Publish(batch...)
}

// AsyncPublishLog hands logs to a RingBuffer so that slow sinks (network,
// cache) never run on the goroutine that mutated the exchange. A single
// consumer forwards every batch to next in the order it was published.
type AsyncPublishLog struct {
	rb *RingBuffer[[]*ExchangeLog]
}

// NewAsyncPublishLog starts the consumer immediately. capacity must be a power of 2.
func NewAsyncPublishLog(capacity int64, next PublishLog) *AsyncPublishLog {
	rb := NewRingBuffer[[]*ExchangeLog](capacity, forwardHandler{next: next})
	rb.Start()
	return &AsyncPublishLog{rb: rb}
}

func (a *AsyncPublishLog) Publish(logs ...*ExchangeLog) {
	if len(logs) == 0 {
		return
	}

	batch := make([]*ExchangeLog, len(logs))
	copy(batch, logs)

	if err := a.rb.Publish(batch); err != nil {
		logger.Warn("exchange log dropped", zap.Int("count", len(batch)), zap.Error(err))
	}
}

// Pending returns the number of batches not yet forwarded.
func (a *AsyncPublishLog) Pending() int64 {
	return a.rb.GetPendingEvents()
}

// Shutdown stops accepting logs and waits for queued ones to be forwarded.
func (a *AsyncPublishLog) Shutdown(ctx context.Context) error {
	return a.rb.Shutdown(ctx)
}
