package exchange

import "sync"

// PublishLog is an interface for publishing exchange logs (quotes, fills, rejects, shocks).
//
// Publish is called after the state change a log describes has been committed,
// from whichever goroutine made the change. Implementations must be safe for
// concurrent use and must not call back into the exchange.
type PublishLog interface {
	Publish(...*ExchangeLog)
}

// MemoryPublishLog stores logs in memory, useful for testing.
type MemoryPublishLog struct {
	mu   sync.RWMutex
	logs []*ExchangeLog
}

// NewMemoryPublishLog creates a new MemoryPublishLog.
func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{
		logs: make([]*ExchangeLog, 0),
	}
}

// Publish appends copies of logs to the in-memory slice.
func (m *MemoryPublishLog) Publish(logs ...*ExchangeLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range logs {
		cpy := new(ExchangeLog)
		*cpy = *log
		m.logs = append(m.logs, cpy)
	}
}

// Count returns the number of logs stored.
func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// Get returns the log at the specified index.
func (m *MemoryPublishLog) Get(index int) *ExchangeLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logs[index]
}

// Logs returns a copy of all logs stored.
func (m *MemoryPublishLog) Logs() []*ExchangeLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := make([]*ExchangeLog, len(m.logs))
	copy(logs, m.logs)
	return logs
}

// ByType returns the stored logs of one type, in publish order.
func (m *MemoryPublishLog) ByType(logType LogType) []*ExchangeLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ExchangeLog
	for _, log := range m.logs {
		if log.Type == logType {
			result = append(result, log)
		}
	}
	return result
}

// DiscardPublishLog discards all logs, useful for benchmarking.
type DiscardPublishLog struct {
}

// NewDiscardPublishLog creates a new DiscardPublishLog.
func NewDiscardPublishLog() *DiscardPublishLog {
	return &DiscardPublishLog{}
}

// Publish does nothing.
func (p *DiscardPublishLog) Publish(logs ...*ExchangeLog) {

}

// MultiPublishLog fans every log out to several sinks in order.
type MultiPublishLog struct {
	sinks []PublishLog
}

// NewMultiPublishLog skips nil sinks.
func NewMultiPublishLog(sinks ...PublishLog) *MultiPublishLog {
	m := &MultiPublishLog{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiPublishLog) Publish(logs ...*ExchangeLog) {
	for _, s := range m.sinks {
		s.Publish(logs...)
	}
}
