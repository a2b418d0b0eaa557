package exchange

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrDisruptorTimeout is returned when shutdown times out
var ErrDisruptorTimeout = errors.New("disruptor: shutdown timeout")

// idleSleep is how long the consumer parks after a run of empty polls.
const idleSleep = 200 * time.Microsecond

// idleSpins is the number of empty polls before the consumer starts parking.
const idleSpins = 64

// EventHandler consumes events from a RingBuffer on the consumer goroutine.
type EventHandler[T any] interface {
	OnEvent(event T)
}

// RingBuffer is a multi-producer, single-consumer ring buffer.
type RingBuffer[T any] struct {
	_                [56]byte
	producerSequence atomic.Int64
	_                [56]byte
	consumerSequence atomic.Int64
	_                [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64

	// published[i] holds the sequence last written to slot i
	published []int64

	handler EventHandler[T]

	isShutdown atomic.Bool
	done       chan struct{}
}

// NewRingBuffer creates a RingBuffer. capacity must be a power of 2.
func NewRingBuffer[T any](capacity int64, handler EventHandler[T]) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("size must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		handler:    handler,
		done:       make(chan struct{}),
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)

	for i := range rb.published {
		atomic.StoreInt64(&rb.published[i], -1)
	}

	return rb
}

// Publish claims a slot and writes event to it. It is safe for concurrent producers.
// When the buffer is full the producer yields until the consumer frees a slot.
// Returns ErrShutdown once Shutdown has been called.
func (rb *RingBuffer[T]) Publish(event T) error {
	if rb.isShutdown.Load() {
		return ErrShutdown
	}

	var nextSeq int64
	for {
		currentProducerSeq := rb.producerSequence.Load()
		nextSeq = currentProducerSeq + 1

		wrapPoint := nextSeq - rb.capacity
		if wrapPoint > rb.consumerSequence.Load() {
			if rb.isShutdown.Load() {
				return ErrShutdown
			}
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(currentProducerSeq, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	index := nextSeq & rb.bufferMask
	rb.buffer[index] = event

	atomic.StoreInt64(&rb.published[index], nextSeq)
	return nil
}

// Start starts the consumer goroutine.
func (rb *RingBuffer[T]) Start() {
	go rb.consumerLoop()
}

// Shutdown stops accepting events and waits until every claimed event has been handled.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)

	select {
	case <-rb.done:
		return nil
	case <-ctx.Done():
		return ErrDisruptorTimeout
	}
}

func (rb *RingBuffer[T]) consumerLoop() {
	defer close(rb.done)

	nextConsumerSeq := rb.consumerSequence.Load() + 1
	idle := 0

	for {
		if rb.isShutdown.Load() {
			rb.consume(nextConsumerSeq)
			return
		}

		next := rb.consume(nextConsumerSeq)
		if next == nextConsumerSeq {
			idle++
			if idle > idleSpins {
				time.Sleep(idleSleep)
			} else {
				runtime.Gosched()
			}
			continue
		}

		idle = 0
		nextConsumerSeq = next
	}
}

// consume handles every event claimed so far starting at seq and returns the next sequence to read.
func (rb *RingBuffer[T]) consume(seq int64) int64 {
	availableSeq := rb.producerSequence.Load()

	for seq <= availableSeq {
		index := seq & rb.bufferMask

		// the producer has claimed seq but may not have written it yet
		for atomic.LoadInt64(&rb.published[index]) != seq {
			runtime.Gosched()
		}

		rb.handler.OnEvent(rb.buffer[index])

		var zero T
		rb.buffer[index] = zero

		rb.consumerSequence.Store(seq)
		seq++
	}

	return seq
}

// ConsumerSequence returns the last handled sequence.
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last claimed sequence.
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// GetPendingEvents returns the number of claimed events not yet handled.
func (rb *RingBuffer[T]) GetPendingEvents() int64 {
	producerSeq := rb.producerSequence.Load()
	consumerSeq := rb.consumerSequence.Load()
	return producerSeq - consumerSeq
}
