package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/0x5487/stock-exchange/protocol"
)

// OrderWriter sends place-order commands to the exchange's order topic.
type OrderWriter struct {
	writer MessageWriter
	topic  string
	source string
	seq    atomic.Uint64
}

func NewOrderWriter(writer MessageWriter, topic, source string) *OrderWriter {
	return &OrderWriter{writer: writer, topic: topic, source: source}
}

// Submit wraps cmd in a Command envelope and writes it keyed by symbol.
func (w *OrderWriter) Submit(ctx context.Context, cmd *protocol.PlaceOrderCommand) error {
	if err := protocol.Validate(cmd); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	return w.write(ctx, &protocol.Command{
		Version: 1,
		Symbol:  cmd.Symbol,
		SeqID:   w.seq.Add(1),
		Type:    protocol.CmdPlaceOrder,
		Payload: payload,
		Metadata: map[string]string{
			"source": w.source,
		},
	})
}

// InjectEvent asks the exchange to apply the named macro event.
func (w *OrderWriter) InjectEvent(ctx context.Context, label string) error {
	payload, err := json.Marshal(&protocol.InjectEventCommand{Label: label})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	return w.write(ctx, &protocol.Command{
		Version: 1,
		SeqID:   w.seq.Add(1),
		Type:    protocol.CmdInjectEvent,
		Payload: payload,
	})
}

func (w *OrderWriter) write(ctx context.Context, cmd *protocol.Command) error {
	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	msg := kafka.Message{
		Topic:   w.topic,
		Key:     []byte(cmd.Symbol),
		Value:   value,
		Headers: headers(w.source, "command"),
		Time:    time.Now(),
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish command to kafka topic %s: %w", w.topic, err)
	}
	return nil
}

// Close closes the underlying writer.
func (w *OrderWriter) Close() error {
	return w.writer.Close()
}
