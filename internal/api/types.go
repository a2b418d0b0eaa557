package api

import (
	exchange "github.com/0x5487/stock-exchange"
)

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// OrderResponse reports how the exchange handled a submitted order.
type OrderResponse struct {
	exchange.Outcome
	Error string `json:"error,omitempty"`
}

// InjectEventRequest names a macro event from the catalog.
type InjectEventRequest struct {
	Label string `json:"label" validate:"required"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	LastOrderID uint64 `json:"last_order_id"`
	LastSeqID   uint64 `json:"last_seq_id"`
	Clients     int    `json:"ws_clients"`
}

// WSSubscribeRequest is sent by a client to change its channels:
// "quotes", "quotes:<SYMBOL>", "fills", "rejects", "events".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage is pushed to subscribed clients.
type WSMessage struct {
	Type     string                `json:"type"` // "ack", "error" or "log"
	Channel  string                `json:"channel,omitempty"`
	Channels []string              `json:"channels,omitempty"`
	Message  string                `json:"message,omitempty"`
	Data     *exchange.ExchangeLog `json:"data,omitempty"`
}
