package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the server
		return true
	},
}

type broadcastMsg struct {
	channels []string
	payload  []byte
}

// Hub fans exchange logs out to WebSocket clients by channel. It implements
// exchange.PublishLog; Publish never blocks on a slow client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger

	mu    sync.RWMutex
	count int
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMsg, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.logger.Debug("ws client connected", zap.String("client", client.id), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.logger.Debug("ws client disconnected", zap.String("client", client.id), zap.Int("total", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.subscribedToAny(msg.channels) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					h.logger.Warn("ws client too slow, disconnecting", zap.String("client", client.id))
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.quit)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish implements exchange.PublishLog.
func (h *Hub) Publish(logs ...*exchange.ExchangeLog) {
	for _, log := range logs {
		channels := channelsFor(log)
		if len(channels) == 0 {
			continue
		}

		payload, err := json.Marshal(WSMessage{Type: "log", Channel: channels[0], Data: log})
		if err != nil {
			h.logger.Error("ws marshal error", zap.Uint64("seq_id", log.SequenceID), zap.Error(err))
			continue
		}

		select {
		case h.broadcast <- broadcastMsg{channels: channels, payload: payload}:
		default:
			h.logger.Warn("ws broadcast buffer full, dropping log", zap.Uint64("seq_id", log.SequenceID))
		}
	}
}

func channelsFor(log *exchange.ExchangeLog) []string {
	switch log.Type {
	case exchange.LogTypeQuote:
		return []string{"quotes", "quotes:" + log.Symbol}
	case exchange.LogTypeFill:
		return []string{"fills"}
	case exchange.LogTypeReject:
		return []string{"rejects"}
	case exchange.LogTypeShock:
		return []string{"events"}
	}
	return nil
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	quit chan struct{} // closed by the hub when the client is dropped
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func (c *Client) subscribedToAny(channels []string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range channels {
		if c.subscriptions[ch] {
			return true
		}
	}
	return false
}

func (c *Client) setSubscribed(channels []string, on bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = true
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

// reply queues a direct response; it is dropped if the client is gone.
func (c *Client) reply(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	case <-c.quit:
	default:
	}
}

// readPump pumps subscription requests from the connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(WSMessage{Type: "error", Message: "invalid JSON"})
			continue
		}

		channels := make([]string, 0, len(req.Channels))
		for _, ch := range req.Channels {
			ch = strings.TrimSpace(ch)
			if i := strings.IndexByte(ch, ':'); i >= 0 {
				ch = ch[:i+1] + strings.ToUpper(ch[i+1:])
			}
			channels = append(channels, ch)
		}

		switch req.Op {
		case "subscribe":
			c.setSubscribed(channels, true)
			c.reply(WSMessage{Type: "ack", Channels: channels, Message: "subscribed"})
		case "unsubscribe":
			c.setSubscribed(channels, false)
			c.reply(WSMessage{Type: "ack", Channels: channels, Message: "unsubscribed"})
		default:
			c.reply(WSMessage{Type: "error", Message: "unknown op: " + req.Op})
		}
	}
}

// writePump pumps messages from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and registers the client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		quit:          make(chan struct{}),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
