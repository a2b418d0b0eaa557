// Package api serves the exchange over HTTP: quotes, order entry, event
// injection, a WebSocket feed and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	exchange "github.com/0x5487/stock-exchange"
	"github.com/0x5487/stock-exchange/protocol"
)

// Engine is the part of *exchange.Exchange the API drives.
type Engine interface {
	PlaceOrder(ctx context.Context, cmd *protocol.PlaceOrderCommand) (exchange.Outcome, error)
	InjectEvent(label string) (exchange.PriceEvent, error)
	EventCatalog() []exchange.PriceEvent
	Quotes() []exchange.Quote
	Quote(symbol string) (exchange.Quote, error)
	PendingOrders() []exchange.Order
	Snapshot() *exchange.ExchangeSnapshot
}

// QuoteHistory serves recent quotes, newest first.
type QuoteHistory interface {
	History(ctx context.Context, symbol string, limit int64) ([]*exchange.ExchangeLog, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine         Engine
	hub            *Hub
	history        QuoteHistory
	metrics        http.Handler
	allowedOrigins []string
	router         *mux.Router
	logger         *zap.Logger
}

type Option func(*Server)

func WithHistory(h QuoteHistory) Option {
	return func(s *Server) { s.history = h }
}

func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(engine Engine, hub *Hub, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		hub:            hub,
		allowedOrigins: []string{"*"},
		router:         mux.NewRouter(),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/quotes", s.handleGetQuotes).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{symbol}", s.handleGetQuote).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{symbol}/history", s.handleGetHistory).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/pending", s.handleGetPending).Methods(http.MethodGet)

	api.HandleFunc("/events", s.handleGetEvents).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleInjectEvent).Methods(http.MethodPost)

	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGetQuotes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Quotes())
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.engine.Quote(symbolVar(r))
	if err != nil {
		respondError(w, statusFor(err), "quote not found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "quote history disabled", "")
		return
	}

	symbol := symbolVar(r)
	if _, err := s.engine.Quote(symbol); err != nil {
		respondError(w, statusFor(err), "quote not found", err.Error())
		return
	}

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}

	logs, err := s.history.History(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("quote history lookup failed", zap.String("symbol", symbol), zap.Error(err))
		respondError(w, http.StatusBadGateway, "quote history unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd protocol.PlaceOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cmd.Symbol = strings.ToUpper(strings.TrimSpace(cmd.Symbol))

	if err := protocol.Validate(&cmd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	outcome, err := s.engine.PlaceOrder(r.Context(), &cmd)
	if err != nil {
		respondJSON(w, statusFor(err), OrderResponse{Outcome: outcome, Error: err.Error()})
		return
	}

	status := http.StatusOK
	if outcome.Status == exchange.OrderStatusWatching {
		status = http.StatusAccepted
	}
	respondJSON(w, status, OrderResponse{Outcome: outcome})
}

func (s *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.PendingOrders())
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.EventCatalog())
}

func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	var req InjectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := protocol.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event", err.Error())
		return
	}

	event, err := s.engine.InjectEvent(req.Label)
	if err != nil {
		respondError(w, statusFor(err), "event not applied", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, event)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	resp := HealthResponse{
		Status:      "ok",
		LastOrderID: snap.LastOrderID,
		LastSeqID:   snap.LastSeqID,
	}
	if s.hub != nil {
		resp.Clients = s.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

func symbolVar(r *http.Request) string {
	return strings.ToUpper(mux.Vars(r)["symbol"])
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, exchange.ErrUnknownInstrument), errors.Is(err, exchange.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrInsufficientAvailability):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrInvalidLimitPrice), errors.Is(err, exchange.ErrUnknownOrderKindOrSide),
		errors.Is(err, exchange.ErrInvalidParam):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
