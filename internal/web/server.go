// Package web exposes the bot control plane over HTTP: start, stop and status of
// bots, per-symbol order history and an SSE stream of executed orders.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"go.uber.org/zap"
)

const (
	orderPollInterval = 2 * time.Second
	heartbeatInterval = 30 * time.Second
	loadTimeout       = 5 * time.Second

	stopWaitTimeout     = 20 * time.Second
	defaultHistoryLimit = 100
)

type botRegistry interface {
	Start(cfg domain.TradingPairConfig) (domain.BotSnapshot, error)
	Stop(symbol string) (domain.BotSnapshot, error)
	Status(symbol string) (domain.BotSnapshot, error)
	List() []domain.BotSnapshot
	Done(symbol string) (<-chan struct{}, error)
}

// ConfigLoader resolves the trading pair configuration of a user.
type ConfigLoader interface {
	LoadConfig(ctx context.Context, symbol, user string) (domain.TradingPairConfig, error)
}

type orderReader interface {
	OrdersAfter(index uint64) ([]domain.OrderEvent, error)
}

type orderHistory interface {
	OrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderRecord, error)
}

// Server exposes HTTP endpoints of the control plane.
type Server struct {
	Addr string

	logger       *zap.Logger
	registry     botRegistry
	configs      ConfigLoader
	orders       orderReader
	history      orderHistory
	pollInterval time.Duration
}

// NewServer creates a new web server instance. orders and history may be nil,
// the corresponding endpoints then answer 503.
func NewServer(addr string, logger *zap.Logger, registry botRegistry, configs ConfigLoader, orders orderReader, history orderHistory) *Server {
	return &Server{
		Addr:         addr,
		logger:       logger,
		registry:     registry,
		configs:      configs,
		orders:       orders,
		history:      history,
		pollInterval: orderPollInterval,
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bots/start", s.handleStart)
	mux.HandleFunc("POST /bots/stop/{symbol}", s.handleStop)
	mux.HandleFunc("GET /bots/status/{symbol}", s.handleStatus)
	mux.HandleFunc("GET /bots", s.handleList)
	mux.HandleFunc("GET /orders/stream", s.handleOrderStream)
	mux.HandleFunc("GET /orders/{symbol}", s.handleOrderHistory)

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("control plane listening", zap.String("addr", s.Addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type startRequest struct {
	Symbol string `json:"symbol"`
	User   string `json:"user"`
}

type statusResponse struct {
	domain.BotSnapshot
	Message string `json:"message,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	cfg, err := s.configs.LoadConfig(ctx, req.Symbol, req.User)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snapshot, err := s.registry.Start(cfg)
	if errors.Is(err, domain.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, statusResponse{BotSnapshot: snapshot, Message: "bot already running"})
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, statusResponse{BotSnapshot: snapshot, Message: "bot started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.registry.Stop(r.PathValue("symbol"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, statusResponse{BotSnapshot: snapshot, Message: "stop requested"})
		return
	}

	done, err := s.registry.Done(snapshot.Symbol)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stopWaitTimeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
		writeJSON(w, http.StatusAccepted, statusResponse{BotSnapshot: snapshot, Message: "stop requested, still running"})
		return
	}

	if snapshot, err = s.registry.Status(snapshot.Symbol); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{BotSnapshot: snapshot, Message: "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.registry.Status(r.PathValue("symbol"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{BotSnapshot: snapshot})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "order history not available")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	symbol := strings.ToUpper(r.PathValue("symbol"))
	records, err := s.history.OrderHistory(r.Context(), symbol, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []domain.OrderRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleOrderStream(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "order store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendOrders := func() error {
		events, err := s.orders.OrdersAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, event := range events {
			payload, err := json.Marshal(event.Order)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", event.Index)
			fmt.Fprintf(w, "event: order\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = event.Index
		}
		return nil
	}

	if err := sendOrders(); err != nil {
		http.Error(w, "failed to load orders", http.StatusInternalServerError)
		s.logger.Error("order stream initial load", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendOrders(); err != nil {
				s.logger.Warn("order stream poll", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
