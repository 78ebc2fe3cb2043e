// Package handlers implements the HTTP handlers of the API.
package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/enriplaso/BackMark/internal/backtest"
	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/strategy"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/logger"
	"github.com/enriplaso/BackMark/pkg/redis"
)

// BacktestHandler runs backtests and serves their results. Results are
// kept in memory for the lifetime of the process and mirrored to Redis
// when caching is enabled, so several instances can share them.
type BacktestHandler struct {
	config     *config.Config
	logger     *logger.Logger
	cache      *redis.Cache
	candleRepo *feed.CandleRepository // nil when no database is configured

	mu      sync.RWMutex
	results map[string]*backtest.Result
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(cfg *config.Config, log *logger.Logger, cache *redis.Cache, candleRepo *feed.CandleRepository) *BacktestHandler {
	return &BacktestHandler{
		config:     cfg,
		logger:     log,
		cache:      cache,
		candleRepo: candleRepo,
		results:    make(map[string]*backtest.Result),
	}
}

// RunRequest describes one backtest run.
type RunRequest struct {
	Source string `json:"source"` // "csv" or "db"

	// CSV source
	File string `json:"file,omitempty"` // file name inside the data directory

	// Database source
	Symbol   string    `json:"symbol,omitempty"`
	Interval string    `json:"interval,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`

	Product  string  `json:"product,omitempty"`
	Balance  float64 `json:"balance,omitempty"`
	Holdings float64 `json:"holdings,omitempty"`
	Fee      float64 `json:"fee,omitempty"`

	ShortPeriod int     `json:"short_period"`
	LongPeriod  int     `json:"long_period"`
	Allocation  float64 `json:"allocation"`
}

// RunResponse wraps a completed run with its retrievable id.
type RunResponse struct {
	ID     string           `json:"id"`
	Result *backtest.Result `json:"result"`
}

// Run executes a backtest synchronously and returns the result
// POST /api/backtest/run
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.applyDefaults(&req)

	source, err := h.openSource(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer source.Close()

	sim := exchange.NewSimulator(exchange.Options{
		Product:  req.Product,
		Balance:  req.Balance,
		Holdings: req.Holdings,
		Fee:      req.Fee,
	}, h.logger)

	strat, err := strategy.NewSMACross(sim, h.logger, req.ShortPeriod, req.LongPeriod, req.Allocation)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := backtest.NewEngine(sim, strat, h.logger)
	result, err := engine.Run(ctx, source)
	if err != nil {
		h.logger.WithError(err).Error("Backtest run failed")
		respondError(w, http.StatusInternalServerError, "Backtest run failed")
		return
	}

	id := uuid.NewString()

	h.mu.Lock()
	h.results[id] = result
	h.mu.Unlock()

	if err := h.cache.Set(ctx, redis.ResultKey(id), result, redis.TTLResult); err != nil {
		h.logger.WithError(err).Warn("Failed to cache backtest result")
	}

	respondJSON(w, http.StatusOK, RunResponse{ID: id, Result: result})
}

// GetResult returns a previously computed result
// GET /api/backtest/results/{id}
func (h *BacktestHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.mu.RLock()
	result, ok := h.results[id]
	h.mu.RUnlock()

	if !ok {
		var cached backtest.Result
		found, err := h.cache.Get(r.Context(), redis.ResultKey(id), &cached)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read cached result")
		}
		if !found {
			respondError(w, http.StatusNotFound, "Result not found")
			return
		}
		result = &cached
	}

	respondJSON(w, http.StatusOK, RunResponse{ID: id, Result: result})
}

// GetCandles returns stored candles for a symbol and range
// GET /api/candles?symbol=BTCUSDT&interval=1h&from=...&to=...
func (h *BacktestHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	if h.candleRepo == nil {
		respondError(w, http.StatusServiceUnavailable, "No candle database configured")
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	interval := q.Get("interval")
	if symbol == "" || interval == "" {
		respondError(w, http.StatusBadRequest, "symbol and interval are required")
		return
	}

	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid from timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid to timestamp")
		return
	}

	candles, err := h.candleRepo.GetRange(r.Context(), symbol, interval, from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load candles")
		respondError(w, http.StatusInternalServerError, "Failed to load candles")
		return
	}

	respondJSON(w, http.StatusOK, candles)
}

func (h *BacktestHandler) applyDefaults(req *RunRequest) {
	if req.Product == "" {
		req.Product = h.config.Simulation.Product
	}
	if req.Balance == 0 {
		req.Balance = h.config.Simulation.Balance
	}
	if req.Fee == 0 {
		req.Fee = h.config.Simulation.Fee
	}
	if req.ShortPeriod == 0 {
		req.ShortPeriod = 10
	}
	if req.LongPeriod == 0 {
		req.LongPeriod = 50
	}
	if req.Allocation == 0 {
		req.Allocation = 1
	}
}

func (h *BacktestHandler) openSource(r *http.Request, req *RunRequest) (feed.Source, error) {
	switch req.Source {
	case "db":
		if h.candleRepo == nil {
			return nil, errNoDatabase
		}
		return feed.NewPostgresSource(r.Context(), h.candleRepo, req.Symbol, req.Interval, req.From, req.To)
	case "csv", "":
		if req.File == "" {
			return nil, errMissingFile
		}
		// Base strips any path components, confining reads to the
		// data directory.
		path := filepath.Join(h.config.DataDir, filepath.Base(req.File))
		return feed.OpenCSV(path)
	default:
		return nil, errUnknownSource
	}
}
