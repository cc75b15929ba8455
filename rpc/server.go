package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synthmint/crypto"
	"synthmint/native/synth"
	"synthmint/observability"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the synth engine over HTTP. The engine expects
// single-threaded execution, so mutating operations are serialised behind mu.
type Server struct {
	engine    *synth.Engine
	synthetic string
	log       *slog.Logger
	metrics   *observability.APIMetrics
	mu        sync.Mutex
}

// NewServer wires the engine behind the HTTP API. synthetic is the debt
// token's display symbol.
func NewServer(engine *synth.Engine, synthetic string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, synthetic: synthetic, log: log, metrics: observability.API()}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tokens", s.handleListTokens)
		r.Get("/prices/{symbol}", s.handlePrice)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Get("/accounts/{address}/health", s.handleAccountHealth)

		r.Post("/collateral/deposit", s.handleDeposit)
		r.Post("/collateral/redeem", s.handleRedeem)
		r.Post("/debt/mint", s.handleMint)
		r.Post("/debt/burn", s.handleBurn)
		r.Post("/positions/open", s.handleOpenPosition)
		r.Post("/positions/close", s.handleClosePosition)
		r.Post("/liquidations", s.handleLiquidate)
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.Observe(route, rec.status, time.Since(start))
		if rec.status >= 500 {
			s.log.Error("request failed", "route", route, "status", rec.status)
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenListResponse struct {
	Synthetic  string   `json:"synthetic"`
	Collateral []string `json:"collateral"`
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tokenListResponse{
		Synthetic:  s.synthetic,
		Collateral: s.engine.CollateralTokens(),
	})
}

type priceResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	feed, err := s.engine.PriceFeed(symbol)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	quote, err := feed.LatestQuote()
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Symbol:    symbol,
		Price:     quote.Price.String(),
		UpdatedAt: quote.UpdatedAt.Unix(),
	})
}

type accountResponse struct {
	Address            string            `json:"address"`
	CollateralValueUsd string            `json:"collateralValueUsd"`
	Debt               string            `json:"debt"`
	HealthFactor       string            `json:"healthFactor"`
	Collateral         map[string]string `json:"collateral"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debt, collateralUsd, err := s.engine.AccountInformation(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	health, err := s.engine.HealthFactor(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	balances := make(map[string]string)
	for _, symbol := range s.engine.CollateralTokens() {
		amount, err := s.engine.CollateralBalance(addr, symbol)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if amount.Sign() > 0 {
			balances[symbol] = amount.String()
		}
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Address:            addr.String(),
		CollateralValueUsd: collateralUsd.String(),
		Debt:               debt.String(),
		HealthFactor:       health.String(),
		Collateral:         balances,
	})
}

type healthResponse struct {
	Address      string `json:"address"`
	HealthFactor string `json:"healthFactor"`
}

func (s *Server) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	health, err := s.engine.HealthFactor(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Address: addr.String(), HealthFactor: health.String()})
}

type collateralRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, amount, err := parseAddressAmount(req.Address, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "deposit_collateral", func() error {
		return s.engine.DepositCollateral(addr, req.Symbol, amount)
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, amount, err := parseAddressAmount(req.Address, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "redeem_collateral", func() error {
		return s.engine.RedeemCollateral(addr, req.Symbol, amount)
	})
}

type debtRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, amount, err := parseAddressAmount(req.Address, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "mint_debt", func() error {
		return s.engine.MintDebt(addr, amount)
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, amount, err := parseAddressAmount(req.Address, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "burn_debt", func() error {
		return s.engine.BurnDebt(addr, amount)
	})
}

type openPositionRequest struct {
	Address    string `json:"address"`
	Symbol     string `json:"symbol"`
	Collateral string `json:"collateral"`
	Mint       string `json:"mint"`
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, collateral, err := parseAddressAmount(req.Address, req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mint, err := parseAmount(req.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "open_position", func() error {
		return s.engine.DepositCollateralAndMintDebt(addr, req.Symbol, collateral, mint)
	})
}

type closePositionRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Redeem  string `json:"redeem"`
	Burn    string `json:"burn"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, redeem, err := parseAddressAmount(req.Address, req.Redeem)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	burn, err := parseAmount(req.Burn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.observe(w, "close_position", func() error {
		return s.engine.RedeemCollateralForDebt(addr, req.Symbol, redeem, burn)
	})
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Account    string `json:"account"`
	Amount     string `json:"amount"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, amount, err := parseAddressAmount(req.Account, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	start := time.Now()
	result, err := s.engine.Liquidate(liquidator, account, amount)
	observability.Engine().Observe("liquidate", err, time.Since(start))
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// observe runs a mutating engine operation, records its metrics, and writes
// the HTTP response.
func (s *Server) observe(w http.ResponseWriter, operation string, op func() error) {
	s.mu.Lock()
	start := time.Now()
	err := op()
	observability.Engine().Observe(operation, err, time.Since(start))
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeRequest(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseAddressAmount(rawAddr, rawAmount string) (crypto.Address, *big.Int, error) {
	addr, err := parseAddress(rawAddr)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	return addr, amount, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEngineError maps engine sentinels onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, synth.ErrInvalidAmount),
		errors.Is(err, synth.ErrNotAllowedToken):
		status = http.StatusBadRequest
	case errors.Is(err, synth.ErrInsufficientBalance),
		errors.Is(err, synth.ErrInsufficientDebt),
		errors.Is(err, synth.ErrInsufficientCollateral),
		errors.Is(err, synth.ErrHealthCheckFailed),
		errors.Is(err, synth.ErrHealthFactorOk):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, synth.ErrStalePrice),
		errors.Is(err, synth.ErrInvalidPrice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, synth.ErrReentrancy):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}
