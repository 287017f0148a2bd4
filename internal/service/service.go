// Package service provides the HTTP handlers that map pool operations to
// requests. It is a thin collaborator layer: validation, error-to-status
// mapping, journaling, and broadcasting — all arithmetic lives in the core
// packages.
//
// All monetary values use shopspring/decimal — never float64 for money.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/amm"
	"github.com/lqx/pool-engine/internal/arb"
	"github.com/lqx/pool-engine/internal/escrow"
	"github.com/lqx/pool-engine/internal/metrics"
	"github.com/lqx/pool-engine/internal/model"
	"github.com/lqx/pool-engine/internal/ratelimit"
	"github.com/lqx/pool-engine/internal/store"
)

// Service wires the pool core to the HTTP surface.
type Service struct {
	pool    *amm.Pool
	journal store.Store
	limiter *ratelimit.Limiter
	hub     *WSHub // optional, nil disables broadcasting

	targetRatio decimal.Decimal
	tolerance   decimal.Decimal
	priceTol    decimal.Decimal
}

// NewService creates a service. Pass nil for hub if WebSocket broadcasting
// is not needed.
func NewService(pool *amm.Pool, journal store.Store, limiter *ratelimit.Limiter,
	hub *WSHub, targetRatio, tolerance, priceTol decimal.Decimal) *Service {
	return &Service{
		pool:        pool,
		journal:     journal,
		limiter:     limiter,
		hub:         hub,
		targetRatio: targetRatio,
		tolerance:   tolerance,
		priceTol:    priceTol,
	}
}

// Routes mounts all API handlers on the router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/pool", s.GetPool)
	r.Get("/pool/price", s.GetPrice)
	r.Get("/history", s.GetHistory)

	r.Post("/swap/quote", s.QuoteSwap)
	r.Post("/swap", s.ExecuteSwap)

	r.Post("/liquidity", s.AddLiquidity)
	r.Post("/liquidity/remove", s.RemoveLiquidity)

	r.Post("/debt", s.AdjustDebt)
	r.Post("/oracle/price", s.UpdateOraclePrice)

	r.Get("/opportunity", s.GetOpportunity)
	r.Get("/arbitrage/solve", s.SolveTrade)

	r.Get("/flashloans", s.ListFlashLoans)
	r.Post("/flashloans", s.OpenFlashLoan)
	r.Post("/flashloans/{loanID}/settle", s.SettleFlashLoan)
	r.Delete("/flashloans/{loanID}", s.CancelFlashLoan)
}

// --- Request/Response types ---

// SwapRequest is the JSON body for POST /swap and /swap/quote.
type SwapRequest struct {
	Asset    string          `json:"asset"`
	AmountIn decimal.Decimal `json:"amount_in"`
}

// LiquidityRequest is the JSON body for POST /liquidity.
type LiquidityRequest struct {
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

// RemoveLiquidityRequest is the JSON body for POST /liquidity/remove.
type RemoveLiquidityRequest struct {
	LPTokens decimal.Decimal `json:"lp_tokens"`
}

// RemoveLiquidityResponse reports the pro-rata withdrawal.
type RemoveLiquidityResponse struct {
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

// DebtRequest is the JSON body for POST /debt.
type DebtRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction"` // "increase" or "decrease"
}

// OracleRequest is the JSON body for POST /oracle/price.
type OracleRequest struct {
	Price decimal.Decimal `json:"price"`
}

// OracleResponse carries the leverage state before and after the update.
type OracleResponse struct {
	Old model.LeverageState `json:"old"`
	New model.LeverageState `json:"new"`
}

// FlashLoanRequest is the JSON body for POST /flashloans.
type FlashLoanRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// SettleRequest is the JSON body for POST /flashloans/{loanID}/settle.
type SettleRequest struct {
	AmountRepaid decimal.Decimal `json:"amount_repaid"`
}

// SettleResponse reports the fee collected on settlement.
type SettleResponse struct {
	FeeCollected decimal.Decimal `json:"fee_collected"`
}

// PoolResponse is the full pool view: snapshot, derived leverage figures,
// and outstanding loans.
type PoolResponse struct {
	Snapshot model.Snapshot      `json:"snapshot"`
	State    model.LeverageState `json:"state"`
	Loans    []model.FlashLoan   `json:"outstanding_loans"`
}

// --- Handlers ---

// GetPool handles GET /api/v1/pool.
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	loans := s.pool.OutstandingLoans()
	if loans == nil {
		loans = []model.FlashLoan{}
	}
	writeJSON(w, http.StatusOK, PoolResponse{
		Snapshot: s.pool.Snapshot(),
		State:    s.pool.State(),
		Loans:    loans,
	})
}

// GetPrice handles GET /api/v1/pool/price. Returns both the pool's own
// marginal price and the oracle price.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	snap := s.pool.Snapshot()
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"pool_price":   snap.PoolPrice(),
		"oracle_price": snap.OraclePrice,
	})
}

// QuoteSwap handles POST /api/v1/swap/quote. Pure: does not mutate.
func (s *Service) QuoteSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := s.pool.ParseAsset(req.Asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	quote, err := s.pool.QuoteSwap(asset, req.AmountIn)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ExecuteSwap handles POST /api/v1/swap.
func (s *Service) ExecuteSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := s.pool.ParseAsset(req.Asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	start := time.Now()
	quote, err := s.pool.ExecuteSwap(asset, req.AmountIn)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.SwapsTotal.WithLabelValues(req.Asset).Inc()
	metrics.SwapLatency.WithLabelValues(req.Asset).Observe(time.Since(start).Seconds())
	s.publishGauges()

	var amountA, amountB decimal.Decimal
	if asset == model.AssetA {
		amountA, amountB = quote.AmountIn, quote.AmountOut.Neg()
	} else {
		amountA, amountB = quote.AmountOut.Neg(), quote.AmountIn
	}
	s.appendEvent(r.Context(), model.EventSwap, req.Asset, amountA, amountB, quote.FeePaid)

	slog.Info("swap executed",
		"asset_in", quote.InputAsset,
		"amount_in", quote.AmountIn.String(),
		"amount_out", quote.AmountOut.String(),
		"fee", quote.FeePaid.String(),
		"price_after", quote.PriceAfter.String(),
	)

	s.broadcast(WSMessage{
		Type:      "swap",
		Asset:     quote.InputAsset,
		AmountIn:  quote.AmountIn.String(),
		AmountOut: quote.AmountOut.String(),
		PoolPrice: quote.PriceAfter.String(),
		DebtRatio: s.pool.State().DebtRatio.String(),
	})

	writeJSON(w, http.StatusOK, quote)
}

// AddLiquidity handles POST /api/v1/liquidity.
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	minted, err := s.pool.AddLiquidity(req.AmountA, req.AmountB)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publishGauges()
	s.appendEvent(r.Context(), model.EventAddLiquidity, "", req.AmountA, req.AmountB, decimal.Zero)

	slog.Info("liquidity added",
		"amount_a", req.AmountA.String(),
		"amount_b", req.AmountB.String(),
		"lp_minted", minted.String(),
	)

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"lp_tokens": minted})
}

// RemoveLiquidity handles POST /api/v1/liquidity/remove.
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req RemoveLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amountA, amountB, err := s.pool.RemoveLiquidity(req.LPTokens)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publishGauges()
	s.appendEvent(r.Context(), model.EventRemoveLiquidity, "",
		amountA.Neg(), amountB.Neg(), decimal.Zero)

	writeJSON(w, http.StatusOK, RemoveLiquidityResponse{AmountA: amountA, AmountB: amountB})
}

// AdjustDebt handles POST /api/v1/debt.
func (s *Service) AdjustDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var dir model.DebtDirection
	switch req.Direction {
	case "increase":
		dir = model.DebtIncrease
	case "decrease":
		dir = model.DebtDecrease
	default:
		writeError(w, "direction must be increase or decrease", http.StatusBadRequest)
		return
	}

	if err := s.pool.AdjustDebt(req.Amount, dir); err != nil {
		if errors.Is(err, amm.ErrCovenantViolation) {
			metrics.CovenantRejections.Inc()
		}
		writeDomainError(w, err)
		return
	}
	s.publishGauges()
	s.appendEvent(r.Context(), model.EventDebtAdjust, req.Direction,
		decimal.Zero, req.Amount, decimal.Zero)

	state := s.pool.State()
	slog.Info("debt adjusted",
		"direction", req.Direction,
		"amount", req.Amount.String(),
		"debt_ratio", state.DebtRatio.String(),
	)
	writeJSON(w, http.StatusOK, state)
}

// UpdateOraclePrice handles POST /api/v1/oracle/price.
func (s *Service) UpdateOraclePrice(w http.ResponseWriter, r *http.Request) {
	var req OracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	old, updated, err := s.pool.UpdateOraclePrice(req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publishGauges()
	s.appendEvent(r.Context(), model.EventOracleUpdate, "",
		decimal.Zero, req.Price, decimal.Zero)

	slog.Info("oracle price updated",
		"price", req.Price.String(),
		"old_ratio", old.DebtRatio.String(),
		"new_ratio", updated.DebtRatio.String(),
	)

	s.broadcast(WSMessage{
		Type:      "oracle_update",
		PoolPrice: req.Price.String(),
		DebtRatio: updated.DebtRatio.String(),
		Leverage:  updated.Multiplier.String(),
	})

	writeJSON(w, http.StatusOK, OracleResponse{Old: old, New: updated})
}

// GetOpportunity handles GET /api/v1/opportunity. Returns 204 when the
// debt ratio is within tolerance of the target.
func (s *Service) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	opp := arb.DetectOpportunity(s.pool.Snapshot(), s.targetRatio, s.tolerance)
	if opp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// SolveTrade handles GET /api/v1/arbitrage/solve?target_price=N. Returns
// 204 when no actionable trade exists.
func (s *Service) SolveTrade(w http.ResponseWriter, r *http.Request) {
	target, err := decimal.NewFromString(r.URL.Query().Get("target_price"))
	if err != nil || !target.IsPositive() {
		writeError(w, "target_price must be a positive decimal", http.StatusBadRequest)
		return
	}

	trade := arb.SolveTradeForPrice(s.pool.Snapshot(), target, s.priceTol, s.pool.SwapFeeRate())
	if trade == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// ListFlashLoans handles GET /api/v1/flashloans.
func (s *Service) ListFlashLoans(w http.ResponseWriter, r *http.Request) {
	loans := s.pool.OutstandingLoans()
	if loans == nil {
		loans = []model.FlashLoan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

// OpenFlashLoan handles POST /api/v1/flashloans. Rate limited per client.
func (s *Service) OpenFlashLoan(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientID(r)) {
		metrics.RateLimitRejections.Inc()
		writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req FlashLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := s.pool.ParseAsset(req.Asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	loan, err := s.pool.OpenFlashLoan(asset, req.Amount)
	if err != nil {
		metrics.FlashLoansTotal.WithLabelValues("rejected").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.FlashLoansTotal.WithLabelValues("opened").Inc()
	metrics.OutstandingLoans.Set(float64(len(s.pool.OutstandingLoans())))
	s.appendEvent(r.Context(), model.EventFlashOpen, loan.Asset,
		decimal.Zero, loan.Principal, loan.Fee)

	slog.Info("flash loan opened",
		"loan_id", loan.ID,
		"asset", loan.Asset,
		"principal", loan.Principal.String(),
		"repay", loan.RepayAmount.String(),
	)

	writeJSON(w, http.StatusCreated, loan)
}

// SettleFlashLoan handles POST /api/v1/flashloans/{loanID}/settle.
func (s *Service) SettleFlashLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanID")

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fee, err := s.pool.SettleFlashLoan(loanID, req.AmountRepaid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.FlashLoansTotal.WithLabelValues("settled").Inc()
	metrics.OutstandingLoans.Set(float64(len(s.pool.OutstandingLoans())))
	s.appendEvent(r.Context(), model.EventFlashSettle, loanID,
		decimal.Zero, req.AmountRepaid, fee)

	slog.Info("flash loan settled", "loan_id", loanID, "fee", fee.String())
	writeJSON(w, http.StatusOK, SettleResponse{FeeCollected: fee})
}

// CancelFlashLoan handles DELETE /api/v1/flashloans/{loanID}. Always 204:
// cancelling an absent loan is a no-op by design.
func (s *Service) CancelFlashLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanID")
	if s.pool.CancelFlashLoan(loanID) {
		metrics.FlashLoansTotal.WithLabelValues("cancelled").Inc()
		metrics.OutstandingLoans.Set(float64(len(s.pool.OutstandingLoans())))
		s.appendEvent(r.Context(), model.EventFlashCancel, loanID,
			decimal.Zero, decimal.Zero, decimal.Zero)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /api/v1/history?kind=&limit=.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var events []model.Event
	var err error
	if kind := r.URL.Query().Get("kind"); kind != "" {
		events, err = s.journal.EventsByKind(ctx, kind)
	} else {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, convErr := decimal.NewFromString(v); convErr == nil {
				limit = int(n.IntPart())
			}
		}
		events, err = s.journal.RecentEvents(ctx, limit)
	}
	if err != nil {
		writeError(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Helpers ---

func (s *Service) appendEvent(ctx context.Context, kind, asset string, amountA, amountB, fee decimal.Decimal) {
	event := &model.Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Asset:     asset,
		AmountA:   amountA,
		AmountB:   amountB,
		Fee:       fee,
		DebtRatio: s.pool.State().DebtRatio,
		Timestamp: time.Now().UTC(),
	}
	if err := s.journal.AppendEvent(ctx, event); err != nil {
		slog.Error("journal append failed", "kind", kind, "err", err)
	}
}

func (s *Service) publishGauges() {
	state := s.pool.State()
	metrics.DebtRatio.Set(state.DebtRatio.InexactFloat64())
	metrics.LeverageMultiplier.Set(state.Multiplier.InexactFloat64())
	metrics.PoolValue.Set(state.PoolValue.InexactFloat64())
}

func (s *Service) broadcast(msg WSMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeDomainError maps core errors to HTTP status codes; the error text
// carries the numeric values callers need to construct a remedial call.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrUnknownAsset),
		errors.Is(err, amm.ErrInvalidShare),
		errors.Is(err, amm.ErrZeroOutput):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrUnknownLoan):
		return http.StatusNotFound
	case errors.Is(err, amm.ErrEmptyPool),
		errors.Is(err, amm.ErrInsufficientReserve),
		errors.Is(err, amm.ErrCovenantViolation),
		errors.Is(err, escrow.ErrInsufficientRepayment),
		errors.Is(err, escrow.ErrInvalidLoan):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
