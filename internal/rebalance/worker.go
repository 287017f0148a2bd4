// Package rebalance runs an example arbitrage bot that maintains the
// pool's target debt ratio. It is optional infrastructure: rebalancing is
// permissionless, and any external party can run the same loop against the
// flash-loan API. The worker demonstrates the full cycle — detect
// deviation, reserve treasury capital, open a flash loan, adjust debt,
// settle — with cancellation cleanup when any step fails.
package rebalance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/amm"
	"github.com/lqx/pool-engine/internal/arb"
	"github.com/lqx/pool-engine/internal/metrics"
	"github.com/lqx/pool-engine/internal/model"
	"github.com/lqx/pool-engine/internal/store"
	"github.com/lqx/pool-engine/internal/treasury"
)

// minAdjustment is the smallest debt adjustment worth a flash loan; below
// this the fee eats the rebalancing benefit.
var minAdjustment = decimal.NewFromInt(100)

// Worker polls the pool and executes flash-loan rebalances when the debt
// ratio deviates from target by more than the tolerance.
type Worker struct {
	pool     *amm.Pool
	treasury treasury.Treasury
	journal  store.Store

	target    decimal.Decimal
	tolerance decimal.Decimal
	interval  time.Duration
}

// NewWorker creates a rebalance worker.
func NewWorker(pool *amm.Pool, t treasury.Treasury, journal store.Store,
	target, tolerance decimal.Decimal, interval time.Duration) *Worker {
	return &Worker{
		pool:      pool,
		treasury:  t,
		journal:   journal,
		target:    target,
		tolerance: tolerance,
		interval:  interval,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("rebalance worker started",
		"target_ratio", w.target.String(),
		"tolerance", w.tolerance.String(),
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("rebalance worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				slog.Error("rebalance failed", "err", err)
			}
		}
	}
}

// RunOnce performs a single poll-and-rebalance pass. Returns true when a
// rebalance was executed; (false, nil) means the pool is already within
// tolerance or the adjustment is too small to act on.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	snap := w.pool.Snapshot()
	state := w.pool.State()

	slog.Info("pool checked",
		"reserve_a", snap.ReserveA.String(),
		"reserve_b", snap.ReserveB.String(),
		"pool_price", snap.PoolPrice().String(),
		"debt_ratio", state.DebtRatio.StringFixed(4),
	)

	opp := arb.DetectOpportunity(snap, w.target, w.tolerance)
	if opp == nil {
		return false, nil
	}

	slog.Info("arbitrage detected",
		"action", opp.Action,
		"adjustment", opp.Adjustment.String(),
		"current_ratio", opp.CurrentRatio.StringFixed(4),
		"target_ratio", opp.TargetRatio.String(),
	)

	available := w.treasury.Available(snap.SymbolB)
	amount := decimal.Min(opp.Adjustment, available)
	if amount.LessThan(minAdjustment) {
		slog.Warn("insufficient treasury capital",
			"available", available.String(),
			"needed", opp.Adjustment.String(),
		)
		return false, nil
	}

	assetB, err := w.pool.ParseAsset(snap.SymbolB)
	if err != nil {
		return false, err
	}

	loan, err := w.pool.OpenFlashLoan(assetB, amount)
	if err != nil {
		return false, fmt.Errorf("open flash loan: %w", err)
	}

	if err := w.treasury.Reserve(loan.ID, loan.Asset, loan.Principal); err != nil {
		w.pool.CancelFlashLoan(loan.ID)
		return false, fmt.Errorf("reserve treasury capital: %w", err)
	}

	if err := w.pool.AdjustDebt(amount, opp.Direction); err != nil {
		w.pool.CancelFlashLoan(loan.ID)
		w.treasury.Cancel(loan.ID)
		return false, fmt.Errorf("adjust debt: %w", err)
	}

	fee, err := w.pool.SettleFlashLoan(loan.ID, loan.RepayAmount)
	if err != nil {
		// Debt already adjusted; the loan record itself is the casualty.
		w.treasury.Cancel(loan.ID)
		return false, fmt.Errorf("settle flash loan: %w", err)
	}
	if err := w.treasury.Settle(loan.ID, loan.RepayAmount); err != nil {
		return false, fmt.Errorf("settle treasury reservation: %w", err)
	}

	metrics.RebalancesTotal.WithLabelValues(opp.Action).Inc()
	newState := w.pool.State()
	metrics.DebtRatio.Set(newState.DebtRatio.InexactFloat64())
	metrics.LeverageMultiplier.Set(newState.Multiplier.InexactFloat64())

	w.journalEvent(ctx, opp, amount, fee, newState)

	slog.Info("rebalanced",
		"action", opp.Action,
		"amount", amount.String(),
		"fee_paid", fee.String(),
		"new_ratio", newState.DebtRatio.StringFixed(4),
		"leverage", newState.Multiplier.StringFixed(2),
	)
	return true, nil
}

func (w *Worker) journalEvent(ctx context.Context, opp *model.Opportunity,
	amount, fee decimal.Decimal, state model.LeverageState) {
	event := &model.Event{
		ID:        uuid.New().String(),
		Kind:      model.EventRebalance,
		Asset:     opp.Action,
		AmountA:   decimal.Zero,
		AmountB:   amount,
		Fee:       fee,
		DebtRatio: state.DebtRatio,
		Timestamp: time.Now().UTC(),
	}
	if err := w.journal.AppendEvent(ctx, event); err != nil {
		slog.Error("journal append failed", "kind", event.Kind, "err", err)
	}
}
