package rebalance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/amm"
	"github.com/lqx/pool-engine/internal/model"
	"github.com/lqx/pool-engine/internal/store"
	"github.com/lqx/pool-engine/internal/treasury"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fixture struct {
	pool     *amm.Pool
	treasury *treasury.Memory
	journal  *store.MemoryStore
	worker   *Worker
}

func newFixture(t *testing.T, capital string) *fixture {
	t.Helper()
	pool, err := amm.New(amm.Config{
		SymbolA:      "LBTC",
		SymbolB:      "LUSDt",
		SwapFeeRate:  d("0.003"),
		FlashFeeRate: d("0.0005"),
		MaxLoanRatio: d("0.3"),
		TargetRatio:  d("0.5"),
		MinDebtRatio: d("0.0625"),
		MaxDebtRatio: d("0.53125"),
		SeedReserveA: d("1"),
		SeedReserveB: d("30000"),
		OraclePrice:  d("30000"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr := treasury.NewMemory(map[string]decimal.Decimal{"LUSDt": d(capital)})
	journal := store.NewMemoryStore()
	worker := NewWorker(pool, tr, journal, d("0.5"), d("0.05"), time.Second)
	return &fixture{pool: pool, treasury: tr, journal: journal, worker: worker}
}

func TestRunOnce_NoOpWithinTolerance(t *testing.T) {
	f := newFixture(t, "100000")

	rebalanced, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebalanced {
		t.Error("pool at target ratio must not be rebalanced")
	}

	events, _ := f.journal.RecentEvents(context.Background(), 10)
	if len(events) != 0 {
		t.Errorf("expected no journal events, got %d", len(events))
	}
}

func TestRunOnce_IncreasesDebtAfterPriceRise(t *testing.T) {
	f := newFixture(t, "100000")

	// Price 40000: value 70000, ratio 0.4286 — 5000 more debt hits target.
	if _, _, err := f.pool.UpdateOraclePrice(d("40000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebalanced, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rebalanced {
		t.Fatal("expected a rebalance")
	}

	snap := f.pool.Snapshot()
	if !snap.Debt.Equal(d("35000")) || !snap.ReserveB.Equal(d("35000")) {
		t.Errorf("expected debt/reserve_b 35000/35000, got %s/%s", snap.Debt, snap.ReserveB)
	}
	if len(f.pool.OutstandingLoans()) != 0 {
		t.Error("flash loan must be settled after the rebalance")
	}

	// Treasury got its principal back plus the 2.5 loan fee.
	if got := f.treasury.Available("LUSDt"); !got.Equal(d("100002.5")) {
		t.Errorf("expected treasury 100002.5, got %s", got)
	}

	events, _ := f.journal.EventsByKind(context.Background(), model.EventRebalance)
	if len(events) != 1 {
		t.Fatalf("expected 1 rebalance event, got %d", len(events))
	}
	if events[0].Asset != "increase" || !events[0].AmountB.Equal(d("5000")) {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestRunOnce_DecreasesDebtAfterPriceDrop(t *testing.T) {
	f := newFixture(t, "100000")

	// Price 24000: value 54000, ratio 0.5556 — repay 3000 to hit target.
	if _, _, err := f.pool.UpdateOraclePrice(d("24000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebalanced, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rebalanced {
		t.Fatal("expected a rebalance")
	}

	snap := f.pool.Snapshot()
	if !snap.Debt.Equal(d("27000")) || !snap.ReserveB.Equal(d("27000")) {
		t.Errorf("expected debt/reserve_b 27000/27000, got %s/%s", snap.Debt, snap.ReserveB)
	}
}

func TestRunOnce_SkipsWhenTreasuryTooSmall(t *testing.T) {
	// Capital below the minimum worthwhile adjustment.
	f := newFixture(t, "50")

	if _, _, err := f.pool.UpdateOraclePrice(d("40000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebalanced, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebalanced {
		t.Error("expected skip when treasury capital is below the minimum")
	}

	snap := f.pool.Snapshot()
	if !snap.Debt.Equal(d("30000")) {
		t.Errorf("debt must be unchanged, got %s", snap.Debt)
	}
}

func TestRunOnce_CleansUpOnCovenantViolation(t *testing.T) {
	f := newFixture(t, "100000")

	// Price 20000: ratio 0.6; the full remedial repayment of 5000 still
	// leaves 25000/45000 ≈ 0.556 above the band, so the adjustment fails.
	if _, _, err := f.pool.UpdateOraclePrice(d("20000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebalanced, err := f.worker.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected the covenant violation to surface")
	}
	if rebalanced {
		t.Error("failed rebalance must report false")
	}

	// Everything rolled back: loan cancelled, capital returned, ledger intact.
	if len(f.pool.OutstandingLoans()) != 0 {
		t.Error("flash loan must be cancelled on failure")
	}
	if got := f.treasury.Available("LUSDt"); !got.Equal(d("100000")) {
		t.Errorf("expected treasury restored to 100000, got %s", got)
	}
	snap := f.pool.Snapshot()
	if !snap.Debt.Equal(d("30000")) || !snap.ReserveB.Equal(d("30000")) {
		t.Errorf("ledger must be unchanged, got debt=%s reserve_b=%s", snap.Debt, snap.ReserveB)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, "100000")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
}
