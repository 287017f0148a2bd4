package arb_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/amm"
	"github.com/lqx/pool-engine/internal/arb"
	"github.com/lqx/pool-engine/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func refSnapshot() model.Snapshot {
	return model.Snapshot{
		SymbolA:     "LBTC",
		SymbolB:     "LUSDt",
		ReserveA:    d("1"),
		ReserveB:    d("30000"),
		Debt:        d("30000"),
		OraclePrice: d("30000"),
	}
}

func newRefPool(t *testing.T) *amm.Pool {
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
	return pool
}

func TestSolveTradeForPrice_WithinTolerance(t *testing.T) {
	// Pool price equals target: no trade.
	if trade := arb.SolveTradeForPrice(refSnapshot(), d("30000"), d("0.001"), d("0.003")); trade != nil {
		t.Errorf("expected nil at target, got %+v", trade)
	}
	// 30020 is within 10 bps of 30000.
	if trade := arb.SolveTradeForPrice(refSnapshot(), d("30020"), d("0.001"), d("0.003")); trade != nil {
		t.Errorf("expected nil within tolerance, got %+v", trade)
	}
}

func TestSolveTradeForPrice_SellBMovesPriceUp(t *testing.T) {
	target := d("32000")
	trade := arb.SolveTradeForPrice(refSnapshot(), target, d("0.001"), d("0.003"))
	if trade == nil {
		t.Fatal("expected a trade")
	}
	if trade.Sell != model.AssetB || trade.SellSymbol != "LUSDt" {
		t.Fatalf("price must rise by selling LUSDt, got %s", trade.SellSymbol)
	}
	if !trade.AmountIn.IsPositive() {
		t.Fatalf("non-positive trade size %s", trade.AmountIn)
	}

	// Execute the solved trade against a live pool: the post-trade pool
	// price must land on the target.
	pool := newRefPool(t)
	quote, err := pool.ExecuteSwap(trade.Sell, trade.AmountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.PriceAfter.Sub(target).Abs().GreaterThan(d("0.01")) {
		t.Errorf("post-trade price %s, want %s", quote.PriceAfter, target)
	}
}

func TestSolveTradeForPrice_SellAMovesPriceDown(t *testing.T) {
	target := d("28000")
	trade := arb.SolveTradeForPrice(refSnapshot(), target, d("0.001"), d("0.003"))
	if trade == nil {
		t.Fatal("expected a trade")
	}
	if trade.Sell != model.AssetA || trade.SellSymbol != "LBTC" {
		t.Fatalf("price must fall by selling LBTC, got %s", trade.SellSymbol)
	}

	pool := newRefPool(t)
	quote, err := pool.ExecuteSwap(trade.Sell, trade.AmountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.PriceAfter.Sub(target).Abs().GreaterThan(d("0.01")) {
		t.Errorf("post-trade price %s, want %s", quote.PriceAfter, target)
	}
}

func TestSolveTradeForPrice_ZeroFeeLinearCase(t *testing.T) {
	// With a 100% fee the quadratic coefficient vanishes only artificially;
	// the meaningful degenerate check is that a zero-fee solve still works
	// and needs a smaller input than the fee-bearing one.
	target := d("32000")
	withFee := arb.SolveTradeForPrice(refSnapshot(), target, d("0.001"), d("0.003"))
	noFee := arb.SolveTradeForPrice(refSnapshot(), target, d("0.001"), d("0"))
	if withFee == nil || noFee == nil {
		t.Fatal("expected trades in both cases")
	}
	if noFee.AmountIn.GreaterThanOrEqual(withFee.AmountIn) {
		t.Errorf("fee should increase the required input: fee=%s nofee=%s",
			withFee.AmountIn, noFee.AmountIn)
	}
}

func TestSolveTradeForPrice_DegenerateSnapshots(t *testing.T) {
	empty := model.Snapshot{SymbolA: "LBTC", SymbolB: "LUSDt"}
	if trade := arb.SolveTradeForPrice(empty, d("30000"), d("0.001"), d("0.003")); trade != nil {
		t.Errorf("expected nil for empty pool, got %+v", trade)
	}
	if trade := arb.SolveTradeForPrice(refSnapshot(), d("0"), d("0.001"), d("0.003")); trade != nil {
		t.Errorf("expected nil for non-positive target, got %+v", trade)
	}
}

func TestDetectOpportunity_WithinTolerance(t *testing.T) {
	if opp := arb.DetectOpportunity(refSnapshot(), d("0.5"), d("0.05")); opp != nil {
		t.Errorf("expected nil at target ratio, got %+v", opp)
	}
}

func TestDetectOpportunity_Directions(t *testing.T) {
	// Price up: ratio falls below target, borrow more.
	s := refSnapshot()
	s.OraclePrice = d("40000")
	opp := arb.DetectOpportunity(s, d("0.5"), d("0.05"))
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if opp.Direction != model.DebtIncrease || opp.Action != "increase" {
		t.Errorf("expected increase, got %s", opp.Action)
	}
	if !opp.Adjustment.Equal(d("5000")) {
		t.Errorf("expected adjustment 5000, got %s", opp.Adjustment)
	}
	if !opp.ExpectedProfit.Equal(d("5")) {
		t.Errorf("expected advisory profit 5, got %s", opp.ExpectedProfit)
	}

	// Price down: ratio rises above target, repay.
	s.OraclePrice = d("24000")
	opp = arb.DetectOpportunity(s, d("0.5"), d("0.05"))
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if opp.Direction != model.DebtDecrease || opp.Action != "decrease" {
		t.Errorf("expected decrease, got %s", opp.Action)
	}
	if !opp.Adjustment.Equal(d("3000")) {
		t.Errorf("expected adjustment 3000, got %s", opp.Adjustment)
	}
}
