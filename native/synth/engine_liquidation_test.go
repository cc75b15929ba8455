package synth

import (
	"errors"
	"math/big"
	"testing"

	"synthmint/crypto"
)

// crashMarket reprices the feeds so an existing position drops under water
// without touching the ledger.
func (h *testHarness) crashMarket(prices map[string]int64) {
	for symbol, price := range prices {
		h.feeds[symbol].Set(feedPrice(price), h.now)
	}
}

// setupUnderwaterPosition builds the liquidation fixture: the user holds two
// collateral types, mints $5,400 of debt, then prices crash until the
// combined collateral is worth $6,800.
func setupUnderwaterPosition(t *testing.T) (*testHarness, crypto.Address, crypto.Address) {
	t.Helper()
	h := newTestHarness(t, []string{"WETH", "WBTC"}, map[string]int64{"WETH": 2_000, "WBTC": 30_000})
	user := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	h.fund("WETH", user, 4)
	h.fund("WBTC", user, 2)
	if err := h.engine.DepositCollateral(user, "WETH", scaled(4)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.DepositCollateral(user, "WBTC", scaled(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, scaled(5_400)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// $4,400 of WETH and $2,400 of WBTC: $6,800 total against $5,400 debt.
	h.crashMarket(map[string]int64{"WETH": 1_100, "WBTC": 1_200})

	// Fund the liquidator with synthetic to repay the debt.
	if err := h.synthetic.Mint(liquidator, scaled(5_400)); err != nil {
		t.Fatalf("fund liquidator: %v", err)
	}
	return h, user, liquidator
}

func TestHealthFactorUnderwater(t *testing.T) {
	h, user, _ := setupUnderwaterPosition(t)

	factor, err := h.engine.HealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	// (6800 * 0.5 * 1e18) / 5400 = 0.6296...e18
	expected := new(big.Int).Mul(scaled(3_400), fixedPointScale)
	expected.Quo(expected, scaled(5_400))
	if factor.Cmp(expected) != 0 {
		t.Fatalf("expected health factor %s, got %s", expected, factor)
	}
	if factor.Cmp(minHealthFactor) >= 0 {
		t.Fatal("expected position to be liquidatable")
	}
}

func TestLiquidateHealthyPositionFails(t *testing.T) {
	h := newTestHarness(t, []string{"WETH"}, map[string]int64{"WETH": 2_000})
	user := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	h.fund("WETH", user, 10)
	if err := h.engine.DepositCollateralAndMintDebt(user, "WETH", scaled(10), scaled(5_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := h.engine.Liquidate(liquidator, user, scaled(1_000)); !errors.Is(err, ErrHealthFactorOk) {
		t.Fatalf("expected ErrHealthFactorOk, got %v", err)
	}
}

func TestLiquidateRejectsZeroCover(t *testing.T) {
	h, user, liquidator := setupUnderwaterPosition(t)
	if _, err := h.engine.Liquidate(liquidator, user, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestLiquidateProportionalSeizure(t *testing.T) {
	h, user, liquidator := setupUnderwaterPosition(t)

	// Cover $2,700: seizure target is $2,970 with the 10% bonus, split across
	// both assets proportionally to their post-crash values. Neither asset
	// alone covers the target ($4,400 WETH share is computed first).
	result, err := h.engine.Liquidate(liquidator, user, scaled(2_700))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if result.DebtRepaid.Cmp(scaled(2_700)) != 0 {
		t.Fatalf("unexpected debt repaid: %s", result.DebtRepaid)
	}
	if len(result.Seized) != 2 {
		t.Fatalf("expected seizure across both assets, got %d", len(result.Seized))
	}

	position := h.state.positions[h.state.key(user)]
	if position.Debt.Cmp(scaled(2_700)) != 0 {
		t.Fatalf("expected debt reduced to 2700, got %s", position.Debt)
	}

	wethSeized := h.tokens["WETH"].balance(liquidator)
	wbtcSeized := h.tokens["WBTC"].balance(liquidator)
	if wethSeized.Sign() <= 0 || wbtcSeized.Sign() <= 0 {
		t.Fatalf("expected both asset balances to increase, got weth=%s wbtc=%s", wethSeized, wbtcSeized)
	}

	// Seized value must hit the target within the rounding tolerance.
	target := scaled(2_970)
	collected := new(big.Int).Mul(result.CollateralValueUsd, basisPoints)
	required := new(big.Int).Mul(target, big.NewInt(seizureToleranceBps))
	if collected.Cmp(required) < 0 {
		t.Fatalf("seized value %s below tolerance of target %s", result.CollateralValueUsd, target)
	}
	if result.CollateralValueUsd.Cmp(target) > 0 {
		t.Fatalf("seized value %s exceeds target %s", result.CollateralValueUsd, target)
	}

	// The liquidator burned the covered debt out of their own balance.
	if h.synthetic.balance(liquidator).Cmp(scaled(2_700)) != 0 {
		t.Fatalf("unexpected liquidator synthetic balance: %s", h.synthetic.balance(liquidator))
	}
	// 5400 minted by the user plus 5400 funded to the liquidator, minus the burn.
	if h.synthetic.supply.Cmp(scaled(8_100)) != 0 {
		t.Fatalf("unexpected synthetic supply: %s", h.synthetic.supply)
	}

	// Ledger and custody stay conserved for every asset.
	for _, symbol := range h.engine.CollateralTokens() {
		recorded := big.NewInt(0)
		for _, pos := range h.state.positions {
			recorded.Add(recorded, pos.CollateralBalance(symbol))
		}
		custody := h.tokens[symbol].balance(h.engine.ModuleAddress())
		if recorded.Cmp(custody) != 0 {
			t.Fatalf("%s: ledger total %s != custody %s", symbol, recorded, custody)
		}
	}
}

func TestLiquidateCapsAtCloseFactor(t *testing.T) {
	h, user, liquidator := setupUnderwaterPosition(t)

	// Request far more than 50% of the debt; the engine caps at $2,700.
	result, err := h.engine.Liquidate(liquidator, user, scaled(100_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.DebtRepaid.Cmp(scaled(2_700)) != 0 {
		t.Fatalf("expected cover capped at 2700, got %s", result.DebtRepaid)
	}
}

func TestLiquidateInsufficientCollateral(t *testing.T) {
	h, user, liquidator := setupUnderwaterPosition(t)

	// Crash far enough that total collateral cannot cover the seizure target.
	h.crashMarket(map[string]int64{"WETH": 400, "WBTC": 200})
	// Collateral is now 4*400 + 2*200 = $2,000; target for $2,700 cover is $2,970.
	_, err := h.engine.Liquidate(liquidator, user, scaled(2_700))
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}

	// Nothing moved.
	if h.tokens["WETH"].balance(liquidator).Sign() != 0 {
		t.Fatal("expected no seizure")
	}
	position := h.state.positions[h.state.key(user)]
	if position.Debt.Cmp(scaled(5_400)) != 0 {
		t.Fatalf("expected debt unchanged, got %s", position.Debt)
	}
}

func TestLiquidateRequiresHealthyLiquidator(t *testing.T) {
	h, user, liquidator := setupUnderwaterPosition(t)

	// Give the liquidator their own underwater position.
	h.fund("WETH", liquidator, 2)
	h.crashMarket(map[string]int64{"WETH": 2_000, "WBTC": 30_000})
	if err := h.engine.DepositCollateralAndMintDebt(liquidator, "WETH", scaled(2), scaled(1_900)); err != nil {
		t.Fatalf("setup liquidator position: %v", err)
	}
	h.crashMarket(map[string]int64{"WETH": 1_100, "WBTC": 1_200})

	_, err := h.engine.Liquidate(liquidator, user, scaled(2_700))
	if !errors.Is(err, ErrHealthCheckFailed) {
		t.Fatalf("expected ErrHealthCheckFailed, got %v", err)
	}
	// The whole operation unwound, including the target's ledger.
	position := h.state.positions[h.state.key(user)]
	if position.Debt.Cmp(scaled(5_400)) != 0 {
		t.Fatalf("expected target debt restored, got %s", position.Debt)
	}
	if h.synthetic.balance(liquidator).Cmp(scaled(5_400)) != 0 {
		t.Fatalf("expected liquidator synthetic restored, got %s", h.synthetic.balance(liquidator))
	}
}

func TestLiquidateSeizesSingleAssetWhenSufficient(t *testing.T) {
	h := newTestHarness(t, []string{"WETH"}, map[string]int64{"WETH": 2_000})
	user := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	h.fund("WETH", user, 4)
	if err := h.engine.DepositCollateralAndMintDebt(user, "WETH", scaled(4), scaled(3_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h.crashMarket(map[string]int64{"WETH": 1_100})
	if err := h.synthetic.Mint(liquidator, scaled(1_500)); err != nil {
		t.Fatalf("fund liquidator: %v", err)
	}

	result, err := h.engine.Liquidate(liquidator, user, scaled(1_500))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if len(result.Seized) != 1 {
		t.Fatalf("expected single-asset seizure, got %d entries", len(result.Seized))
	}
	// $1,650 at $1,100/unit is exactly 1.5 units.
	expected := new(big.Int).Quo(new(big.Int).Mul(scaled(1_650), fixedPointScale), scaled(1_100))
	if result.Seized[0].Amount.Cmp(expected) != 0 {
		t.Fatalf("expected %s tokens seized, got %s", expected, result.Seized[0].Amount)
	}
}
