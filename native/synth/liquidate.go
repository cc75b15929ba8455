package synth

import (
	"fmt"
	"math/big"
	"time"

	"synthmint/crypto"
)

// seizureToleranceBps is the minimum share of the seizure target that must be
// collected, tolerating only negligible rounding loss.
const seizureToleranceBps = 9_999

// Liquidate lets a third party repay up to the close factor of an unhealthy
// position's debt in exchange for collateral worth the repayment plus the
// liquidation bonus, seized proportionally across every asset the target
// holds. The six steps of the operation commit as one atomic unit.
func (e *Engine) Liquidate(liquidator, user crypto.Address, debtToCover *big.Int) (*LiquidationResult, error) {
	var result *LiquidationResult
	err := e.runGuarded(func(j *journal) error {
		executed, err := e.liquidate(j, liquidator, user, debtToCover)
		if err != nil {
			return err
		}
		result = executed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) liquidate(j *journal, liquidator, user crypto.Address, debtToCover *big.Int) (*LiquidationResult, error) {
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	previous, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	startingFactor, err := e.healthFactor(previous)
	if err != nil {
		return nil, err
	}
	if startingFactor.Cmp(minHealthFactor) >= 0 {
		return nil, ErrHealthFactorOk
	}

	// A single call may repay at most the close factor share of current debt.
	maxCover := new(big.Int).Mul(previous.Debt, new(big.Int).SetUint64(e.params.CloseFactorBps))
	maxCover.Quo(maxCover, basisPoints)
	actualCover := new(big.Int).Set(debtToCover)
	if actualCover.Cmp(maxCover) > 0 {
		actualCover.Set(maxCover)
	}
	if actualCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	bonus := new(big.Int).SetUint64(basisPoints.Uint64() + e.params.LiquidationBonusBps)
	totalValueToSeize := new(big.Int).Mul(actualCover, bonus)
	totalValueToSeize.Quo(totalValueToSeize, basisPoints)

	updated := previous.Clone()
	seized, seizedValue, err := e.seizeProportional(j, updated, liquidator, totalValueToSeize, e.now())
	if err != nil {
		return nil, err
	}

	if err := e.synthetic.Transfer(liquidator, e.moduleAddress, actualCover); err != nil {
		return nil, fmt.Errorf("%w: synthetic pull: %v", ErrTransferFailed, err)
	}
	cover := new(big.Int).Set(actualCover)
	j.record(func() error { return e.synthetic.Transfer(e.moduleAddress, liquidator, cover) })
	if err := e.synthetic.Burn(e.moduleAddress, actualCover); err != nil {
		return nil, fmt.Errorf("%w: synthetic burn: %v", ErrTransferFailed, err)
	}
	j.record(func() error { return e.synthetic.Mint(e.moduleAddress, cover) })

	updated.Debt = new(big.Int).Sub(updated.Debt, actualCover)
	if err := e.persistPosition(j, previous, updated); err != nil {
		return nil, err
	}

	// The liquidator must leave the operation healthy themselves.
	liquidatorPosition, err := e.loadPosition(liquidator)
	if err != nil {
		return nil, err
	}
	if err := e.checkHealth(liquidatorPosition); err != nil {
		return nil, err
	}

	endingFactor, err := e.healthFactor(updated)
	if err != nil {
		return nil, err
	}
	return &LiquidationResult{
		DebtRepaid:           actualCover,
		CollateralValueUsd:   seizedValue,
		Seized:               seized,
		StartingHealthFactor: startingFactor,
		EndingHealthFactor:   endingFactor,
	}, nil
}

// seizeProportional transfers collateral worth totalValueToSeize from the
// target position to the liquidator, iterating registered assets in their
// configured order and weighting each by its share of the target's total
// collateral value. The last iterated asset absorbs the rounding residual so
// the target is met rather than left slightly short.
func (e *Engine) seizeProportional(j *journal, position *Position, liquidator crypto.Address, totalValueToSeize *big.Int, now time.Time) ([]SeizedCollateral, *big.Int, error) {
	type holding struct {
		asset registeredAsset
		usd   *big.Int
	}

	totalCollateralValue := big.NewInt(0)
	held := make([]holding, 0, len(e.assets))
	for _, reg := range e.assets {
		balance := position.CollateralBalance(reg.symbol)
		value, err := e.usdValue(reg.feed, balance)
		if err != nil {
			return nil, nil, err
		}
		totalCollateralValue.Add(totalCollateralValue, value)
		if balance.Sign() > 0 {
			held = append(held, holding{asset: reg, usd: value})
		}
	}
	if totalCollateralValue.Cmp(totalValueToSeize) < 0 {
		return nil, nil, ErrInsufficientCollateral
	}

	seized := make([]SeizedCollateral, 0, len(held))
	seizedValue := big.NewInt(0)
	for i, entry := range held {
		shareUsd := new(big.Int)
		if i == len(held)-1 {
			// Residual assignment absorbs rounding error from the
			// proportional splits.
			shareUsd.Sub(totalValueToSeize, seizedValue)
		} else {
			shareUsd.Mul(entry.usd, totalValueToSeize)
			shareUsd.Quo(shareUsd, totalCollateralValue)
		}
		if shareUsd.Sign() <= 0 {
			continue
		}
		tokens, err := e.tokenAmountFromUsd(entry.asset.feed, shareUsd, now)
		if err != nil {
			return nil, nil, err
		}
		// Prices can move between the two valuation passes; never seize
		// more than the target actually holds.
		balance := position.CollateralBalance(entry.asset.symbol)
		if tokens.Cmp(balance) > 0 {
			tokens.Set(balance)
		}
		if tokens.Sign() <= 0 {
			continue
		}
		if err := e.transferSeized(j, entry.asset, liquidator, tokens); err != nil {
			return nil, nil, err
		}
		position.Collateral[entry.asset.symbol] = balance.Sub(balance, tokens)

		actualUsd, err := e.usdValue(entry.asset.feed, tokens)
		if err != nil {
			return nil, nil, err
		}
		seizedValue.Add(seizedValue, actualUsd)
		seized = append(seized, SeizedCollateral{Symbol: entry.asset.symbol, Amount: tokens, UsdValue: actualUsd})
		if seizedValue.Cmp(totalValueToSeize) >= 0 {
			break
		}
	}

	collected := new(big.Int).Mul(seizedValue, basisPoints)
	required := new(big.Int).Mul(totalValueToSeize, big.NewInt(seizureToleranceBps))
	if collected.Cmp(required) < 0 {
		return nil, nil, ErrInsufficientCollateral
	}
	return seized, seizedValue, nil
}

func (e *Engine) transferSeized(j *journal, asset registeredAsset, liquidator crypto.Address, tokens *big.Int) error {
	if err := asset.token.Transfer(e.moduleAddress, liquidator, tokens); err != nil {
		return fmt.Errorf("%w: %s seizure: %v", ErrTransferFailed, asset.symbol, err)
	}
	moved := new(big.Int).Set(tokens)
	j.record(func() error { return asset.token.Transfer(liquidator, e.moduleAddress, moved) })
	return nil
}
