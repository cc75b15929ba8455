package synth

import (
	"math/big"

	"synthmint/crypto"
)

var (
	basisPoints = big.NewInt(10_000)
	// minHealthFactor is the 1.0 boundary at the 18-decimal scale.
	minHealthFactor = new(big.Int).Set(fixedPointScale)
	// maxHealthFactor stands in for infinity when a position carries no debt.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// collateralValue sums the USD value of every registered asset balance held
// by the position. Zero-balance assets are still consulted, so the cost is
// O(registered assets) per call.
func (e *Engine) collateralValue(position *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, reg := range e.assets {
		value, err := e.usdValue(reg.feed, position.CollateralBalance(reg.symbol))
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// healthFactor recomputes the position's health factor from current ledger
// state and oracle prices. It is never cached. A value below minHealthFactor
// marks the position liquidatable.
func (e *Engine) healthFactor(position *Position) (*big.Int, error) {
	if position == nil || position.Debt == nil || position.Debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	collateral, err := e.collateralValue(position)
	if err != nil {
		return nil, err
	}
	threshold := new(big.Int).SetUint64(e.params.LiquidationThresholdBps)
	adjusted := new(big.Int).Mul(collateral, threshold)
	adjusted.Quo(adjusted, basisPoints)
	adjusted.Mul(adjusted, fixedPointScale)
	return adjusted.Quo(adjusted, position.Debt), nil
}

// checkHealth fails with ErrHealthCheckFailed when the position's health
// factor is below 1.
func (e *Engine) checkHealth(position *Position) error {
	factor, err := e.healthFactor(position)
	if err != nil {
		return err
	}
	if factor.Cmp(minHealthFactor) < 0 {
		return ErrHealthCheckFailed
	}
	return nil
}

// HealthFactor returns the current health factor for the account.
func (e *Engine) HealthFactor(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return e.healthFactor(position)
}

// AccountInformation reports the account's outstanding debt and the USD value
// of its collateral.
func (e *Engine) AccountInformation(user crypto.Address) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	position, err := e.loadPosition(user)
	if err != nil {
		return nil, nil, err
	}
	collateral, err := e.collateralValue(position)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(position.Debt), collateral, nil
}

// AccountCollateralValue reports the USD value of the account's collateral.
func (e *Engine) AccountCollateralValue(user crypto.Address) (*big.Int, error) {
	_, collateral, err := e.AccountInformation(user)
	return collateral, err
}
