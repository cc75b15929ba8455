package synth

import (
	"math/big"
	"time"

	"synthmint/crypto"
)

// Token moves balances between holders. Collateral tokens and the synthetic
// token are external collaborators; implementations may be buggy or outright
// adversarial, so the engine treats any returned error as an aborted
// operation and holds its reentrancy guard across every call.
type Token interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// SyntheticToken is the USD-pegged debt token minted against collateral.
type SyntheticToken interface {
	Token
	Mint(to crypto.Address, amount *big.Int) error
	Burn(holder crypto.Address, amount *big.Int) error
}

// CollateralAsset pairs an asset identifier with its token collaborator. The
// registered set is fixed at construction; iteration order over the
// configured list is significant during liquidation.
type CollateralAsset struct {
	Symbol string
	Token  Token
}

// Position maintains the collateral and debt ledger entries for a single
// account. Amounts are 18-decimal fixed-point integers; collateral native
// decimals are not normalised, a known limitation carried from the original
// design.
type Position struct {
	Address    crypto.Address
	Collateral map[string]*big.Int
	Debt       *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, Collateral: make(map[string]*big.Int, len(p.Collateral))}
	for symbol, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[symbol] = new(big.Int).Set(amount)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralBalance returns a copy of the recorded balance for the asset,
// zero when the position holds none.
func (p *Position) CollateralBalance(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[symbol]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

func (p *Position) ensureDefaults() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// RiskParameters groups the safety limits governing issuance and liquidation.
type RiskParameters struct {
	// LiquidationThresholdBps discounts collateral value when computing the
	// health factor, expressed in basis points.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the extra collateral value awarded to a
	// liquidator on top of the debt repaid, expressed in basis points.
	LiquidationBonusBps uint64
	// CloseFactorBps caps the share of a position's debt a single
	// liquidation may repay, expressed in basis points.
	CloseFactorBps uint64
	// MaxQuoteAge bounds the age of oracle quotes used when sizing
	// liquidation seizures.
	MaxQuoteAge time.Duration
}

// SeizedCollateral records one asset's contribution to a liquidation.
type SeizedCollateral struct {
	Symbol   string   `json:"symbol"`
	Amount   *big.Int `json:"amount"`
	UsdValue *big.Int `json:"usdValue"`
}

// LiquidationResult summarises an executed liquidation for callers and the
// RPC surface.
type LiquidationResult struct {
	DebtRepaid           *big.Int           `json:"debtRepaid"`
	CollateralValueUsd   *big.Int           `json:"collateralValueUsd"`
	Seized               []SeizedCollateral `json:"seized"`
	StartingHealthFactor *big.Int           `json:"startingHealthFactor"`
	EndingHealthFactor   *big.Int           `json:"endingHealthFactor"`
}
