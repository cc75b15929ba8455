package synth

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"synthmint/crypto"
	nativecommon "synthmint/native/common"
)

const moduleName = "synth"

type engineState interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(position *Position) error
}

// Engine owns the collateral and debt ledgers and orchestrates every state
// transition for the synth module. The registered collateral set is immutable
// after construction; all mutations run behind the pause guard and the
// reentrancy guard and commit as all-or-nothing units.
type Engine struct {
	state         engineState
	moduleAddress crypto.Address
	synthetic     SyntheticToken
	assets        []registeredAsset
	assetIndex    map[string]int
	params        RiskParameters
	pauses        nativecommon.PauseView
	guard         callGuard
	now           func() time.Time
}

type registeredAsset struct {
	symbol string
	token  Token
	feed   PriceFeed
}

// NewEngine constructs an engine over the ordered (asset, feed) pairs. The
// two lists must have matching lengths; the configured order is significant
// and drives deterministic iteration during liquidation.
func NewEngine(moduleAddr crypto.Address, synthetic SyntheticToken, assets []CollateralAsset, feeds []PriceFeed, params RiskParameters) (*Engine, error) {
	if synthetic == nil {
		return nil, fmt.Errorf("synth engine: synthetic token required")
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("synth engine: at least one collateral asset required")
	}
	if len(assets) != len(feeds) {
		return nil, ErrLengthMismatch
	}
	registered := make([]registeredAsset, 0, len(assets))
	index := make(map[string]int, len(assets))
	for i, asset := range assets {
		symbol := strings.TrimSpace(asset.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("synth engine: collateral asset %d missing symbol", i)
		}
		if asset.Token == nil {
			return nil, fmt.Errorf("synth engine: collateral asset %q missing token", symbol)
		}
		if feeds[i] == nil {
			return nil, fmt.Errorf("synth engine: collateral asset %q missing price feed", symbol)
		}
		if _, exists := index[symbol]; exists {
			return nil, fmt.Errorf("synth engine: duplicate collateral asset %q", symbol)
		}
		index[symbol] = len(registered)
		registered = append(registered, registeredAsset{symbol: symbol, token: asset.Token, feed: feeds[i]})
	}
	return &Engine{
		moduleAddress: moduleAddr,
		synthetic:     synthetic,
		assets:        registered,
		assetIndex:    index,
		params:        params,
		now:           time.Now,
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses installs the operator pause switches consulted before every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock replaces the time source used for staleness checks. Tests use it
// to evaluate quote age deterministically.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// CollateralTokens lists the registered collateral asset symbols in their
// configured order.
func (e *Engine) CollateralTokens() []string {
	if e == nil {
		return nil
	}
	symbols := make([]string, len(e.assets))
	for i, reg := range e.assets {
		symbols[i] = reg.symbol
	}
	return symbols
}

// PriceFeed returns the feed registered for the asset.
func (e *Engine) PriceFeed(asset string) (PriceFeed, error) {
	if e == nil {
		return nil, ErrNilState
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return nil, err
	}
	return reg.feed, nil
}

// Synthetic returns the synthetic debt token collaborator.
func (e *Engine) Synthetic() SyntheticToken {
	if e == nil {
		return nil
	}
	return e.synthetic
}

// CollateralBalance reports how much of the asset the user has deposited.
func (e *Engine) CollateralBalance(user crypto.Address, asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return position.CollateralBalance(reg.symbol), nil
}

// ModuleAddress returns the custody address holding deposited collateral.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddress
}

func (e *Engine) lookupAsset(symbol string) (registeredAsset, error) {
	idx, ok := e.assetIndex[strings.TrimSpace(symbol)]
	if !ok {
		return registeredAsset{}, ErrNotAllowedToken
	}
	return e.assets[idx], nil
}

// loadPosition fetches the stored position for the address, normalising nil
// fields. A fresh empty position is returned for first-time users.
func (e *Engine) loadPosition(addr crypto.Address) (*Position, error) {
	position, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Address: addr}
	}
	position.ensureDefaults()
	return position, nil
}

// persistPosition writes the updated position and records the previous value
// so a later failure in the same operation can restore it.
func (e *Engine) persistPosition(j *journal, previous, updated *Position) error {
	if err := e.state.PutPosition(updated); err != nil {
		return err
	}
	restore := previous.Clone()
	j.record(func() error { return e.state.PutPosition(restore) })
	return nil
}

// runGuarded wraps a mutating operation with the pause guard, the reentrancy
// guard, and the unwind-on-failure contract.
func (e *Engine) runGuarded(op func(j *journal) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	j := &journal{}
	if err := op(j); err != nil {
		if unwindErr := j.unwind(); unwindErr != nil {
			return errors.Join(err, unwindErr)
		}
		return err
	}
	return nil
}

// DepositCollateral locks collateral for the user inside the engine custody
// account.
func (e *Engine) DepositCollateral(user crypto.Address, asset string, amount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		return e.depositCollateral(j, user, asset, amount)
	})
}

// DepositCollateralAndMintDebt composes a deposit and a mint into a single
// atomic operation.
func (e *Engine) DepositCollateralAndMintDebt(user crypto.Address, asset string, collateralAmount, mintAmount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		if err := e.depositCollateral(j, user, asset, collateralAmount); err != nil {
			return err
		}
		return e.mintDebt(j, user, mintAmount)
	})
}

// RedeemCollateral releases collateral back to the user while ensuring the
// resulting position remains healthy.
func (e *Engine) RedeemCollateral(user crypto.Address, asset string, amount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		return e.redeemCollateral(j, user, asset, amount)
	})
}

// RedeemCollateralForDebt burns debt and redeems collateral in a single
// atomic operation.
func (e *Engine) RedeemCollateralForDebt(user crypto.Address, asset string, amount, burnAmount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		if err := e.burnDebt(j, user, user, burnAmount); err != nil {
			return err
		}
		return e.redeemCollateral(j, user, asset, amount)
	})
}

// MintDebt issues synthetic tokens against the user's collateral.
func (e *Engine) MintDebt(user crypto.Address, amount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		return e.mintDebt(j, user, amount)
	})
}

// BurnDebt destroys synthetic tokens pulled from the user and reduces their
// outstanding debt.
func (e *Engine) BurnDebt(user crypto.Address, amount *big.Int) error {
	return e.runGuarded(func(j *journal) error {
		return e.burnDebt(j, user, user, amount)
	})
}

func (e *Engine) depositCollateral(j *journal, user crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return err
	}
	previous, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	if err := reg.token.Transfer(user, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %s deposit: %v", ErrTransferFailed, reg.symbol, err)
	}
	pulled := new(big.Int).Set(amount)
	j.record(func() error { return reg.token.Transfer(e.moduleAddress, user, pulled) })

	updated := previous.Clone()
	updated.Collateral[reg.symbol] = new(big.Int).Add(updated.CollateralBalance(reg.symbol), amount)
	return e.persistPosition(j, previous, updated)
}

func (e *Engine) redeemCollateral(j *journal, user crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return err
	}
	previous, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	balance := previous.CollateralBalance(reg.symbol)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	updated := previous.Clone()
	updated.Collateral[reg.symbol] = balance.Sub(balance, amount)
	if err := e.checkHealth(updated); err != nil {
		return err
	}
	if err := reg.token.Transfer(e.moduleAddress, user, amount); err != nil {
		return fmt.Errorf("%w: %s redeem: %v", ErrTransferFailed, reg.symbol, err)
	}
	released := new(big.Int).Set(amount)
	j.record(func() error { return reg.token.Transfer(user, e.moduleAddress, released) })
	return e.persistPosition(j, previous, updated)
}

func (e *Engine) mintDebt(j *journal, user crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	previous, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	updated := previous.Clone()
	updated.Debt = new(big.Int).Add(updated.Debt, amount)
	if err := e.checkHealth(updated); err != nil {
		return err
	}
	if err := e.persistPosition(j, previous, updated); err != nil {
		return err
	}
	if err := e.synthetic.Mint(user, amount); err != nil {
		return fmt.Errorf("%w: synthetic mint: %v", ErrTransferFailed, err)
	}
	minted := new(big.Int).Set(amount)
	j.record(func() error { return e.synthetic.Burn(user, minted) })
	return nil
}

// burnDebt destroys `amount` of synthetic token pulled from payer and reduces
// onBehalfOf's recorded debt. Liquidations fund the burn from the liquidator
// while crediting the target's ledger.
func (e *Engine) burnDebt(j *journal, payer, onBehalfOf crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	previous, err := e.loadPosition(onBehalfOf)
	if err != nil {
		return err
	}
	if previous.Debt.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	if err := e.synthetic.Transfer(payer, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: synthetic pull: %v", ErrTransferFailed, err)
	}
	pulled := new(big.Int).Set(amount)
	j.record(func() error { return e.synthetic.Transfer(e.moduleAddress, payer, pulled) })
	if err := e.synthetic.Burn(e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: synthetic burn: %v", ErrTransferFailed, err)
	}
	burned := new(big.Int).Set(amount)
	j.record(func() error { return e.synthetic.Mint(e.moduleAddress, burned) })

	updated := previous.Clone()
	updated.Debt = new(big.Int).Sub(updated.Debt, amount)
	// Burning only improves the health factor; re-validate anyway.
	if err := e.checkHealth(updated); err != nil {
		return err
	}
	return e.persistPosition(j, previous, updated)
}
