// Package token provides a fungible token ledger backed by a key-value
// database. Ledgers implement the engine's collateral and synthetic token
// capability interfaces so the daemon runs self-contained.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"synthmint/crypto"
	"synthmint/storage"
)

var (
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
)

// Ledger tracks holder balances and total supply for a single token symbol.
type Ledger struct {
	db     storage.Database
	symbol string
}

// NewLedger constructs a ledger for the given symbol over the database.
func NewLedger(db storage.Database, symbol string) *Ledger {
	return &Ledger{db: db, symbol: strings.TrimSpace(symbol)}
}

// Symbol returns the token symbol the ledger tracks.
func (l *Ledger) Symbol() string {
	return l.symbol
}

func (l *Ledger) balanceKey(addr crypto.Address) []byte {
	return []byte("token/" + l.symbol + "/balance/" + addr.String())
}

func (l *Ledger) supplyKey() []byte {
	return []byte("token/" + l.symbol + "/supply")
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (l *Ledger) writeAmount(key []byte, amount *big.Int) error {
	return l.db.Put(key, amount.Bytes())
}

// BalanceOf returns the holder's current balance.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return l.readAmount(l.balanceKey(addr))
}

// TotalSupply returns the ledger's total outstanding supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.readAmount(l.supplyKey())
}

// Transfer moves amount between holders, failing without mutation when the
// sender's balance would underflow.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, fromBalance, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.writeAmount(l.balanceKey(from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.writeAmount(l.balanceKey(to), toBalance.Add(toBalance, amount))
}

// Mint creates new supply credited to the recipient.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.writeAmount(l.balanceKey(to), balance.Add(balance, amount)); err != nil {
		return err
	}
	return l.writeAmount(l.supplyKey(), supply.Add(supply, amount))
}

// Burn destroys amount from the holder's balance and reduces total supply.
func (l *Ledger) Burn(holder crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, burns %s", ErrInsufficientBalance, holder, balance, amount)
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.writeAmount(l.balanceKey(holder), balance.Sub(balance, amount)); err != nil {
		return err
	}
	return l.writeAmount(l.supplyKey(), supply.Sub(supply, amount))
}
