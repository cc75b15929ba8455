package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"synthmint/crypto"
	"synthmint/native/synth"
	"synthmint/storage"
)

// PositionStore persists synth positions in a key-value database. Positions
// are stored as JSON under a per-address key so they can be inspected with
// ordinary database tooling.
type PositionStore struct {
	db storage.Database
}

func NewPositionStore(db storage.Database) *PositionStore {
	return &PositionStore{db: db}
}

func positionKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("synth/position/%s", addr.String()))
}

type storedPosition struct {
	Address    string            `json:"address"`
	Collateral map[string]string `json:"collateral"`
	Debt       string            `json:"debt"`
}

// GetPosition returns the stored position for addr, or nil when the account
// has never interacted with the engine.
func (s *PositionStore) GetPosition(addr crypto.Address) (*synth.Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedPosition
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode position for %s: %w", addr, err)
	}
	return stored.toPosition()
}

func (s *PositionStore) PutPosition(pos *synth.Position) error {
	if pos == nil {
		return errors.New("state: nil position")
	}
	raw, err := json.Marshal(fromPosition(pos))
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(pos.Address), raw)
}

func fromPosition(pos *synth.Position) storedPosition {
	stored := storedPosition{
		Address:    pos.Address.String(),
		Collateral: make(map[string]string, len(pos.Collateral)),
		Debt:       "0",
	}
	for symbol, amount := range pos.Collateral {
		if amount == nil {
			continue
		}
		stored.Collateral[symbol] = amount.String()
	}
	if pos.Debt != nil {
		stored.Debt = pos.Debt.String()
	}
	return stored
}

func (s storedPosition) toPosition() (*synth.Position, error) {
	addr, err := crypto.DecodeAddress(s.Address)
	if err != nil {
		return nil, fmt.Errorf("state: decode position address: %w", err)
	}
	pos := &synth.Position{
		Address:    addr,
		Collateral: make(map[string]*big.Int, len(s.Collateral)),
		Debt:       big.NewInt(0),
	}
	for symbol, raw := range s.Collateral {
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("state: invalid collateral amount %q for %s", raw, symbol)
		}
		pos.Collateral[symbol] = amount
	}
	if s.Debt != "" {
		debt, ok := new(big.Int).SetString(s.Debt, 10)
		if !ok {
			return nil, fmt.Errorf("state: invalid debt amount %q", s.Debt)
		}
		pos.Debt = debt
	}
	return pos, nil
}
