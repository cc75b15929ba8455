package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"synthmint/crypto"
	"synthmint/native/synth"
	"synthmint/storage"
)

func testAddress(seed byte) crypto.Address {
	var raw [20]byte
	for i := range raw {
		raw[i] = seed
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw[:])
}

func TestPositionStoreRoundTrip(t *testing.T) {
	store := NewPositionStore(storage.NewMemDB())
	addr := testAddress(0x11)

	pos := &synth.Position{
		Address: addr,
		Collateral: map[string]*big.Int{
			"WETH": big.NewInt(4_000_000_000_000_000_000),
			"WBTC": big.NewInt(2_000_000_000_000_000_000),
		},
		Debt: big.NewInt(5_400_000_000_000_000_000),
	}
	require.NoError(t, store.PutPosition(pos))

	loaded, err := store.GetPosition(addr)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.Address.Equal(addr))
	require.Equal(t, 0, loaded.Debt.Cmp(pos.Debt))
	require.Equal(t, 0, loaded.Collateral["WETH"].Cmp(pos.Collateral["WETH"]))
	require.Equal(t, 0, loaded.Collateral["WBTC"].Cmp(pos.Collateral["WBTC"]))
}

func TestPositionStoreMissingReturnsNil(t *testing.T) {
	store := NewPositionStore(storage.NewMemDB())
	loaded, err := store.GetPosition(testAddress(0x22))
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestPositionStoreOverwrite(t *testing.T) {
	store := NewPositionStore(storage.NewMemDB())
	addr := testAddress(0x33)

	first := &synth.Position{
		Address:    addr,
		Collateral: map[string]*big.Int{"WETH": big.NewInt(10)},
		Debt:       big.NewInt(5),
	}
	require.NoError(t, store.PutPosition(first))

	second := &synth.Position{
		Address:    addr,
		Collateral: map[string]*big.Int{"WETH": big.NewInt(7)},
		Debt:       big.NewInt(0),
	}
	require.NoError(t, store.PutPosition(second))

	loaded, err := store.GetPosition(addr)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Collateral["WETH"].Cmp(big.NewInt(7)))
	require.Equal(t, 0, loaded.Debt.Sign())
}

func TestPositionStoreRejectsNil(t *testing.T) {
	store := NewPositionStore(storage.NewMemDB())
	require.Error(t, store.PutPosition(nil))
}
