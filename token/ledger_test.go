package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"synthmint/crypto"
	"synthmint/storage"
)

func testAddress(suffix byte) crypto.Address {
	payload := make([]byte, 20)
	payload[0] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, payload)
}

func TestLedgerMintTransferBurn(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	ledger := NewLedger(db, "WETH")
	alice := testAddress(0x01)
	bob := testAddress(0x02)

	require.NoError(t, ledger.Mint(alice, big.NewInt(1_000)))
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(400)))

	aliceBalance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Zero(t, aliceBalance.Cmp(big.NewInt(600)))

	bobBalance, err := ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Zero(t, bobBalance.Cmp(big.NewInt(400)))

	require.NoError(t, ledger.Burn(bob, big.NewInt(100)))
	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(900)))
}

func TestLedgerTransferUnderflow(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	ledger := NewLedger(db, "WETH")
	alice := testAddress(0x01)
	bob := testAddress(0x02)

	require.NoError(t, ledger.Mint(alice, big.NewInt(100)))
	err := ledger.Transfer(alice, bob, big.NewInt(200))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Failed transfers leave both balances untouched.
	aliceBalance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Zero(t, aliceBalance.Cmp(big.NewInt(100)))
	bobBalance, err := ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Zero(t, bobBalance.Sign())
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	ledger := NewLedger(db, "WETH")
	alice := testAddress(0x01)

	require.ErrorIs(t, ledger.Mint(alice, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Burn(alice, nil), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Transfer(alice, alice, big.NewInt(-5)), ErrInvalidAmount)
}

func TestLedgersAreIsolatedBySymbol(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	weth := NewLedger(db, "WETH")
	wbtc := NewLedger(db, "WBTC")
	alice := testAddress(0x01)

	require.NoError(t, weth.Mint(alice, big.NewInt(10)))
	balance, err := wbtc.BalanceOf(alice)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}
