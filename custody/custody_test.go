package custody

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/types"
)

type memLedger map[Account]uint64

func (m memLedger) TokenBalance(a Account) (uint64, error) { return m[a], nil }

func (m memLedger) SetTokenBalance(a Account, v uint64) error {
	m[a] = v
	return nil
}

func TestTransfer(t *testing.T) {
	c := qt.New(t)
	l := memLedger{}
	alice := common.HexToAddress("0x01")

	c.Assert(Mint(l, External(alice, types.AssetUSDC), 1_000), qt.IsNil)
	c.Assert(Transfer(l, External(alice, types.AssetUSDC), Vault(types.AssetUSDC), 400), qt.IsNil)
	c.Assert(l[External(alice, types.AssetUSDC)], qt.Equals, uint64(600))
	c.Assert(l[Vault(types.AssetUSDC)], qt.Equals, uint64(400))

	err := Transfer(l, Vault(types.AssetUSDC), Reserve(types.AssetUSDC), 401)
	c.Assert(err, qt.ErrorIs, ErrInsufficientFunds)
	c.Assert(l[Vault(types.AssetUSDC)], qt.Equals, uint64(400))

	err = Transfer(l, Vault(types.AssetUSDC), Reserve(types.AssetTSLA), 1)
	c.Assert(err, qt.ErrorMatches, "asset mismatch.*")

	c.Assert(Transfer(l, Vault(types.AssetUSDC), Reserve(types.AssetUSDC), 0), qt.IsNil)
}

func TestAccountKey(t *testing.T) {
	c := qt.New(t)
	alice := common.HexToAddress("0x01")

	c.Assert(External(alice, types.AssetSPY).Key(), qt.HasLen, 22)
	c.Assert(Vault(types.AssetSPY).Key(), qt.Not(qt.DeepEquals), Reserve(types.AssetSPY).Key())
	c.Assert(Vault(types.AssetSPY).String(), qt.Equals, "vault:SPY")
}
