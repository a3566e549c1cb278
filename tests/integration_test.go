package tests

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/state"
	"github.com/vocdoni/omnibatch/types"
)

func init() {
	log.Init(log.LogLevelDebug, "stdout", nil)
}

// A TSLA seller and a TSLA buyer trade through one batch next to a SPY
// seller. The TSLA seller side is larger than the buyer side, so the reserve
// absorbs both residuals and pays out USDC.
func TestIntegration(t *testing.T) {
	c := qt.New(t)
	n := NewTestNode(t, 2)

	const (
		liquidity = 1_000_000_000
		sold      = 2_000_000   // 2 TSLA
		paid      = 250_000_000 // 250 USDC
		spySold   = 1_000_000   // 1 SPY
	)
	seller, buyer, spySeller := n.NewAccount(), n.NewAccount(), n.NewAccount()

	c.Run("fund reserve", func(c *qt.C) {
		c.Assert(n.Admin.Cli.Faucet(types.AssetUSDC, liquidity), qt.IsNil)
		c.Assert(n.Admin.Cli.AddLiquidity(types.AssetUSDC, liquidity), qt.IsNil)
		custody, err := n.Cli.Custody()
		c.Assert(err, qt.IsNil)
		c.Assert(custody.Reserves[types.AssetUSDC], qt.Equals, uint64(liquidity))
	})

	c.Run("deposit", func(c *qt.C) {
		n.Deposit(seller, types.AssetTSLA, sold)
		n.Deposit(buyer, types.AssetUSDC, paid)
		n.Deposit(spySeller, types.AssetSPY, spySold)
		c.Assert(n.Balance(seller, types.AssetTSLA), qt.Equals, uint64(sold))
		c.Assert(n.Balance(buyer, types.AssetUSDC), qt.Equals, uint64(paid))
	})

	var batchID uint64
	c.Run("place orders", func(c *qt.C) {
		n.WaitFor("batch seeded", func() bool {
			acc, err := n.Cli.Batch()
			return err == nil && acc.Seeded
		})
		acc, err := n.Cli.Batch()
		c.Assert(err, qt.IsNil)
		batchID = acc.BatchID

		n.WaitDone(n.PlaceOrder(seller, 0, types.AToB, sold))
		n.WaitDone(n.PlaceOrder(buyer, 0, types.BToA, paid))
		// a batch needs volume on two pairs
		n.WaitDone(n.PlaceOrder(spySeller, 1, types.AToB, spySold))
		// the order amount is debited at placement
		c.Assert(n.Balance(seller, types.AssetTSLA), qt.Equals, uint64(0))
		c.Assert(n.Balance(buyer, types.AssetUSDC), qt.Equals, uint64(0))
	})

	var bl *types.BatchLog
	c.Run("execute batch", func(c *qt.C) {
		n.WaitFor("swaps executed", func() bool {
			var err error
			bl, err = n.Cli.BatchLog(batchID)
			return err == nil && bl.SwapsExecuted
		})
		res := bl.Results[0]
		c.Assert(res.TotalAIn, qt.Equals, uint64(sold))
		c.Assert(res.TotalBIn, qt.Equals, uint64(paid))
		// 1 TSLA is matched internally and the other goes to the reserve,
		// credited to the USDC side as 0.99 units
		c.Assert(res.FinalPoolA, qt.Equals, uint64(1_000_000))
		c.Assert(res.FinalPoolB, qt.Equals, uint64(250_990_000))
		// the whole SPY side goes to the reserve
		res = bl.Results[1]
		c.Assert(res.FinalPoolA, qt.Equals, uint64(0))
		c.Assert(res.FinalPoolB, qt.Equals, uint64(990_000))

		custody, err := n.Cli.Custody()
		c.Assert(err, qt.IsNil)
		c.Assert(custody.Reserves[types.AssetTSLA], qt.Equals, uint64(1_000_000))
		c.Assert(custody.Reserves[types.AssetSPY], qt.Equals, uint64(spySold))
		c.Assert(custody.Reserves[types.AssetUSDC], qt.Equals, uint64(liquidity-990_000-990_000))
		c.Assert(custody.Vaults[types.AssetUSDC], qt.Equals, uint64(paid+990_000+990_000))
		c.Assert(custody.Vaults[types.AssetSPY], qt.Equals, uint64(0))

		proof, err := n.Cli.BatchProof(batchID)
		c.Assert(err, qt.IsNil)
		ok, err := state.CheckProof(proof)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
	})

	c.Run("settle", func(c *qt.C) {
		id, err := seller.Cli.SettleOrder(0, types.AToB)
		c.Assert(err, qt.IsNil)
		n.WaitDone(id)
		id, err = buyer.Cli.SettleOrder(0, types.BToA)
		c.Assert(err, qt.IsNil)
		n.WaitDone(id)
		id, err = spySeller.Cli.SettleOrder(1, types.AToB)
		c.Assert(err, qt.IsNil)
		n.WaitDone(id)

		c.Assert(n.Balance(seller, types.AssetUSDC), qt.Equals, uint64(250_990_000))
		c.Assert(n.Balance(spySeller, types.AssetUSDC), qt.Equals, uint64(990_000))
		c.Assert(n.Balance(buyer, types.AssetTSLA), qt.Equals, uint64(1_000_000))
	})

	c.Run("withdraw", func(c *qt.C) {
		id, err := seller.Cli.Withdraw(types.AssetUSDC, 250_990_000, n.Encrypt(seller, 250_990_000))
		c.Assert(err, qt.IsNil)
		n.WaitDone(id)
		wallet, err := n.Cli.Wallet(seller.Address())
		c.Assert(err, qt.IsNil)
		c.Assert(wallet.Balances[types.AssetUSDC], qt.Equals, uint64(250_990_000))
		c.Assert(n.Balance(seller, types.AssetUSDC), qt.Equals, uint64(0))
	})

	c.Run("events", func(c *qt.C) {
		evs, _, err := n.Cli.Events(0, 0)
		c.Assert(err, qt.IsNil)
		kinds := map[events.Kind]int{}
		for _, ev := range evs {
			kinds[ev.Kind]++
		}
		c.Assert(kinds[events.OrderPlaced], qt.Equals, 3)
		c.Assert(kinds[events.BatchExecuted], qt.Equals, 1)
		c.Assert(kinds[events.SwapsExecuted], qt.Equals, 1)
		c.Assert(kinds[events.Settlement], qt.Equals, 3)
		c.Assert(kinds[events.Withdraw], qt.Equals, 1)
	})
}
