package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var operator = common.HexToAddress("0xa000000000000000000000000000000000000001")

// waitFor polls cond until it holds or ctx is done.
func waitFor(ctx context.Context, c *qt.C, what string, cond func() bool) {
	for !cond() {
		select {
		case <-ctx.Done():
			c.Fatalf("timeout waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBatchExecutor(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cluster, err := mpc.NewCluster()
	c.Assert(err, qt.IsNil)
	stg := storage.New(metadb.NewTest(t))
	opts := sequencer.DefaultOptions()
	opts.PollInterval = 10 * time.Millisecond
	ss, err := NewSequencer(stg, cluster, oracle.NewStatic(types.ReferencePrices), opts)
	c.Assert(err, qt.IsNil)
	seq := ss.Sequencer()
	c.Assert(seq.Initialize(operator, sequencer.InitParams{ExecutionTriggerCount: 2}), qt.IsNil)

	// fund the USDC reserve
	tx := stg.NewTx()
	c.Assert(custody.Mint(tx, custody.External(operator, types.AssetUSDC), 1_000_000_000_000), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	c.Assert(seq.AddLiquidity(operator, types.AssetUSDC, 1_000_000_000_000), qt.IsNil)

	ch, unsubscribe := seq.Bus().Subscribe(256)
	defer unsubscribe()

	c.Assert(ss.Start(ctx), qt.IsNil)
	defer ss.Stop()
	executor := NewBatchExecutor(seq, operator, 20*time.Millisecond)
	c.Assert(executor.Start(ctx), qt.IsNil)
	c.Assert(executor.Start(ctx), qt.ErrorMatches, "service already running")
	defer executor.Stop()

	seeded := func(batchID uint64) func() bool {
		return func() bool {
			acc, err := stg.Accumulator()
			return err == nil && acc.BatchID == batchID && acc.Seeded
		}
	}
	waitFor(ctx, c, "first batch seeded", seeded(1))

	// one order on TSLA/USDC and one on SPY/USDC
	orders := []struct {
		pair   types.PairID
		asset  types.AssetID
		amount uint64
	}{
		{0, types.AssetTSLA, 2_000_000},
		{1, types.AssetSPY, 1_000_000},
	}
	for i, o := range orders {
		keys, err := mpc.NewUser(cluster.PublicKey())
		c.Assert(err, qt.IsNil)
		zeros, err := keys.EncryptZeros()
		c.Assert(err, qt.IsNil)
		addr := common.BytesToAddress([]byte{0xee, byte(i + 1)})
		c.Assert(seq.CreateUserAccount(addr, keys.PublicKey(), zeros), qt.IsNil)
		c.Assert(seq.Faucet(addr, o.asset, o.amount), qt.IsNil)
		ct, nonce, err := keys.EncryptValue(o.amount)
		c.Assert(err, qt.IsNil)
		id, err := seq.AddBalance(addr, o.asset, o.amount, types.EncryptedBalance{Ciphertext: ct, Nonce: nonce})
		c.Assert(err, qt.IsNil)
		waitFor(ctx, c, "deposit", func() bool {
			st, err := stg.ComputationStatus(id)
			return err == nil && st.State == storage.ComputationDone
		})

		cts, nonce, err := keys.EncryptOrder(o.pair, types.AToB, o.amount)
		c.Assert(err, qt.IsNil)
		_, err = seq.PlaceOrder(addr, sequencer.OrderInput{
			PairID: cts[0], Direction: cts[1], Amount: cts[2], Nonce: nonce, SourceAsset: o.asset,
		})
		c.Assert(err, qt.IsNil)
	}

	// the executor reveals the batch, rebalances and seeds the next one
	var executed, swapped bool
	for !executed || !swapped {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case events.BatchExecuted:
				c.Assert(ev.BatchID, qt.Equals, uint64(1))
				executed = true
			case events.SwapsExecuted:
				c.Assert(ev.BatchID, qt.Equals, uint64(1))
				swapped = true
			}
		case <-ctx.Done():
			t.Fatal("batch was not executed")
		}
	}
	waitFor(ctx, c, "second batch seeded", seeded(2))

	bl, err := seq.BatchLog(1)
	c.Assert(err, qt.IsNil)
	c.Assert(bl.SwapsExecuted, qt.IsTrue)
	c.Assert(bl.OrderCount, qt.Equals, uint8(2))
	reserve, err := stg.TokenBalance(custody.Reserve(types.AssetTSLA))
	c.Assert(err, qt.IsNil)
	c.Assert(reserve, qt.Equals, uint64(2_000_000)-bl.Results[0].FinalPoolA)
}
