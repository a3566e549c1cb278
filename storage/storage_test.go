package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestUserLedger(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	owner := common.HexToAddress("0xa11ce")
	_, err := stg.User(owner)
	c.Assert(err, qt.Equals, ErrNotFound)

	var zeros [types.NumAssets]types.EncryptedBalance
	for i := range zeros {
		zeros[i].Ciphertext[0] = byte(i + 1)
		zeros[i].Nonce = types.NonceFromUint64(uint64(i + 3))
	}
	u := types.NewUserLedger(owner, types.PublicKey{1}, zeros)
	u.SetPending(types.Pending{Kind: types.AwaitingWithdraw, Asset: types.AssetSPY, Amount: 10})
	u.Order = &types.OrderTicket{BatchID: 4, Nonce: types.NonceFromUint64(9)}

	tx := stg.NewTx()
	c.Assert(tx.SetUser(u), qt.IsNil)
	// the transition reads its own writes
	got, err := tx.User(owner)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Pending.Amount, qt.Equals, uint64(10))
	// nothing reached the database yet
	_, err = stg.User(owner)
	c.Assert(err, qt.Equals, ErrNotFound)
	c.Assert(tx.Commit(), qt.IsNil)

	got, err = stg.User(owner)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, u)

	users, err := stg.ListUsers()
	c.Assert(err, qt.IsNil)
	c.Assert(users, qt.DeepEquals, []common.Address{owner})
}

func TestDiscardedTxLeavesNoTrace(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	tx := stg.NewTx()
	c.Assert(tx.SetPool(&types.Pool{ExecutionFeeBps: 10}), qt.IsNil)
	tx.Emit(events.Event{Kind: events.Deposit})
	tx.Discard()

	_, err := stg.Pool()
	c.Assert(err, qt.Equals, ErrNotFound)
	evs, err := stg.Events(0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(evs, qt.HasLen, 0)
	c.Assert(tx.Commit(), qt.IsNotNil)
}

func TestAccumulatorAndLogs(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	acc := types.NewBatchAccumulator()
	acc.SeedEncryptedZeros([types.BatchTotals]types.Ciphertext{}, types.NonceFromUint64(1))
	tx := stg.NewTx()
	c.Assert(tx.SetAccumulator(acc), qt.IsNil)
	for _, id := range []uint64{2, 1, 300} {
		c.Assert(tx.SetBatchLog(&types.BatchLog{BatchID: id, OrderCount: 8}), qt.IsNil)
	}
	c.Assert(tx.Commit(), qt.IsNil)

	got, err := stg.Accumulator()
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, acc)

	ids, err := stg.ListBatchLogs()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.DeepEquals, []uint64{1, 2, 300})

	l, err := stg.BatchLog(300)
	c.Assert(err, qt.IsNil)
	c.Assert(l.OrderCount, qt.Equals, uint8(8))
	_, err = stg.BatchLog(5)
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestTokenBalances(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	alice := common.HexToAddress("0xa11ce")

	tx := stg.NewTx()
	c.Assert(custody.Mint(tx, custody.External(alice, types.AssetUSDC), 1_000), qt.IsNil)
	c.Assert(custody.Transfer(tx, custody.External(alice, types.AssetUSDC), custody.Vault(types.AssetUSDC), 600), qt.IsNil)
	c.Assert(custody.Transfer(tx, custody.Vault(types.AssetUSDC), custody.Reserve(types.AssetUSDC), 100), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)

	for acct, want := range map[custody.Account]uint64{
		custody.External(alice, types.AssetUSDC): 400,
		custody.Vault(types.AssetUSDC):           500,
		custody.Reserve(types.AssetUSDC):         100,
		custody.Vault(types.AssetTSLA):           0,
	} {
		got, err := stg.TokenBalance(acct)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, want, qt.Commentf("%s", acct))
	}
}

func TestComputationQueue(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, _, err := stg.NextComputation()
	c.Assert(err, qt.Equals, ErrNoMoreElements)

	first := mpc.NewComputation(mpc.CircuitInitBatchState)
	second := mpc.NewComputation(mpc.CircuitRevealBatch)
	tx := stg.NewTx()
	_, err = tx.PushComputation(&QueuedComputation{Computation: first})
	c.Assert(err, qt.IsNil)
	_, err = tx.PushComputation(&QueuedComputation{Computation: second, BatchID: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	c.Assert(stg.CountComputations(), qt.Equals, 2)

	st, err := stg.ComputationStatus(first.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(st.State, qt.Equals, ComputationQueued)

	// FIFO with reservations
	qc1, key1, err := stg.NextComputation()
	c.Assert(err, qt.IsNil)
	c.Assert(qc1.Computation.ID, qt.Equals, first.ID)
	qc2, key2, err := stg.NextComputation()
	c.Assert(err, qt.IsNil)
	c.Assert(qc2.Computation.ID, qt.Equals, second.ID)
	_, _, err = stg.NextComputation()
	c.Assert(err, qt.Equals, ErrNoMoreElements)

	// released computations come back
	c.Assert(stg.ReleaseComputation(key2), qt.IsNil)
	again, _, err := stg.NextComputation()
	c.Assert(err, qt.IsNil)
	c.Assert(again.Computation.ID, qt.Equals, second.ID)

	// retrying rewrites in place and releases the reservation
	tx = stg.NewTx()
	qc1.Attempts++
	c.Assert(tx.UpdateComputation(key1, qc1), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	retried, _, err := stg.NextComputation()
	c.Assert(err, qt.IsNil)
	c.Assert(retried.Attempts, qt.Equals, uint32(1))

	// finishing removes it
	tx = stg.NewTx()
	tx.RemoveComputation(key1)
	tx.RemoveComputation(key2)
	c.Assert(tx.SetComputationStatus(&ComputationStatus{ID: first.ID, State: ComputationDone}), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	c.Assert(stg.CountComputations(), qt.Equals, 0)
	st, err = stg.ComputationStatus(first.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(st.State, qt.Equals, ComputationDone)
}

func TestReservationsReleasedOnRestart(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	stg := New(database)

	tx := stg.NewTx()
	_, err := tx.PushComputation(&QueuedComputation{Computation: mpc.NewComputation(mpc.CircuitInitBatchState)})
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	_, _, err = stg.NextComputation()
	c.Assert(err, qt.IsNil)

	restarted := New(database)
	_, _, err = restarted.NextComputation()
	c.Assert(err, qt.IsNil)
}

func TestEventLog(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	tx := stg.NewTx()
	tx.Emit(events.Event{Kind: events.Deposit, Amount: 1})
	tx.Emit(events.Event{Kind: events.Withdraw, Amount: 2})
	c.Assert(tx.Commit(), qt.IsNil)
	c.Assert(tx.Events()[1].Seq, qt.Equals, uint64(2))

	tx = stg.NewTx()
	tx.Emit(events.Event{Kind: events.BatchReady, BatchID: 1})
	c.Assert(tx.Commit(), qt.IsNil)

	evs, err := stg.Events(0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(evs, qt.HasLen, 3)
	c.Assert(evs[2].Kind, qt.Equals, events.BatchReady)
	c.Assert(evs[2].Seq, qt.Equals, uint64(3))

	evs, err = stg.Events(1, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(evs, qt.HasLen, 1)
	c.Assert(evs[0].Kind, qt.Equals, events.Withdraw)
	c.Assert(stg.LastEventSeq(), qt.Equals, uint64(3))
}
