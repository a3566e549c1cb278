package sequencer

import (
	"context"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var authority = common.HexToAddress("0xa000000000000000000000000000000000000001")

type testEnv struct {
	c       *qt.C
	ctx     context.Context
	seq     *Sequencer
	stg     *storage.Storage
	cluster *mpc.Cluster
}

type testUser struct {
	addr common.Address
	keys *mpc.User
}

// newTestEnv returns an initialized pool with a seeded first batch. The
// trigger count is the one of the reference deployment unless given.
func newTestEnv(t *testing.T, trigger uint8, opts ...func(*Options)) *testEnv {
	c := qt.New(t)
	cluster, err := mpc.NewCluster()
	c.Assert(err, qt.IsNil)
	return newTestEnvWithCluster(t, cluster, cluster, trigger, opts...)
}

func newTestEnvWithCluster(t *testing.T, cluster *mpc.Cluster, runner Cluster, trigger uint8, opts ...func(*Options)) *testEnv {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	o := DefaultOptions()
	o.FaucetCap = math.MaxUint64 / 2
	for _, f := range opts {
		f(&o)
	}
	seq, err := New(stg, runner, oracle.NewStatic(types.ReferencePrices), nil, o)
	c.Assert(err, qt.IsNil)

	env := &testEnv{c: c, ctx: context.Background(), seq: seq, stg: stg, cluster: cluster}
	c.Assert(seq.Initialize(authority, InitParams{ExecutionTriggerCount: trigger}), qt.IsNil)
	c.Assert(seq.InitBatchAccumulator(authority), qt.IsNil)
	_, err = seq.InitBatchState(authority)
	c.Assert(err, qt.IsNil)
	env.drain()
	return env
}

func (e *testEnv) drain() {
	e.c.Assert(e.seq.Drain(e.ctx), qt.IsNil)
}

func (e *testEnv) newUser(id byte) *testUser {
	keys, err := mpc.NewUser(e.cluster.PublicKey())
	e.c.Assert(err, qt.IsNil)
	zeros, err := keys.EncryptZeros()
	e.c.Assert(err, qt.IsNil)
	u := &testUser{addr: common.BytesToAddress([]byte{0xee, id}), keys: keys}
	e.c.Assert(e.seq.CreateUserAccount(u.addr, keys.PublicKey(), zeros), qt.IsNil)
	return u
}

func (e *testEnv) encrypt(u *testUser, v uint64) types.EncryptedBalance {
	ct, nonce, err := u.keys.EncryptValue(v)
	e.c.Assert(err, qt.IsNil)
	return types.EncryptedBalance{Ciphertext: ct, Nonce: nonce}
}

// mint credits plaintext tokens to a custody account.
func (e *testEnv) mint(acct custody.Account, amount uint64) {
	tx := e.stg.NewTx()
	e.c.Assert(custody.Mint(tx, acct, amount), qt.IsNil)
	e.c.Assert(tx.Commit(), qt.IsNil)
}

func (e *testEnv) deposit(u *testUser, asset types.AssetID, amount uint64) {
	e.c.Assert(e.seq.Faucet(u.addr, asset, amount), qt.IsNil)
	id, err := e.seq.AddBalance(u.addr, asset, amount, e.encrypt(u, amount))
	e.c.Assert(err, qt.IsNil)
	e.drain()
	e.assertDone(id)
}

func (e *testEnv) placeOrder(u *testUser, pair types.PairID, dir types.Direction, amount uint64) uuid.UUID {
	cts, nonce, err := u.keys.EncryptOrder(pair, dir, amount)
	e.c.Assert(err, qt.IsNil)
	source, err := types.SourceAsset(pair, dir)
	e.c.Assert(err, qt.IsNil)
	id, err := e.seq.PlaceOrder(u.addr, OrderInput{
		PairID:      cts[0],
		Direction:   cts[1],
		Amount:      cts[2],
		Nonce:       nonce,
		SourceAsset: source,
	})
	e.c.Assert(err, qt.IsNil)
	return id
}

func (e *testEnv) ledger(u *testUser) *types.UserLedger {
	l, err := e.stg.User(u.addr)
	e.c.Assert(err, qt.IsNil)
	return l
}

func (e *testEnv) balance(u *testUser, asset types.AssetID) uint64 {
	v, err := u.keys.DecryptBalance(e.ledger(u).Balance(asset))
	e.c.Assert(err, qt.IsNil)
	return v
}

func (e *testEnv) tokens(acct custody.Account) uint64 {
	v, err := e.stg.TokenBalance(acct)
	e.c.Assert(err, qt.IsNil)
	return v
}

func (e *testEnv) accumulator() *types.BatchAccumulator {
	acc, err := e.stg.Accumulator()
	e.c.Assert(err, qt.IsNil)
	return acc
}

func (e *testEnv) status(id uuid.UUID) *storage.ComputationStatus {
	st, err := e.stg.ComputationStatus(id)
	e.c.Assert(err, qt.IsNil)
	return st
}

func (e *testEnv) assertDone(id uuid.UUID) {
	st := e.status(id)
	e.c.Assert(st.State, qt.Equals, storage.ComputationDone, qt.Commentf("error: %s", st.Error))
}

func (e *testEnv) assertFailed(id uuid.UUID, want error) {
	st := e.status(id)
	e.c.Assert(st.State, qt.Equals, storage.ComputationFailed)
	e.c.Assert(st.Error, qt.Contains, want.Error())
}

func (e *testEnv) events(kind events.Kind) []events.Event {
	all, err := e.stg.Events(0, 0)
	e.c.Assert(err, qt.IsNil)
	var res []events.Event
	for _, ev := range all {
		if ev.Kind == kind {
			res = append(res, ev)
		}
	}
	return res
}

// tamperingCluster flips a bit of every encrypted output after it was
// signed.
type tamperingCluster struct {
	*mpc.Cluster
}

func (t *tamperingCluster) Compute(ctx context.Context, comp *mpc.Computation) (*mpc.Output, error) {
	out, err := t.Cluster.Compute(ctx, comp)
	if err != nil {
		return nil, err
	}
	if comp.Circuit != mpc.CircuitInitBatchState && len(out.Encrypted) > 0 {
		out.Encrypted[0].Nonce[0] ^= 1
	}
	return out, nil
}
