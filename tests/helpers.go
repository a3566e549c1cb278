// Package tests runs a complete node (sequencer workers, API server and batch
// executor) and drives it through the HTTP client the way a wallet would.
package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/api/client"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/service"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"github.com/vocdoni/omnibatch/util"
	"go.vocdoni.io/dvote/db/metadb"
)

// Node is a running node and a client connected to it.
type Node struct {
	c     *qt.C
	ctx   context.Context
	Seq   *sequencer.Sequencer
	Cli   *client.HTTPclient
	Admin *Account
}

// Account is a registered user: a client signing as the user and the keys
// its balances are encrypted with.
type Account struct {
	Cli  *client.HTTPclient
	Keys *mpc.User
}

// NewTestSigner creates and initializes a new ethereum signer for testing.
func NewTestSigner() (*ethereum.SignKeys, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	return signer, nil
}

// NewTestNode starts a node with the given execution trigger. The authority
// also acts as operator and is registered as a user.
func NewTestNode(t *testing.T, trigger uint8) *Node {
	c := qt.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	authority, err := NewTestSigner()
	c.Assert(err, qt.IsNil)
	clusterKeys, err := NewTestSigner()
	c.Assert(err, qt.IsNil)
	cluster, err := mpc.NewClusterFromSeed(clusterKeys, util.RandomBytes(32))
	c.Assert(err, qt.IsNil)

	opts := sequencer.DefaultOptions()
	opts.PollInterval = 10 * time.Millisecond
	seqSrv, err := service.NewSequencer(storage.New(metadb.NewTest(t)), cluster,
		oracle.NewStatic(types.ReferencePrices), opts)
	c.Assert(err, qt.IsNil)
	seq := seqSrv.Sequencer()
	c.Assert(seq.Initialize(authority.Address(), sequencer.InitParams{ExecutionTriggerCount: trigger}), qt.IsNil)
	c.Assert(seqSrv.Start(ctx), qt.IsNil)
	t.Cleanup(seqSrv.Stop)

	port := util.RandomInt(40000, 60000)
	apiSrv := service.NewAPI(seq, nil, "127.0.0.1", port)
	c.Assert(apiSrv.Start(ctx), qt.IsNil)
	t.Cleanup(apiSrv.Stop)
	// Wait for the HTTP server to start
	time.Sleep(200 * time.Millisecond)

	executor := service.NewBatchExecutor(seq, authority.Address(), 50*time.Millisecond)
	c.Assert(executor.Start(ctx), qt.IsNil)
	t.Cleanup(executor.Stop)

	cli, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
	c.Assert(err, qt.IsNil)
	n := &Node{c: c, ctx: ctx, Seq: seq, Cli: cli}
	n.Admin = n.register(authority)
	return n
}

// NewAccount registers a user with fresh keys.
func (n *Node) NewAccount() *Account {
	signer, err := NewTestSigner()
	n.c.Assert(err, qt.IsNil)
	return n.register(signer)
}

func (n *Node) register(signer *ethereum.SignKeys) *Account {
	info, err := n.Cli.Info()
	n.c.Assert(err, qt.IsNil)
	keys, err := mpc.NewUser(info.ClusterPubKey)
	n.c.Assert(err, qt.IsNil)
	zeros, err := keys.EncryptZeros()
	n.c.Assert(err, qt.IsNil)
	a := &Account{Cli: n.Cli.WithSigner(signer), Keys: keys}
	n.c.Assert(a.Cli.CreateUser(keys.PublicKey(), zeros), qt.IsNil)
	return a
}

// Address returns the address of the account.
func (a *Account) Address() common.Address {
	return a.Cli.Signer().Address()
}

// WaitDone waits for a computation and asserts it succeeded.
func (n *Node) WaitDone(id uuid.UUID) *storage.ComputationStatus {
	st, err := n.Cli.WaitComputation(n.ctx, id)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(st.State, qt.Equals, storage.ComputationDone, qt.Commentf("error: %s", st.Error))
	return st
}

// WaitFor polls cond until it holds.
func (n *Node) WaitFor(what string, cond func() bool) {
	for !cond() {
		select {
		case <-n.ctx.Done():
			n.c.Fatalf("timeout waiting for %s", what)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Encrypt encrypts v for the account.
func (n *Node) Encrypt(a *Account, v uint64) types.EncryptedBalance {
	ct, nonce, err := a.Keys.EncryptValue(v)
	n.c.Assert(err, qt.IsNil)
	return types.EncryptedBalance{Ciphertext: ct, Nonce: nonce}
}

// Deposit mints amount tokens with the faucet and deposits them.
func (n *Node) Deposit(a *Account, asset types.AssetID, amount uint64) {
	n.c.Assert(a.Cli.Faucet(asset, amount), qt.IsNil)
	id, err := a.Cli.Deposit(asset, amount, n.Encrypt(a, amount))
	n.c.Assert(err, qt.IsNil)
	n.WaitDone(id)
}

// Balance decrypts the confidential balance of an account.
func (n *Node) Balance(a *Account, asset types.AssetID) uint64 {
	l, err := n.Cli.User(a.Address())
	n.c.Assert(err, qt.IsNil)
	v, err := a.Keys.DecryptBalance(l.Balance(asset))
	n.c.Assert(err, qt.IsNil)
	return v
}

// PlaceOrder encrypts and places an order, returning its computation.
func (n *Node) PlaceOrder(a *Account, pair types.PairID, dir types.Direction, amount uint64) uuid.UUID {
	cts, nonce, err := a.Keys.EncryptOrder(pair, dir, amount)
	n.c.Assert(err, qt.IsNil)
	source := pair.Pair().Base
	if dir == types.BToA {
		source = pair.Pair().Quote
	}
	id, err := a.Cli.PlaceOrder(sequencer.OrderInput{
		PairID: cts[0], Direction: cts[1], Amount: cts[2], Nonce: nonce, SourceAsset: source,
	})
	n.c.Assert(err, qt.IsNil)
	return id
}
