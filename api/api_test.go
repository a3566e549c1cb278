package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/api"
	"github.com/vocdoni/omnibatch/api/client"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/state"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"github.com/vocdoni/omnibatch/util"
	"go.vocdoni.io/dvote/db/metadb"
)

type testNode struct {
	c         *qt.C
	ctx       context.Context
	seq       *sequencer.Sequencer
	feed      *oracle.Signed
	oracleKey *ethereum.SignKeys
	cli       *client.HTTPclient
	admin     *client.HTTPclient
}

type testAccount struct {
	cli  *client.HTTPclient
	keys *mpc.User
}

func newSigner(c *qt.C) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	c.Assert(k.Generate(), qt.IsNil)
	return k
}

// newTestNode starts a sequencer with running workers behind an API server
// on a random port, and seeds the first batch through the admin endpoints.
func newTestNode(t *testing.T, trigger uint8) *testNode {
	c := qt.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	cluster, err := mpc.NewCluster()
	c.Assert(err, qt.IsNil)
	oracleKey := newSigner(c)
	feed := oracle.NewSigned(oracleKey.Address(), types.ReferencePrices)
	opts := sequencer.DefaultOptions()
	opts.PollInterval = 10 * time.Millisecond
	seq, err := sequencer.New(storage.New(metadb.NewTest(t)), cluster, feed, nil, opts)
	c.Assert(err, qt.IsNil)

	authority := newSigner(c)
	c.Assert(seq.Initialize(authority.Address(), sequencer.InitParams{ExecutionTriggerCount: trigger}), qt.IsNil)
	c.Assert(seq.Start(ctx), qt.IsNil)
	t.Cleanup(func() { c.Assert(seq.Stop(), qt.IsNil) })

	port := util.RandomInt(40000, 60000)
	srv, err := api.New(&api.APIConfig{Host: "127.0.0.1", Port: port, Sequencer: seq, PriceFeed: feed})
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { c.Assert(srv.Shutdown(context.Background()), qt.IsNil) })
	time.Sleep(200 * time.Millisecond)

	cli, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
	c.Assert(err, qt.IsNil)

	n := &testNode{
		c:         c,
		ctx:       ctx,
		seq:       seq,
		feed:      feed,
		oracleKey: oracleKey,
		cli:       cli,
		admin:     cli.WithSigner(authority),
	}
	c.Assert(n.admin.InitBatchAccumulator(), qt.IsNil)
	id, err := n.admin.InitBatchState()
	c.Assert(err, qt.IsNil)
	n.waitDone(id)
	return n
}

func (n *testNode) waitDone(id uuid.UUID) *storage.ComputationStatus {
	st, err := n.cli.WaitComputation(n.ctx, id)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(st.State, qt.Equals, storage.ComputationDone, qt.Commentf("error: %s", st.Error))
	return st
}

func (n *testNode) newAccount() *testAccount {
	info, err := n.cli.Info()
	n.c.Assert(err, qt.IsNil)
	keys, err := mpc.NewUser(info.ClusterPubKey)
	n.c.Assert(err, qt.IsNil)
	zeros, err := keys.EncryptZeros()
	n.c.Assert(err, qt.IsNil)
	a := &testAccount{cli: n.cli.WithSigner(newSigner(n.c)), keys: keys}
	n.c.Assert(a.cli.CreateUser(keys.PublicKey(), zeros), qt.IsNil)
	return a
}

func (n *testNode) encrypt(a *testAccount, v uint64) types.EncryptedBalance {
	ct, nonce, err := a.keys.EncryptValue(v)
	n.c.Assert(err, qt.IsNil)
	return types.EncryptedBalance{Ciphertext: ct, Nonce: nonce}
}

func (n *testNode) deposit(a *testAccount, asset types.AssetID, amount uint64) {
	n.c.Assert(a.cli.Faucet(asset, amount), qt.IsNil)
	id, err := a.cli.Deposit(asset, amount, n.encrypt(a, amount))
	n.c.Assert(err, qt.IsNil)
	n.waitDone(id)
}

func (n *testNode) balance(a *testAccount, asset types.AssetID) uint64 {
	l, err := n.cli.User(a.cli.Signer().Address())
	n.c.Assert(err, qt.IsNil)
	v, err := a.keys.DecryptBalance(l.Balance(asset))
	n.c.Assert(err, qt.IsNil)
	return v
}

func TestInfoAndPrices(t *testing.T) {
	n := newTestNode(t, 0)

	info, err := n.cli.Info()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(info.Pool.ExecutionTriggerCount, qt.Equals, uint8(types.BatchTriggerCount))
	n.c.Assert(info.ClusterAddress, qt.Equals, n.seq.Cluster().Address())
	n.c.Assert(info.NettingMode, qt.Equals, n.seq.Engine().Mode().String())
	n.c.Assert(info.Assets, qt.HasLen, types.NumAssets)
	n.c.Assert(info.Pairs, qt.HasLen, types.NumPairs)
	n.c.Assert(info.Pairs[3].Base, qt.Equals, types.AssetTSLA)
	n.c.Assert(info.Pairs[3].Quote, qt.Equals, types.AssetSPY)

	prices, err := n.cli.Prices()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(prices.Prices, qt.Equals, types.ReferencePrices)
	n.c.Assert(prices.Display["TSLA"], qt.Equals, "250.000000")

	updated := types.ReferencePrices
	updated[types.AssetTSLA] = 260_000_000
	u, err := oracle.SignUpdate(n.oracleKey, updated, time.Now())
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(n.cli.SubmitPrices(u), qt.IsNil)
	// the same update is stale the second time
	n.c.Assert(n.cli.SubmitPrices(u), qt.ErrorIs, api.ErrInvalidPriceUpdate)
	prices, err = n.cli.Prices()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(prices.Prices[types.AssetTSLA], qt.Equals, uint64(260_000_000))

	forged, err := oracle.SignUpdate(newSigner(n.c), types.ReferencePrices, time.Now().Add(time.Second))
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(n.cli.SubmitPrices(forged), qt.ErrorIs, api.ErrInvalidPriceUpdate)
}

func TestAccountFlow(t *testing.T) {
	n := newTestNode(t, 0)
	alice, bob := n.newAccount(), n.newAccount()

	zeros, err := alice.keys.EncryptZeros()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(alice.cli.CreateUser(alice.keys.PublicKey(), zeros), qt.ErrorIs, api.ErrUserExists)

	n.deposit(alice, types.AssetUSDC, 1_000_000)
	n.c.Assert(n.balance(alice, types.AssetUSDC), qt.Equals, uint64(1_000_000))
	wallet, err := n.cli.Wallet(alice.cli.Signer().Address())
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(wallet.Balances[types.AssetUSDC], qt.Equals, uint64(0))

	id, err := alice.cli.Transfer(bob.cli.Signer().Address(), types.AssetUSDC, n.encrypt(alice, 250_000))
	n.c.Assert(err, qt.IsNil)
	n.waitDone(id)
	n.c.Assert(n.balance(alice, types.AssetUSDC), qt.Equals, uint64(750_000))
	n.c.Assert(n.balance(bob, types.AssetUSDC), qt.Equals, uint64(250_000))

	id, err = bob.cli.Withdraw(types.AssetUSDC, 100_000, n.encrypt(bob, 100_000))
	n.c.Assert(err, qt.IsNil)
	n.waitDone(id)
	wallet, err = n.cli.Wallet(bob.cli.Signer().Address())
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(wallet.Balances[types.AssetUSDC], qt.Equals, uint64(100_000))

	// an insolvent withdrawal fails in the callback
	id, err = bob.cli.Withdraw(types.AssetUSDC, 1_000_000, n.encrypt(bob, 1_000_000))
	n.c.Assert(err, qt.IsNil)
	st, err := n.cli.WaitComputation(n.ctx, id)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(st.State, qt.Equals, storage.ComputationFailed)
	n.c.Assert(st.Error, qt.Contains, sequencer.ErrInsufficientBalance.Error())

	custody, err := n.cli.Custody()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(custody.Vaults[types.AssetUSDC], qt.Equals, uint64(900_000))

	evs, last, err := n.cli.Events(0, 0)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(evs, qt.Not(qt.HasLen), 0)
	n.c.Assert(evs[len(evs)-1].Seq, qt.Equals, last)
	page, _, err := n.cli.Events(0, 2)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(page, qt.HasLen, 2)
	n.c.Assert(page[1].Seq > page[0].Seq, qt.IsTrue)
}

func TestErrors(t *testing.T) {
	n := newTestNode(t, 0)
	alice := n.newAccount()

	_, err := n.cli.User(newSigner(n.c).Address())
	n.c.Assert(err, qt.ErrorIs, api.ErrUserNotFound)
	_, err = n.cli.Computation(uuid.New())
	n.c.Assert(err, qt.ErrorIs, api.ErrComputationNotFound)
	_, err = n.cli.BatchLog(1)
	n.c.Assert(err, qt.ErrorIs, api.ErrBatchLogNotFound)
	_, err = n.cli.BatchProof(1)
	n.c.Assert(err, qt.ErrorIs, api.ErrBatchLogNotFound)

	// no tokens in the wallet
	_, err = alice.cli.Deposit(types.AssetUSDC, 10, n.encrypt(alice, 10))
	n.c.Assert(err, qt.ErrorIs, api.ErrInsufficientTokens)
	_, err = alice.cli.Deposit(types.AssetID(9), 10, n.encrypt(alice, 10))
	n.c.Assert(err, qt.ErrorIs, api.ErrInvalidAssetID)

	// admin endpoints are gated on the authority
	n.c.Assert(alice.cli.SetPaused(true), qt.ErrorIs, api.ErrUnauthorized)
	_, err = alice.cli.ExecuteBatch(1)
	n.c.Assert(err, qt.ErrorIs, api.ErrUnauthorized)

	n.c.Assert(n.admin.SetPaused(true), qt.IsNil)
	n.c.Assert(alice.cli.Faucet(types.AssetUSDC, 10), qt.ErrorIs, api.ErrProtocolPaused)
	n.c.Assert(n.admin.SetPaused(false), qt.IsNil)
	n.c.Assert(alice.cli.Faucet(types.AssetUSDC, 10), qt.IsNil)

	// unsigned requests are rejected
	n.c.Assert(n.cli.Faucet(types.AssetUSDC, 10), qt.ErrorMatches, "client has no signer")
}

func TestSignedRequests(t *testing.T) {
	n := newTestNode(t, 0)
	alice := n.newAccount()

	req := &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionFaucet, req), qt.IsNil)
	_, status, err := n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(status, qt.Equals, http.StatusOK)
	// replay
	data, status, err := n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(status, qt.Equals, api.ErrStaleRequest.HTTPstatus, qt.Commentf("%s", data))

	// a signature for another endpoint
	req = &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionDeposit, req), qt.IsNil)
	data, status, err = n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(status, qt.Equals, http.StatusBadRequest)
	n.c.Assert(string(data), qt.Contains, fmt.Sprint(api.ErrInvalidSignature.Code))

	// a tampered amount recovers another signer, which has no account
	req = &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionFaucet, req), qt.IsNil)
	req.Amount = 500
	data, status, err = n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(status, qt.Equals, http.StatusNotFound)
	n.c.Assert(string(data), qt.Contains, fmt.Sprint(api.ErrUserNotFound.Code))

	// an old timestamp
	req = &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionFaucet, req), qt.IsNil)
	req.Timestamp -= int64(2 * api.MaxRequestSkew / time.Second)
	data, status, err = n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(string(data), qt.Contains, fmt.Sprint(api.ErrStaleRequest.Code))
	n.c.Assert(status, qt.Equals, http.StatusBadRequest)

	wallet, err := n.cli.Wallet(alice.cli.Signer().Address())
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(wallet.Balances[types.AssetUSDC], qt.Equals, uint64(5))
}

func TestIdenticalRequests(t *testing.T) {
	n := newTestNode(t, 0)
	alice := n.newAccount()

	// the same body signed twice in a row is two requests
	first := &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	second := &api.FaucetRequest{Asset: types.AssetUSDC, Amount: 5}
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionFaucet, first), qt.IsNil)
	n.c.Assert(api.SignRequest(alice.cli.Signer(), api.ActionFaucet, second), qt.IsNil)
	n.c.Assert(first.Nonce, qt.Not(qt.Equals), second.Nonce)
	n.c.Assert(first.Signature.String(), qt.Not(qt.Equals), second.Signature.String())
	for _, req := range []*api.FaucetRequest{first, second} {
		data, status, err := n.cli.Request(client.HTTPPOST, req, nil, api.FaucetEndpoint)
		n.c.Assert(err, qt.IsNil)
		n.c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%s", data))
	}

	wallet, err := n.cli.Wallet(alice.cli.Signer().Address())
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(wallet.Balances[types.AssetUSDC], qt.Equals, uint64(10))
}

// A batch over TSLA/USDC and SPY/USDC driven through the admin endpoints.
func TestBatchLifecycle(t *testing.T) {
	n := newTestNode(t, 2)
	seller, buyer := n.newAccount(), n.newAccount()
	n.deposit(seller, types.AssetTSLA, 2_000_000)
	n.deposit(buyer, types.AssetSPY, 1_000_000)

	place := func(a *testAccount, pair types.PairID, dir types.Direction, amount uint64, source types.AssetID) {
		cts, nonce, err := a.keys.EncryptOrder(pair, dir, amount)
		n.c.Assert(err, qt.IsNil)
		id, err := a.cli.PlaceOrder(sequencer.OrderInput{
			PairID: cts[0], Direction: cts[1], Amount: cts[2], Nonce: nonce, SourceAsset: source,
		})
		n.c.Assert(err, qt.IsNil)
		n.waitDone(id)
	}
	place(seller, 0, types.AToB, 2_000_000, types.AssetTSLA)
	place(buyer, 1, types.AToB, 1_000_000, types.AssetSPY)

	acc, err := n.cli.Batch()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(acc.Ready, qt.IsTrue)
	n.c.Assert(acc.OrderCount, qt.Equals, uint8(2))

	id, err := n.admin.ExecuteBatch(acc.BatchID)
	n.c.Assert(err, qt.IsNil)
	st := n.waitDone(id)
	n.c.Assert(st.Revealed[0], qt.Equals, uint64(2_000_000))

	bl, err := n.cli.BatchLog(acc.BatchID)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(bl.ActivePairs(), qt.Equals, 2)
	n.c.Assert(bl.Prices, qt.Equals, types.ReferencePrices)

	proof, err := n.cli.BatchProof(acc.BatchID)
	n.c.Assert(err, qt.IsNil)
	ok, err := state.CheckProof(proof)
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(ok, qt.IsTrue)
	root, err := n.cli.ResultsRoot()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert([]byte(root), qt.DeepEquals, []byte(proof.Root))

	id, err = seller.cli.SettleOrder(0, types.AToB)
	n.c.Assert(err, qt.IsNil)
	n.waitDone(id)
	n.c.Assert(n.balance(seller, types.AssetUSDC), qt.Equals, bl.Results[0].FinalPoolB)

	// the admin funds the reserves and rebalances
	n.c.Assert(n.seq.Faucet(n.admin.Signer().Address(), types.AssetUSDC, 1), qt.ErrorIs, sequencer.ErrUserNotFound)
	n.c.Assert(n.admin.AddLiquidity(types.AssetUSDC, 1), qt.ErrorIs, api.ErrInsufficientTokens)

	acc, err = n.cli.Batch()
	n.c.Assert(err, qt.IsNil)
	n.c.Assert(acc.BatchID, qt.Equals, uint64(2))
	n.c.Assert(acc.Seeded, qt.IsFalse)
	id, err = n.admin.InitBatchState()
	n.c.Assert(err, qt.IsNil)
	n.waitDone(id)
}
