package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/api"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/state"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// Info returns the deployment description.
func (c *HTTPclient) Info() (*api.InfoResponse, error) {
	res := &api.InfoResponse{}
	return res, c.get(res, nil, api.InfoEndpoint)
}

// Prices returns the current price vector.
func (c *HTTPclient) Prices() (*api.PricesResponse, error) {
	res := &api.PricesResponse{}
	return res, c.get(res, nil, api.PricesEndpoint)
}

// SubmitPrices posts a price update signed by the oracle key.
func (c *HTTPclient) SubmitPrices(u *oracle.PriceUpdate) error {
	return c.call(HTTPPOST, u, nil, nil, api.PricesEndpoint)
}

// CreateUser registers the signer with its encryption key and encrypted
// zero balances.
func (c *HTTPclient) CreateUser(pubKey types.PublicKey, zeros [types.NumAssets]types.EncryptedBalance) error {
	return c.post(api.ActionCreateUser, &api.CreateUserRequest{PubKey: pubKey, Balances: zeros}, nil, api.UsersEndpoint)
}

// User returns the encrypted ledger of a user.
func (c *HTTPclient) User(addr common.Address) (*types.UserLedger, error) {
	res := &types.UserLedger{}
	return res, c.get(res, nil, "users", addr.Hex())
}

// Wallet returns the plaintext token balances of a wallet.
func (c *HTTPclient) Wallet(addr common.Address) (*api.WalletResponse, error) {
	res := &api.WalletResponse{}
	return res, c.get(res, nil, "users", addr.Hex(), "wallet")
}

// Faucet mints test tokens into the signer wallet.
func (c *HTTPclient) Faucet(asset types.AssetID, amount uint64) error {
	return c.post(api.ActionFaucet, &api.FaucetRequest{Asset: asset, Amount: amount}, nil, api.FaucetEndpoint)
}

// Deposit moves amount tokens into the vault, crediting enc.
func (c *HTTPclient) Deposit(asset types.AssetID, amount uint64, enc types.EncryptedBalance) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionDeposit, &api.BalanceRequest{Asset: asset, Amount: amount, Encrypted: enc}, res, api.DepositsEndpoint)
	return res.ID, err
}

// Withdraw queues a withdrawal of amount tokens.
func (c *HTTPclient) Withdraw(asset types.AssetID, amount uint64, enc types.EncryptedBalance) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionWithdraw, &api.BalanceRequest{Asset: asset, Amount: amount, Encrypted: enc}, res, api.WithdrawalsEndpoint)
	return res.ID, err
}

// Transfer queues an internal transfer of an encrypted amount.
func (c *HTTPclient) Transfer(recipient common.Address, asset types.AssetID, enc types.EncryptedBalance) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionTransfer, &api.TransferRequest{Recipient: recipient, Asset: asset, Encrypted: enc}, res, api.TransfersEndpoint)
	return res.ID, err
}

// PlaceOrder queues an encrypted order.
func (c *HTTPclient) PlaceOrder(order sequencer.OrderInput) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionPlaceOrder, &api.PlaceOrderRequest{Order: order}, res, api.OrdersEndpoint)
	return res.ID, err
}

// SettleOrder queues the settlement of the signer's resting order.
func (c *HTTPclient) SettleOrder(pair types.PairID, dir types.Direction) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionSettleOrder, &api.SettleOrderRequest{PairID: pair, Direction: dir}, res, api.SettlementsEndpoint)
	return res.ID, err
}

// Computation returns the status of a computation.
func (c *HTTPclient) Computation(id uuid.UUID) (*storage.ComputationStatus, error) {
	res := &storage.ComputationStatus{}
	return res, c.get(res, nil, "computations", id.String())
}

// WaitComputation polls the status of a computation until it leaves the
// queue or ctx is done.
func (c *HTTPclient) WaitComputation(ctx context.Context, id uuid.UUID) (*storage.ComputationStatus, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := c.Computation(id)
		if err != nil {
			return nil, err
		}
		if st.State != storage.ComputationQueued {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("computation %s still queued: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Batch returns the accumulator of the current batch.
func (c *HTTPclient) Batch() (*types.BatchAccumulator, error) {
	res := &types.BatchAccumulator{}
	return res, c.get(res, nil, api.BatchEndpoint)
}

// BatchLog returns the log of an executed batch.
func (c *HTTPclient) BatchLog(batchID uint64) (*types.BatchLog, error) {
	res := &types.BatchLog{}
	return res, c.get(res, nil, "batches", strconv.FormatUint(batchID, 10))
}

// BatchProof returns the inclusion proof of a batch commitment.
func (c *HTTPclient) BatchProof(batchID uint64) (*state.Proof, error) {
	res := &state.Proof{}
	return res, c.get(res, nil, "batches", strconv.FormatUint(batchID, 10), "proof")
}

// ResultsRoot returns the root of the batch commitment tree.
func (c *HTTPclient) ResultsRoot() (types.HexBytes, error) {
	res := &api.RootResponse{}
	if err := c.get(res, nil, api.ResultsRootEndpoint); err != nil {
		return nil, err
	}
	return res.Root, nil
}

// Events returns up to limit events after the given sequence number.
func (c *HTTPclient) Events(after uint64, limit int) ([]events.Event, uint64, error) {
	res := &api.EventsResponse{}
	params := []string{"after", strconv.FormatUint(after, 10)}
	if limit > 0 {
		params = append(params, "limit", strconv.Itoa(limit))
	}
	if err := c.get(res, params, api.EventsEndpoint); err != nil {
		return nil, 0, err
	}
	return res.Events, res.Last, nil
}

// Custody returns the vault and reserve balances.
func (c *HTTPclient) Custody() (*api.CustodyResponse, error) {
	res := &api.CustodyResponse{}
	return res, c.get(res, nil, api.CustodyEndpoint)
}

// SetPaused toggles the paused flag. The signer must be the authority.
func (c *HTTPclient) SetPaused(paused bool) error {
	return c.post(api.ActionPause, &api.PauseRequest{Paused: paused}, nil, api.PauseEndpoint)
}

// AddLiquidity moves tokens from the authority wallet into a reserve.
func (c *HTTPclient) AddLiquidity(asset types.AssetID, amount uint64) error {
	return c.post(api.ActionLiquidity, &api.LiquidityRequest{Asset: asset, Amount: amount}, nil, api.LiquidityEndpoint)
}

// RemoveLiquidity moves tokens from a reserve back to the authority wallet.
func (c *HTTPclient) RemoveLiquidity(asset types.AssetID, amount uint64) error {
	return c.post(api.ActionLiquidity, &api.LiquidityRequest{Asset: asset, Amount: amount, Remove: true}, nil, api.LiquidityEndpoint)
}

// InitBatchAccumulator creates the accumulator of the first batch.
func (c *HTTPclient) InitBatchAccumulator() error {
	return c.post(api.ActionInitAccumulator, &api.AdminRequest{}, nil, api.InitAccumulatorEndpoint)
}

// InitBatchState queues the seeding of the current batch.
func (c *HTTPclient) InitBatchState() (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionInitBatch, &api.AdminRequest{}, res, api.InitBatchEndpoint)
	return res.ID, err
}

// ExecuteBatch queues the reveal of a ready batch.
func (c *HTTPclient) ExecuteBatch(batchID uint64) (uuid.UUID, error) {
	res := &api.ComputationResponse{}
	err := c.post(api.ActionExecuteBatch, &api.BatchRequest{BatchID: batchID}, res, api.ExecuteBatchEndpoint)
	return res.ID, err
}

// ExecuteSwaps rebalances the vaults of an executed batch.
func (c *HTTPclient) ExecuteSwaps(batchID uint64) error {
	return c.post(api.ActionExecuteSwaps, &api.BatchRequest{BatchID: batchID}, nil, api.ExecuteSwapsEndpoint)
}

// ClearPending releases the in-flight slot of a user.
func (c *HTTPclient) ClearPending(user common.Address) error {
	return c.post(api.ActionClearPending, &api.ClearPendingRequest{User: user}, nil, api.ClearPendingEndpoint)
}
