package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/types"
)

// Auth is embedded in every request that acts on behalf of a wallet. The
// signature covers the JSON encoding of the whole request with an empty
// signature field. Action binds the signature to a single endpoint and Nonce
// tells apart identical requests signed within the same second.
type Auth struct {
	Action    string         `json:"action"`
	Timestamp int64          `json:"timestamp"`
	Nonce     uuid.UUID      `json:"nonce"`
	Signature types.HexBytes `json:"signature"`
}

func (a *Auth) auth() *Auth { return a }

// Signed actions, one per state changing endpoint.
const (
	ActionCreateUser      = "create_user"
	ActionFaucet          = "faucet"
	ActionDeposit         = "deposit"
	ActionWithdraw        = "withdraw"
	ActionTransfer        = "transfer"
	ActionPlaceOrder      = "place_order"
	ActionSettleOrder     = "settle_order"
	ActionPause           = "pause"
	ActionLiquidity       = "liquidity"
	ActionInitBatch       = "init_batch"
	ActionExecuteBatch    = "execute_batch"
	ActionExecuteSwaps    = "execute_swaps"
	ActionClearPending    = "clear_pending"
	ActionInitAccumulator = "init_accumulator"
)

// CreateUserRequest registers the x25519 key of a wallet together with the
// encrypted zero balance of every asset.
type CreateUserRequest struct {
	PubKey   types.PublicKey                         `json:"pubKey"`
	Balances [types.NumAssets]types.EncryptedBalance `json:"balances"`
	Auth
}

// FaucetRequest mints test tokens into the wallet of the signer.
type FaucetRequest struct {
	Asset  types.AssetID `json:"asset"`
	Amount uint64        `json:"amount"`
	Auth
}

// BalanceRequest is a deposit or a withdrawal: the plaintext amount moved
// in custody and the same amount encrypted for the cluster.
type BalanceRequest struct {
	Asset     types.AssetID          `json:"asset"`
	Amount    uint64                 `json:"amount"`
	Encrypted types.EncryptedBalance `json:"encrypted"`
	Auth
}

// TransferRequest moves an encrypted amount to another registered user.
type TransferRequest struct {
	Recipient common.Address         `json:"recipient"`
	Asset     types.AssetID          `json:"asset"`
	Encrypted types.EncryptedBalance `json:"encrypted"`
	Auth
}

// PlaceOrderRequest carries an encrypted order.
type PlaceOrderRequest struct {
	Order sequencer.OrderInput `json:"order"`
	Auth
}

// SettleOrderRequest claims the payout of the resting order of the signer.
type SettleOrderRequest struct {
	PairID    types.PairID    `json:"pairId"`
	Direction types.Direction `json:"direction"`
	Auth
}

// PauseRequest toggles the paused flag of the pool.
type PauseRequest struct {
	Paused bool `json:"paused"`
	Auth
}

// LiquidityRequest moves tokens between the authority wallet and a reserve.
type LiquidityRequest struct {
	Asset  types.AssetID `json:"asset"`
	Amount uint64        `json:"amount"`
	Remove bool          `json:"remove,omitempty"`
	Auth
}

// BatchRequest names the batch an admin operation acts on.
type BatchRequest struct {
	BatchID uint64 `json:"batchId"`
	Auth
}

// AdminRequest is a signed admin operation without arguments.
type AdminRequest struct {
	Auth
}

// ClearPendingRequest releases the in-flight slot of a user.
type ClearPendingRequest struct {
	User common.Address `json:"user"`
	Auth
}

// ComputationResponse is returned by operations that queue a computation.
type ComputationResponse struct {
	ID uuid.UUID `json:"id"`
}

// AssetInfo describes a supported asset.
type AssetInfo struct {
	ID   types.AssetID `json:"id"`
	Name string        `json:"name"`
}

// PairInfo describes a tradable pair.
type PairInfo struct {
	ID    types.PairID  `json:"id"`
	Name  string        `json:"name"`
	Base  types.AssetID `json:"base"`
	Quote types.AssetID `json:"quote"`
}

// InfoResponse describes the deployment.
type InfoResponse struct {
	Pool           *types.Pool     `json:"pool"`
	ClusterAddress common.Address  `json:"clusterAddress"`
	ClusterPubKey  types.PublicKey `json:"clusterPubKey"`
	SlippageBps    uint16          `json:"slippageBps"`
	NettingMode    string          `json:"nettingMode"`
	FaucetCap      uint64          `json:"faucetCap"`
	Assets         []AssetInfo     `json:"assets"`
	Pairs          []PairInfo      `json:"pairs"`
}

// PricesResponse is the current price vector, raw and in display units.
type PricesResponse struct {
	Prices    types.PriceVector `json:"prices"`
	Display   map[string]string `json:"display"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

// WalletResponse holds the plaintext token balances of a wallet.
type WalletResponse struct {
	Owner    common.Address          `json:"owner"`
	Balances [types.NumAssets]uint64 `json:"balances"`
}

// CustodyResponse holds the vault and reserve token balances per asset.
type CustodyResponse struct {
	Vaults   [types.NumAssets]uint64 `json:"vaults"`
	Reserves [types.NumAssets]uint64 `json:"reserves"`
}

// RootResponse is the root of the batch commitment tree.
type RootResponse struct {
	Root types.HexBytes `json:"root"`
}

// EventsResponse is a page of the event log.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	// Last is the sequence number of the last committed event.
	Last uint64 `json:"last"`
}
