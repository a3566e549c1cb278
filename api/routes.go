package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint describes the pool, the cluster and the asset universe
	InfoEndpoint = "/info"
	// PricesEndpoint returns the current price vector and accepts signed
	// updates when the node runs a signed feed
	PricesEndpoint = "/prices"
	// MetricsEndpoint exposes the Prometheus collectors
	MetricsEndpoint = "/metrics"

	// UsersEndpoint registers a user account
	UsersEndpoint = "/users"
	// UserEndpoint returns the encrypted ledger of a user
	AddressURLParam = "address"
	UserEndpoint    = "/users/{" + AddressURLParam + "}"
	// WalletEndpoint returns the plaintext token balances of a wallet
	WalletEndpoint = "/users/{" + AddressURLParam + "}/wallet"
	// FaucetEndpoint mints test tokens into the signer wallet
	FaucetEndpoint = "/faucet"
	// DepositsEndpoint, WithdrawalsEndpoint and TransfersEndpoint queue the
	// balance computations of a user
	DepositsEndpoint    = "/deposits"
	WithdrawalsEndpoint = "/withdrawals"
	TransfersEndpoint   = "/transfers"
	// OrdersEndpoint places an encrypted order in the current batch
	OrdersEndpoint = "/orders"
	// SettlementsEndpoint settles the resting order of the signer
	SettlementsEndpoint = "/settlements"
	// ComputationEndpoint returns the status of a queued computation
	ComputationURLParam = "computationId"
	ComputationEndpoint = "/computations/{" + ComputationURLParam + "}"

	// BatchEndpoint returns the accumulator of the current batch
	BatchEndpoint = "/batch"
	// BatchLogEndpoint returns the log of an executed batch
	BatchURLParam    = "batchId"
	BatchLogEndpoint = "/batches/{" + BatchURLParam + "}"
	// BatchProofEndpoint returns the inclusion proof of a batch commitment
	BatchProofEndpoint = "/batches/{" + BatchURLParam + "}/proof"
	// ResultsRootEndpoint returns the root of the batch commitment tree
	ResultsRootEndpoint = "/results/root"
	// EventsEndpoint pages the event log, query parameters after and limit
	EventsEndpoint = "/events"
	// CustodyEndpoint returns the vault and reserve balances
	CustodyEndpoint = "/custody"

	// Admin endpoints, signed by the pool authority.
	PauseEndpoint           = "/admin/pause"
	LiquidityEndpoint       = "/admin/liquidity"
	InitAccumulatorEndpoint = "/admin/batch/accumulator"
	InitBatchEndpoint       = "/admin/batch/init"
	ExecuteBatchEndpoint    = "/admin/batch/execute"
	ExecuteSwapsEndpoint    = "/admin/batch/swaps"
	ClearPendingEndpoint    = "/admin/pending/clear"
)

// DefaultEventsLimit is the page size of EventsEndpoint when no limit is
// given, and the maximum accepted.
const DefaultEventsLimit = 100
