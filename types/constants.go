package types

const (
	// NumAssets is the size of the asset universe.
	NumAssets = 4
	// NumPairs is the number of trading pairs, one per unordered asset couple.
	NumPairs = 6
	// BatchTotals is the number of revealed totals per batch (two per pair).
	BatchTotals = 2 * NumPairs
	// BatchTriggerCount is the minimum number of accepted orders for a batch
	// to be ready for execution.
	BatchTriggerCount = 8
	// MinActivePairs is the minimum number of pairs with volume for a batch
	// to be ready for execution.
	MinActivePairs = 2
	// MaxFeeBps is the maximum execution fee, in basis points (10%).
	MaxFeeBps = 1000
	// BpsDenominator is the basis points denominator.
	BpsDenominator = 10_000
	// DefaultSlippageBps is the haircut applied to the residual imbalance of
	// a pair when it is routed to the reserves (1%).
	DefaultSlippageBps = 100
	// FaucetMaxPerUser is the cumulative faucet cap per user, in base units.
	FaucetMaxPerUser = 1_000_000_000
	// FirstBatchID is the identifier of the first batch.
	FirstBatchID = 1
	// AssetDecimals is the number of decimals of every asset and price.
	AssetDecimals = 6
)
