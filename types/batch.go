package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PairState holds the Protocol-owned encrypted totals of a pair. Side A is the
// base asset sold (A->B orders), side B the quote asset sold (B->A orders).
type PairState struct {
	TotalAIn Ciphertext `json:"totalAIn" cbor:"0,keyasint,omitempty"`
	TotalBIn Ciphertext `json:"totalBIn" cbor:"1,keyasint,omitempty"`
}

// BatchAccumulator is the singleton collecting encrypted per-pair totals of
// the current batch.
type BatchAccumulator struct {
	BatchID    uint64              `json:"batchId"    cbor:"0,keyasint,omitempty"`
	OrderCount uint8               `json:"orderCount" cbor:"1,keyasint,omitempty"`
	PairStates [NumPairs]PairState `json:"pairStates" cbor:"2,keyasint,omitempty"`
	// MXENonce is the nonce the current PairStates are valid under.
	MXENonce Nonce `json:"mxeNonce" cbor:"3,keyasint,omitempty"`
	// Seeded is set once encrypted zeros were installed for the batch.
	Seeded bool `json:"seeded" cbor:"4,keyasint,omitempty"`
	// Ready holds the last revealed batch_ready flag.
	Ready bool `json:"ready" cbor:"5,keyasint,omitempty"`
	// Executing is set while a reveal of the batch is in flight.
	Executing bool `json:"executing" cbor:"6,keyasint,omitempty"`
	// InFlight counts accumulate computations not yet called back.
	InFlight uint32 `json:"inFlight" cbor:"7,keyasint,omitempty"`
	// Seeding is set while an init_batch_state computation is in flight.
	Seeding bool `json:"seeding" cbor:"8,keyasint,omitempty"`
}

// NewBatchAccumulator allocates the accumulator: first batch, no orders,
// zero nonce and zero-bytes pair states.
func NewBatchAccumulator() *BatchAccumulator {
	return &BatchAccumulator{BatchID: FirstBatchID}
}

// SeedEncryptedZeros installs cluster-owned encrypted zeros for the batch.
func (b *BatchAccumulator) SeedEncryptedZeros(state [BatchTotals]Ciphertext, nonce Nonce) {
	b.setState(state)
	b.MXENonce = nonce
	b.Seeded = true
	b.Seeding = false
	b.Ready = false
}

// ApplyAccumulate installs the pair states and nonce produced by an
// accumulate_order computation and counts the order if it was funded.
func (b *BatchAccumulator) ApplyAccumulate(state [BatchTotals]Ciphertext, nonce Nonce, hadFunds, ready bool) {
	b.setState(state)
	b.MXENonce = nonce
	if hadFunds {
		b.OrderCount++
	}
	b.Ready = ready
}

// ResetAfterExecution moves the accumulator to the next batch. Pair states
// and nonce are left as they are until init_batch_state re-seeds them.
func (b *BatchAccumulator) ResetAfterExecution() {
	b.BatchID++
	b.OrderCount = 0
	b.Seeded = false
	b.Ready = false
	b.Executing = false
}

// Empty reports whether the accumulator holds seeded zeros and no orders.
func (b *BatchAccumulator) Empty() bool {
	return b.Seeded && b.OrderCount == 0
}

// Ciphertexts flattens the pair states as [p0_a, p0_b, p1_a, p1_b, ...].
func (b *BatchAccumulator) Ciphertexts() [BatchTotals]Ciphertext {
	var out [BatchTotals]Ciphertext
	for i, ps := range b.PairStates {
		out[2*i] = ps.TotalAIn
		out[2*i+1] = ps.TotalBIn
	}
	return out
}

func (b *BatchAccumulator) setState(state [BatchTotals]Ciphertext) {
	for i := range b.PairStates {
		b.PairStates[i] = PairState{TotalAIn: state[2*i], TotalBIn: state[2*i+1]}
	}
}

// PairResult is the plaintext outcome of a pair in an executed batch.
type PairResult struct {
	TotalAIn   uint64 `json:"totalAIn"   cbor:"0,keyasint,omitempty"`
	TotalBIn   uint64 `json:"totalBIn"   cbor:"1,keyasint,omitempty"`
	FinalPoolA uint64 `json:"finalPoolA" cbor:"2,keyasint,omitempty"`
	FinalPoolB uint64 `json:"finalPoolB" cbor:"3,keyasint,omitempty"`
}

// Active reports whether the pair had volume on any side.
func (r PairResult) Active() bool {
	return r.TotalAIn > 0 || r.TotalBIn > 0
}

// BatchLog is the immutable record of an executed batch.
type BatchLog struct {
	BatchID     uint64               `json:"batchId"     cbor:"0,keyasint,omitempty"`
	ExecutedAt  time.Time            `json:"executedAt"  cbor:"1,keyasint,omitempty"`
	Results     [NumPairs]PairResult `json:"results"     cbor:"2,keyasint,omitempty"`
	Prices      PriceVector          `json:"prices"      cbor:"3,keyasint,omitempty"`
	SlippageBps uint16               `json:"slippageBps" cbor:"4,keyasint,omitempty"`
	OrderCount  uint8                `json:"orderCount"  cbor:"5,keyasint,omitempty"`
	// SwapsExecuted latches the vault/reserve rebalancing of the batch.
	SwapsExecuted bool `json:"swapsExecuted" cbor:"6,keyasint,omitempty"`
	// Commitment is the leaf committed to the results tree for this log.
	Commitment HexBytes `json:"commitment" cbor:"7,keyasint,omitempty"`
}

// ActivePairs counts pairs with volume.
func (l *BatchLog) ActivePairs() int {
	n := 0
	for _, r := range l.Results {
		if r.Active() {
			n++
		}
	}
	return n
}

// Pool is the protocol configuration and its counters.
type Pool struct {
	Authority             common.Address `json:"authority"             cbor:"0,keyasint,omitempty"`
	Operator              common.Address `json:"operator"              cbor:"1,keyasint,omitempty"`
	Treasury              common.Address `json:"treasury"              cbor:"2,keyasint,omitempty"`
	ExecutionFeeBps       uint16         `json:"executionFeeBps"       cbor:"3,keyasint,omitempty"`
	ExecutionTriggerCount uint8          `json:"executionTriggerCount" cbor:"4,keyasint,omitempty"`
	Paused                bool           `json:"paused"                cbor:"5,keyasint,omitempty"`
	// ClusterAddress is the registered signer of MPC outputs.
	ClusterAddress       common.Address `json:"clusterAddress"       cbor:"6,keyasint,omitempty"`
	ClusterPubKey        PublicKey      `json:"clusterPubKey"        cbor:"7,keyasint,omitempty"`
	TotalBatchesExecuted uint64         `json:"totalBatchesExecuted" cbor:"8,keyasint,omitempty"`
	TotalFeesCollected   uint64         `json:"totalFeesCollected"   cbor:"9,keyasint,omitempty"`
	TotalSettlements     uint64         `json:"totalSettlements"     cbor:"10,keyasint,omitempty"`
}

// IsOperator reports whether the address may run batch execution paths.
func (p *Pool) IsOperator(addr common.Address) bool {
	return addr == p.Operator || addr == p.Authority
}
