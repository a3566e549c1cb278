// Package mpc defines the contract between the host ledger and the MPC
// cluster: the circuit suite, the shape of computation arguments and signed
// outputs, and a single-process cluster that evaluates the circuits over
// encrypted inputs.
package mpc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/types"
)

// CircuitID names a circuit of the suite.
type CircuitID string

const (
	CircuitAddBalance      CircuitID = "add_balance"
	CircuitSubBalance      CircuitID = "sub_balance"
	CircuitTransfer        CircuitID = "transfer"
	CircuitInitBatchState  CircuitID = "init_batch_state"
	CircuitAccumulateOrder CircuitID = "accumulate_order"
	CircuitRevealBatch     CircuitID = "reveal_batch"
	CircuitCalculatePayout CircuitID = "calculate_payout"
)

// Circuits lists every circuit of the suite.
var Circuits = []CircuitID{
	CircuitAddBalance,
	CircuitSubBalance,
	CircuitTransfer,
	CircuitInitBatchState,
	CircuitAccumulateOrder,
	CircuitRevealBatch,
	CircuitCalculatePayout,
}

var (
	// ErrAborted is returned when the cluster aborts a computation.
	ErrAborted = errors.New("computation aborted")
	// ErrInvalidArguments is returned when the arguments do not match the
	// circuit signature.
	ErrInvalidArguments = errors.New("invalid computation arguments")
	// ErrUnknownCircuit is returned for circuits outside the suite.
	ErrUnknownCircuit = errors.New("unknown circuit")
	// ErrInvalidSignature is returned when an output is not signed by the
	// registered cluster key.
	ErrInvalidSignature = errors.New("invalid cluster signature")
)

// Owner is the owner kind of an encrypted value.
type Owner uint8

const (
	// OwnerShared values are decryptable by a user and the cluster.
	OwnerShared Owner = iota
	// OwnerProtocol values are decryptable by the cluster only.
	OwnerProtocol
	// OwnerPlaintext marks inline plaintext scalars.
	OwnerPlaintext
)

// Argument is one positional input of a computation. Shared arguments carry
// the owner public key, Protocol arguments only nonce and ciphertexts, and
// plaintext arguments a single inline scalar.
type Argument struct {
	Owner       Owner              `json:"owner"                 cbor:"0,keyasint,omitempty"`
	PubKey      types.PublicKey    `json:"pubKey,omitempty"      cbor:"1,keyasint,omitempty"`
	Nonce       types.Nonce        `json:"nonce,omitempty"       cbor:"2,keyasint,omitempty"`
	Ciphertexts []types.Ciphertext `json:"ciphertexts,omitempty" cbor:"3,keyasint,omitempty"`
	Plaintext   uint64             `json:"plaintext,omitempty"   cbor:"4,keyasint,omitempty"`
}

// Shared builds a Shared argument.
func Shared(pubKey types.PublicKey, nonce types.Nonce, cts ...types.Ciphertext) Argument {
	return Argument{Owner: OwnerShared, PubKey: pubKey, Nonce: nonce, Ciphertexts: cts}
}

// Protocol builds a Protocol argument.
func Protocol(nonce types.Nonce, cts ...types.Ciphertext) Argument {
	return Argument{Owner: OwnerProtocol, Nonce: nonce, Ciphertexts: cts}
}

// Plaintext builds an inline plaintext argument.
func Plaintext(v uint64) Argument {
	return Argument{Owner: OwnerPlaintext, Plaintext: v}
}

// Computation is a circuit invocation posted to the cluster.
type Computation struct {
	ID      uuid.UUID  `json:"id"      cbor:"0,keyasint,omitempty"`
	Circuit CircuitID  `json:"circuit" cbor:"1,keyasint,omitempty"`
	Args    []Argument `json:"args"    cbor:"2,keyasint,omitempty"`
}

// NewComputation creates a computation with a fresh identifier.
func NewComputation(circuit CircuitID, args ...Argument) *Computation {
	return &Computation{ID: uuid.New(), Circuit: circuit, Args: args}
}

// EncryptedOutput is an encrypted value emitted by a circuit, always under a
// fresh nonce.
type EncryptedOutput struct {
	Owner       Owner              `json:"owner"            cbor:"0,keyasint,omitempty"`
	PubKey      types.PublicKey    `json:"pubKey,omitempty" cbor:"1,keyasint,omitempty"`
	Nonce       types.Nonce        `json:"nonce"            cbor:"2,keyasint,omitempty"`
	Ciphertexts []types.Ciphertext `json:"ciphertexts"      cbor:"3,keyasint,omitempty"`
}

// Output is the signed result of a computation. Encrypted values and revealed
// scalars are positional, following the circuit return type.
type Output struct {
	ComputationID uuid.UUID         `json:"computationId" cbor:"0,keyasint,omitempty"`
	Circuit       CircuitID         `json:"circuit"       cbor:"1,keyasint,omitempty"`
	Encrypted     []EncryptedOutput `json:"encrypted"     cbor:"2,keyasint,omitempty"`
	Revealed      []uint64          `json:"revealed"      cbor:"3,keyasint,omitempty"`
	Signature     types.HexBytes    `json:"signature"     cbor:"4,keyasint,omitempty"`
}

// Payload returns the deterministic encoding of the output without its
// signature. This is what the cluster signs.
func (o *Output) Payload() ([]byte, error) {
	unsigned := *o
	unsigned.Signature = nil
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return em.Marshal(&unsigned)
}

// Verify checks the output was signed by the given cluster address.
func (o *Output) Verify(cluster common.Address) error {
	if len(o.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	payload, err := o.Payload()
	if err != nil {
		return err
	}
	signer, err := ethereum.AddrFromSignature(payload, o.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != cluster {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer)
	}
	return nil
}

// RevealedBool returns the revealed scalar at position i as a boolean.
func (o *Output) RevealedBool(i int) (bool, error) {
	if i >= len(o.Revealed) {
		return false, fmt.Errorf("%w: missing revealed value %d", ErrInvalidArguments, i)
	}
	return o.Revealed[i] == 1, nil
}

// EncryptedAt returns the encrypted output at position i, checking it holds
// the expected number of ciphertexts.
func (o *Output) EncryptedAt(i, size int) (*EncryptedOutput, error) {
	if i >= len(o.Encrypted) {
		return nil, fmt.Errorf("%w: missing encrypted output %d", ErrInvalidArguments, i)
	}
	if len(o.Encrypted[i].Ciphertexts) != size {
		return nil, fmt.Errorf("%w: encrypted output %d has %d ciphertexts, expected %d",
			ErrInvalidArguments, i, len(o.Encrypted[i].Ciphertexts), size)
	}
	return &o.Encrypted[i], nil
}
