package mpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/crypto/x25519"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/types"
	"github.com/vocdoni/omnibatch/util"
)

// Cluster evaluates circuits over encrypted inputs. It holds the x25519 key
// users agree Shared secrets with, the Protocol key for cluster-only values
// and the secp256k1 key that signs every output.
type Cluster struct {
	priv     x25519.PrivateKey
	pub      types.PublicKey
	protocol *x25519.Cipher
	signer   *ethereum.SignKeys

	abortMu sync.RWMutex
	abort   func(*Computation) bool
}

// NewCluster creates a cluster with fresh keys.
func NewCluster() (*Cluster, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewClusterWithKeys(signer)
}

// NewClusterWithKeys creates a cluster signing with the given key. The
// encryption keys are always fresh.
func NewClusterWithKeys(signer *ethereum.SignKeys) (*Cluster, error) {
	if signer == nil {
		return nil, fmt.Errorf("missing signing key")
	}
	pub, priv, err := x25519.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	return &Cluster{
		priv:     priv,
		pub:      pub,
		protocol: x25519.NewCipher(util.Random32()),
		signer:   signer,
	}, nil
}

// NewClusterFromSeed creates a cluster signing with the given key whose
// encryption keys are derived from seed, so a restarted node keeps decrypting
// the ciphertexts it produced.
func NewClusterFromSeed(signer *ethereum.SignKeys, seed []byte) (*Cluster, error) {
	if signer == nil {
		return nil, fmt.Errorf("missing signing key")
	}
	priv, err := x25519.DeriveKey(seed, "cluster")
	if err != nil {
		return nil, err
	}
	protocol, err := x25519.DeriveKey(seed, "protocol")
	if err != nil {
		return nil, err
	}
	return &Cluster{
		priv:     priv,
		pub:      x25519.PrivateKey(priv).Public(),
		protocol: x25519.NewCipher(protocol),
		signer:   signer,
	}, nil
}

// PublicKey returns the x25519 key users encrypt Shared inputs for.
func (c *Cluster) PublicKey() types.PublicKey {
	return c.pub
}

// Address returns the address outputs are signed with.
func (c *Cluster) Address() common.Address {
	return c.signer.Address()
}

// SetAbortFunc installs a hook deciding whether a computation is aborted
// before evaluation. A nil hook disables aborts.
func (c *Cluster) SetAbortFunc(f func(*Computation) bool) {
	c.abortMu.Lock()
	defer c.abortMu.Unlock()
	c.abort = f
}

func (c *Cluster) shouldAbort(comp *Computation) bool {
	c.abortMu.RLock()
	defer c.abortMu.RUnlock()
	return c.abort != nil && c.abort(comp)
}

// Compute evaluates the computation and returns its signed output. Any
// failure to decrypt or evaluate the inputs aborts the computation.
func (c *Cluster) Compute(ctx context.Context, comp *Computation) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, fmt.Errorf("%w: nil computation", ErrInvalidArguments)
	}
	if c.shouldAbort(comp) {
		return nil, fmt.Errorf("%w: %s rejected by cluster", ErrAborted, comp.Circuit)
	}

	var (
		out *Output
		err error
	)
	switch comp.Circuit {
	case CircuitAddBalance:
		out, err = c.addBalance(comp.Args)
	case CircuitSubBalance:
		out, err = c.subBalance(comp.Args)
	case CircuitTransfer:
		out, err = c.transfer(comp.Args)
	case CircuitInitBatchState:
		out, err = c.initBatchState(comp.Args)
	case CircuitAccumulateOrder:
		out, err = c.accumulateOrder(comp.Args)
	case CircuitRevealBatch:
		out, err = c.revealBatch(comp.Args)
	case CircuitCalculatePayout:
		out, err = c.calculatePayout(comp.Args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCircuit, comp.Circuit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAborted, comp.Circuit, err)
	}
	out.ComputationID = comp.ID
	out.Circuit = comp.Circuit
	if err := c.sign(out); err != nil {
		return nil, err
	}
	log.Debugw("computation evaluated", "id", comp.ID.String(), "circuit", comp.Circuit,
		"revealed", len(out.Revealed), "encrypted", len(out.Encrypted))
	return out, nil
}

func (c *Cluster) sign(out *Output) error {
	payload, err := out.Payload()
	if err != nil {
		return err
	}
	sig, err := c.signer.SignEthereum(payload)
	if err != nil {
		return fmt.Errorf("sign output: %w", err)
	}
	out.Signature = sig
	return nil
}

func (c *Cluster) addBalance(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerShared, OwnerShared, OwnerPlaintext); err != nil {
		return nil, err
	}
	update, err := c.decryptShared(args[0], 1)
	if err != nil {
		return nil, err
	}
	balance, err := c.decryptShared(args[1], 1)
	if err != nil {
		return nil, err
	}
	matches, newBalance := addBalance(update[0], balance[0], args[2].Plaintext)
	enc, err := c.encryptShared(args[1].PubKey, newBalance)
	if err != nil {
		return nil, err
	}
	return &Output{Encrypted: []EncryptedOutput{*enc}, Revealed: []uint64{matches}}, nil
}

func (c *Cluster) subBalance(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerShared, OwnerShared, OwnerPlaintext); err != nil {
		return nil, err
	}
	update, err := c.decryptShared(args[0], 1)
	if err != nil {
		return nil, err
	}
	balance, err := c.decryptShared(args[1], 1)
	if err != nil {
		return nil, err
	}
	hasFunds, newBalance := subBalance(update[0], balance[0], args[2].Plaintext)
	enc, err := c.encryptShared(args[1].PubKey, newBalance)
	if err != nil {
		return nil, err
	}
	return &Output{Encrypted: []EncryptedOutput{*enc}, Revealed: []uint64{hasFunds}}, nil
}

func (c *Cluster) transfer(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerShared, OwnerShared, OwnerShared); err != nil {
		return nil, err
	}
	amount, err := c.decryptShared(args[0], 1)
	if err != nil {
		return nil, err
	}
	sender, err := c.decryptShared(args[1], 1)
	if err != nil {
		return nil, err
	}
	recipient, err := c.decryptShared(args[2], 1)
	if err != nil {
		return nil, err
	}
	hasFunds, newSender, newRecipient := transfer(amount[0], sender[0], recipient[0])
	encSender, err := c.encryptShared(args[1].PubKey, newSender)
	if err != nil {
		return nil, err
	}
	encRecipient, err := c.encryptShared(args[2].PubKey, newRecipient)
	if err != nil {
		return nil, err
	}
	return &Output{
		Encrypted: []EncryptedOutput{*encSender, *encRecipient},
		Revealed:  []uint64{hasFunds},
	}, nil
}

func (c *Cluster) initBatchState(args []Argument) (*Output, error) {
	if err := checkArgs(args); err != nil {
		return nil, err
	}
	enc, err := c.encryptProtocol(make([]uint64, types.BatchTotals)...)
	if err != nil {
		return nil, err
	}
	return &Output{Encrypted: []EncryptedOutput{*enc}}, nil
}

func (c *Cluster) accumulateOrder(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerShared, OwnerShared, OwnerProtocol, OwnerPlaintext, OwnerPlaintext); err != nil {
		return nil, err
	}
	order, err := c.decryptShared(args[0], 3)
	if err != nil {
		return nil, err
	}
	balance, err := c.decryptShared(args[1], 1)
	if err != nil {
		return nil, err
	}
	state, err := c.decryptProtocol(args[2], types.BatchTotals)
	if err != nil {
		return nil, err
	}
	var batch [types.BatchTotals]uint64
	copy(batch[:], state)

	hasFunds, ready, newBalance, newBatch := accumulateOrder(order[0], order[1], order[2], balance[0], batch,
		args[3].Plaintext, args[4].Plaintext)

	encBalance, err := c.encryptShared(args[1].PubKey, newBalance)
	if err != nil {
		return nil, err
	}
	encBatch, err := c.encryptProtocol(newBatch[:]...)
	if err != nil {
		return nil, err
	}
	return &Output{
		Encrypted: []EncryptedOutput{*encBalance, *encBatch},
		Revealed:  []uint64{hasFunds, ready},
	}, nil
}

func (c *Cluster) revealBatch(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerProtocol); err != nil {
		return nil, err
	}
	totals, err := c.decryptProtocol(args[0], types.BatchTotals)
	if err != nil {
		return nil, err
	}
	return &Output{Revealed: totals}, nil
}

func (c *Cluster) calculatePayout(args []Argument) (*Output, error) {
	if err := checkArgs(args, OwnerShared, OwnerShared, OwnerPlaintext, OwnerPlaintext,
		OwnerPlaintext, OwnerPlaintext); err != nil {
		return nil, err
	}
	order, err := c.decryptShared(args[0], 3)
	if err != nil {
		return nil, err
	}
	balance, err := c.decryptShared(args[1], 1)
	if err != nil {
		return nil, err
	}
	payout, newBalance := calculatePayout(order[0], order[1], order[2], balance[0],
		args[2].Plaintext, args[3].Plaintext, args[4].Plaintext, args[5].Plaintext)
	enc, err := c.encryptShared(args[1].PubKey, newBalance)
	if err != nil {
		return nil, err
	}
	encPayout, err := c.encryptShared(args[1].PubKey, payout)
	if err != nil {
		return nil, err
	}
	return &Output{Encrypted: []EncryptedOutput{*enc, *encPayout}, Revealed: []uint64{payout}}, nil
}

func (c *Cluster) decryptShared(arg Argument, size int) ([]uint64, error) {
	if len(arg.Ciphertexts) != size {
		return nil, fmt.Errorf("%w: expected %d ciphertexts, got %d", ErrInvalidArguments, size, len(arg.Ciphertexts))
	}
	cipher, err := x25519.NewSharedCipher(c.priv, arg.PubKey)
	if err != nil {
		return nil, err
	}
	return cipher.Decrypt(arg.Ciphertexts, arg.Nonce)
}

func (c *Cluster) decryptProtocol(arg Argument, size int) ([]uint64, error) {
	if len(arg.Ciphertexts) != size {
		return nil, fmt.Errorf("%w: expected %d ciphertexts, got %d", ErrInvalidArguments, size, len(arg.Ciphertexts))
	}
	return c.protocol.Decrypt(arg.Ciphertexts, arg.Nonce)
}

func (c *Cluster) encryptShared(owner types.PublicKey, values ...uint64) (*EncryptedOutput, error) {
	cipher, err := x25519.NewSharedCipher(c.priv, owner)
	if err != nil {
		return nil, err
	}
	nonce := types.Nonce(util.Random16())
	cts, err := cipher.Encrypt(values, nonce)
	if err != nil {
		return nil, err
	}
	return &EncryptedOutput{Owner: OwnerShared, PubKey: owner, Nonce: nonce, Ciphertexts: cts}, nil
}

func (c *Cluster) encryptProtocol(values ...uint64) (*EncryptedOutput, error) {
	nonce := types.Nonce(util.Random16())
	cts, err := c.protocol.Encrypt(values, nonce)
	if err != nil {
		return nil, err
	}
	return &EncryptedOutput{Owner: OwnerProtocol, Nonce: nonce, Ciphertexts: cts}, nil
}

func checkArgs(args []Argument, owners ...Owner) error {
	if len(args) != len(owners) {
		return fmt.Errorf("%w: expected %d arguments, got %d", ErrInvalidArguments, len(owners), len(args))
	}
	for i, o := range owners {
		if args[i].Owner != o {
			return fmt.Errorf("%w: argument %d has owner %d, expected %d", ErrInvalidArguments, i, args[i].Owner, o)
		}
	}
	return nil
}
