// Package state keeps the append-only commitment of executed batches: every
// BatchLog is hashed into a leaf of an arbo tree keyed by batch id, so that
// settlement inputs and the prices used by netting can be audited against a
// single root.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/omnibatch/crypto/hash/poseidon"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// size of the inclusion proofs
	MaxLevels = 64
	// MaxKeyLen is ceil(maxLevels/8)
	MaxKeyLen = (MaxLevels + 7) / 8
	// LeafLen is the byte length of a leaf value.
	LeafLen = 32
)

// hashFunc is the hash function used in the results tree.
var hashFunc = arbo.HashMiMC_BN254{}

// dbPrefix separates the tree from the rest of the artifacts sharing the
// database.
var dbPrefix = []byte("r/")

// ErrLeafMismatch is returned when a batch is committed twice with different
// contents.
var ErrLeafMismatch = errors.New("batch already committed with a different leaf")

// Results is the tree of executed batch commitments.
type Results struct {
	mu   sync.Mutex
	tree *arbo.Tree
	db   db.Database
}

// New creates or opens the results tree stored in the passed database.
func New(database db.Database) (*Results, error) {
	pdb := prefixeddb.NewPrefixedDatabase(database, dbPrefix)
	tree, err := arbo.NewTree(arbo.Config{
		Database: pdb, MaxLevels: MaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, err
	}
	return &Results{tree: tree, db: pdb}, nil
}

// Leaf computes the commitment of a batch log: a Poseidon hash over the batch
// id, execution time, slippage, order count, price vector and the four values
// of every pair result.
func Leaf(l *types.BatchLog) (*big.Int, error) {
	values := []uint64{
		l.BatchID,
		uint64(l.ExecutedAt.Unix()),
		uint64(l.SlippageBps),
		uint64(l.OrderCount),
	}
	values = append(values, l.Prices[:]...)
	for _, r := range l.Results {
		values = append(values, r.TotalAIn, r.TotalBIn, r.FinalPoolA, r.FinalPoolB)
	}
	return poseidon.HashUint64s(values...)
}

// Key returns the tree key of a batch.
func Key(batchID uint64) []byte {
	return arbo.BigIntToBytes(MaxKeyLen, new(big.Int).SetUint64(batchID))
}

// Add commits the leaf of a batch. Adding the same leaf twice is a no-op, so
// callers can replay commitments after a restart.
func (r *Results) Add(batchID uint64, leaf *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key(batchID)
	value := arbo.BigIntToBytes(LeafLen, leaf)
	_, stored, err := r.tree.Get(key)
	switch {
	case err == nil:
		if !bytes.Equal(stored, value) {
			return fmt.Errorf("%w: batch %d", ErrLeafMismatch, batchID)
		}
		return nil
	case errors.Is(err, arbo.ErrKeyNotFound):
		return r.tree.Add(key, value)
	default:
		return fmt.Errorf("get batch %d: %w", batchID, err)
	}
}

// Has reports whether the batch is committed.
func (r *Results) Has(batchID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _, err := r.tree.Get(Key(batchID))
	return err == nil
}

// Root returns the current root of the tree.
func (r *Results) Root() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Root()
}

// RootAsBigInt returns the current root as a field element.
func (r *Results) RootAsBigInt() (*big.Int, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	return arbo.BytesToBigInt(root), nil
}
