package state

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/omnibatch/types"
)

// Proof is an inclusion proof of a batch leaf, in arbo native encoding.
type Proof struct {
	// Key+Value hashed through Siblings path, should produce Root
	Root     types.HexBytes `json:"root"`
	Siblings types.HexBytes `json:"siblings"`
	Key      types.HexBytes `json:"key"`
	Value    types.HexBytes `json:"value"`
	BatchID  uint64         `json:"batchId"`
}

// GenProof generates the inclusion proof of a committed batch.
func (r *Results) GenProof(batchID uint64) (*Proof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root, err := r.tree.Root()
	if err != nil {
		return nil, err
	}
	leafK, leafV, packedSiblings, existence, err := r.tree.GenProof(Key(batchID))
	if err != nil {
		return nil, err
	}
	if !existence {
		return nil, fmt.Errorf("batch %d is not committed", batchID)
	}
	return &Proof{
		Root:     root,
		Siblings: packedSiblings,
		Key:      leafK,
		Value:    leafV,
		BatchID:  batchID,
	}, nil
}

// CheckProof verifies the proof against its root.
func CheckProof(p *Proof) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("nil proof")
	}
	return arbo.CheckProof(hashFunc, p.Key, p.Value, p.Root, p.Siblings)
}

// LeafValue returns the leaf carried by the proof as a field element.
func (p *Proof) LeafValue() *big.Int {
	return arbo.BytesToBigInt(p.Value)
}
