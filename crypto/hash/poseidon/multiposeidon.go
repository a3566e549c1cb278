// Package poseidon hashes arbitrary lists of field elements with the iden3
// Poseidon implementation, chunking inputs beyond the 16-input limit.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// maxChunk is the widest input iden3 Poseidon accepts.
const maxChunk = 16

// MultiPoseidon hashes up to 256 inputs. Inputs are hashed in chunks of 16 and
// the chunk hashes are hashed together.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) > 256 {
		return nil, fmt.Errorf("too many inputs")
	} else if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	// calculate chunk hashes
	hashes := []*big.Int{}
	chunk := []*big.Int{}
	for _, input := range inputs {
		if len(chunk) == maxChunk {
			hash, err := poseidon.Hash(chunk)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, hash)
			chunk = []*big.Int{}
		}
		chunk = append(chunk, input)
	}
	// if the final chunk is not empty, hash it to get the last chunk hash
	if len(chunk) > 0 {
		hash, err := poseidon.Hash(chunk)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	// if there is only one chunk hash, return it
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	// return the hash of all chunk hashes
	return poseidon.Hash(hashes)
}

// HashUint64s hashes a list of u64 values. Every u64 is a valid field element.
func HashUint64s(values ...uint64) (*big.Int, error) {
	inputs := make([]*big.Int, len(values))
	for i, v := range values {
		inputs[i] = new(big.Int).SetUint64(v)
	}
	return MultiPoseidon(inputs...)
}
