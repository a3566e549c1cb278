// Package mimc computes MiMC (BN254) commitments over opaque byte strings,
// reducing every 32 byte word into the scalar field before hashing.
package mimc

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// HashWords hashes each word as one field element. Words longer than 32 bytes
// are rejected; shorter ones are read as big-endian integers.
func HashWords(words ...[]byte) ([]byte, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	h := mimc.NewMiMC()
	for i, w := range words {
		if len(w) > fr.Bytes {
			return nil, fmt.Errorf("word %d too long: %d bytes", i, len(w))
		}
		var e fr.Element
		e.SetBytes(w)
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("hash word %d: %w", i, err)
		}
	}
	return h.Sum(nil), nil
}
