package poseidon

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestMultiPoseidon(t *testing.T) {
	c := qt.New(t)

	_, err := MultiPoseidon()
	c.Assert(err, qt.ErrorMatches, "no inputs provided")

	tooMany := make([]*big.Int, 257)
	for i := range tooMany {
		tooMany[i] = big.NewInt(int64(i))
	}
	_, err = MultiPoseidon(tooMany...)
	c.Assert(err, qt.ErrorMatches, "too many inputs")

	// 40 inputs span three chunks
	values := make([]uint64, 40)
	for i := range values {
		values[i] = uint64(i) * 1_000_000
	}
	h1, err := HashUint64s(values...)
	c.Assert(err, qt.IsNil)
	h2, err := HashUint64s(values...)
	c.Assert(err, qt.IsNil)
	c.Assert(h1.Cmp(h2), qt.Equals, 0)

	values[39]++
	h3, err := HashUint64s(values...)
	c.Assert(err, qt.IsNil)
	c.Assert(h1.Cmp(h3), qt.Not(qt.Equals), 0)
}
