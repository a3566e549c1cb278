package mpc

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"
)

// The helpers below never branch on their inputs. Boolean values are the
// integers 0 and 1, and selection is done by multiplexing both arms, the way
// the cluster evaluates a condition on a secret.

// mux returns a if cond is 1 and b if cond is 0.
func mux(cond, a, b uint64) uint64 {
	return cond*a + (1-cond)*b
}

// geq returns 1 if a >= b.
func geq(a, b uint64) uint64 {
	_, borrow := bits.Sub64(a, b, 0)
	return borrow ^ 1
}

// eq returns 1 if a == b.
func eq(a, b uint64) uint64 {
	x := a ^ b
	return ((x | -x) >> 63) ^ 1
}

// nonZero returns 1 if a != 0.
func nonZero(a uint64) uint64 {
	return (a | -a) >> 63
}

// and returns the conjunction of two boolean values.
func and(a, b uint64) uint64 {
	return a & b
}

// or returns the disjunction of two boolean values.
func or(a, b uint64) uint64 {
	return a | b
}

// satAdd returns a+b, saturating at the u64 maximum.
func satAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	return mux(carry, math.MaxUint64, sum)
}

// mulDiv returns a*b/d computed on 256 bits, saturating at the u64 maximum.
// A zero divisor yields zero.
func mulDiv(a, b, d uint64) uint64 {
	var x uint256.Int
	x.Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(&x, uint256.NewInt(mux(nonZero(d), d, 1)))
	fits := nonZero(x[1]|x[2]|x[3]) ^ 1
	return mux(nonZero(d), mux(fits, x.Uint64(), math.MaxUint64), 0)
}
