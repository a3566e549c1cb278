// Package netting turns the revealed totals of a batch into per-pair final
// pools. Opposite sides of a pair are matched internally at oracle parity and
// only the residual imbalance is routed to the protocol reserves, with a
// slippage haircut. It also derives the vault/reserve flows that settle the
// residual.
package netting

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/types"
)

// Mode selects the unit the residual swap output is credited in.
type Mode uint8

const (
	// OutputInSoldUnits credits the haircut residual to the opposite side
	// without conversion, amount_out = surplus*(10000-slippage)/10000.
	OutputInSoldUnits Mode = iota
	// OutputAtParity converts the residual into the opposite asset at oracle
	// parity before the haircut. Both modes agree when base and quote trade
	// at par.
	OutputAtParity
)

func (m Mode) String() string {
	switch m {
	case OutputAtParity:
		return "parity"
	case OutputInSoldUnits:
		return "sold-units"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses the textual form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "sold-units":
		return OutputInSoldUnits, nil
	case "parity":
		return OutputAtParity, nil
	default:
		return 0, fmt.Errorf("unknown netting mode %q", s)
	}
}

// Engine nets batches with a fixed slippage and mode.
type Engine struct {
	slippageBps uint16
	mode        Mode
}

// New creates a netting engine. The slippage is expressed in basis points.
func New(slippageBps uint16, mode Mode) (*Engine, error) {
	if slippageBps > types.BpsDenominator {
		return nil, fmt.Errorf("slippage %d bps above %d", slippageBps, types.BpsDenominator)
	}
	if mode > OutputAtParity {
		return nil, fmt.Errorf("invalid netting mode %d", mode)
	}
	return &Engine{slippageBps: slippageBps, mode: mode}, nil
}

// SlippageBps returns the haircut applied to residual swaps.
func (e *Engine) SlippageBps() uint16 {
	return e.slippageBps
}

// Mode returns the engine mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Net computes the result row of every pair from the revealed totals, laid
// out as [p0_a, p0_b, p1_a, p1_b, ...]. Inactive pairs and pairs with a zero
// price keep a zero row.
func (e *Engine) Net(totals [types.BatchTotals]uint64, prices types.PriceVector) [types.NumPairs]types.PairResult {
	var results [types.NumPairs]types.PairResult
	for i := range results {
		pair := types.PairID(i).Pair()
		totalA, totalB := totals[2*i], totals[2*i+1]
		if totalA == 0 && totalB == 0 {
			continue
		}
		pBase, pQuote := prices[pair.Base], prices[pair.Quote]
		if pBase == 0 || pQuote == 0 {
			log.Warnw("pair skipped, zero price", "pair", types.PairID(i).String(),
				"baseprice", pBase, "quoteprice", pQuote)
			continue
		}
		results[i] = e.NetPair(totalA, totalB, pBase, pQuote)
		log.Debugw("pair netted", "pair", types.PairID(i).String(),
			"totalA", totalA, "totalB", totalB,
			"finalA", results[i].FinalPoolA, "finalB", results[i].FinalPoolB)
	}
	return results
}

// NetPair nets one pair. Both prices must be non zero.
func (e *Engine) NetPair(totalA, totalB, priceBase, priceQuote uint64) types.PairResult {
	res := types.PairResult{
		TotalAIn:   totalA,
		TotalBIn:   totalB,
		FinalPoolA: totalA,
		FinalPoolB: totalB,
	}
	pBase, pQuote := uint256.NewInt(priceBase), uint256.NewInt(priceQuote)
	aInQuote := new(uint256.Int).Mul(uint256.NewInt(totalA), pBase)
	aInQuote.Div(aInQuote, pQuote)
	b := uint256.NewInt(totalB)

	switch aInQuote.Cmp(b) {
	case 1:
		// residual base sold to the reserve for quote
		excessQuote := new(uint256.Int).Sub(aInQuote, b)
		surplusA := new(uint256.Int).Mul(excessQuote, pQuote)
		surplusA.Div(surplusA, pBase)
		out := surplusA
		if e.mode == OutputAtParity {
			out = excessQuote
		}
		res.FinalPoolA = totalA - capped(surplusA, totalA)
		res.FinalPoolB = satAdd(totalB, e.haircut(out))
	case -1:
		// residual quote sold to the reserve for base
		surplusB := new(uint256.Int).Sub(b, aInQuote)
		out := surplusB
		if e.mode == OutputAtParity {
			out = new(uint256.Int).Mul(surplusB, pQuote)
			out.Div(out, pBase)
		}
		res.FinalPoolA = satAdd(totalA, e.haircut(out))
		res.FinalPoolB = totalB - capped(surplusB, totalB)
	}
	return res
}

// haircut applies the slippage and clamps the result to u64.
func (e *Engine) haircut(x *uint256.Int) uint64 {
	y := new(uint256.Int).Mul(x, uint256.NewInt(uint64(types.BpsDenominator-e.slippageBps)))
	y.Div(y, uint256.NewInt(types.BpsDenominator))
	if !y.IsUint64() {
		return ^uint64(0)
	}
	return y.Uint64()
}

// capped returns min(x, limit).
func capped(x *uint256.Int, limit uint64) uint64 {
	if !x.IsUint64() || x.Uint64() > limit {
		return limit
	}
	return x.Uint64()
}

func satAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
