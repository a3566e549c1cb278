package netting

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vocdoni/omnibatch/types"
)

// FlowDirection is the direction of a settlement transfer between the vault
// and the reserve of an asset.
type FlowDirection uint8

const (
	// ReserveToVault moves protocol liquidity into the user vault.
	ReserveToVault FlowDirection = iota
	// VaultToReserve moves user deposits into the protocol reserve.
	VaultToReserve
)

func (d FlowDirection) String() string {
	if d == ReserveToVault {
		return "reserve->vault"
	}
	return "vault->reserve"
}

// Flow is one plaintext transfer needed to make the vault of an asset hold
// the final pool of a pair side.
type Flow struct {
	Pair      types.PairID  `json:"pair"`
	Asset     types.AssetID `json:"asset"`
	Amount    uint64        `json:"amount"`
	Direction FlowDirection `json:"direction"`
}

// Flows derives, for each pair side, the transfer between vault and reserve
// given by final_pool - total_in. Sides with no difference produce no flow.
// Side A holds the base asset and side B the quote asset.
func Flows(results [types.NumPairs]types.PairResult) []Flow {
	var flows []Flow
	for i, r := range results {
		pair := types.PairID(i).Pair()
		if f, ok := sideFlow(types.PairID(i), pair.Base, r.TotalAIn, r.FinalPoolA); ok {
			flows = append(flows, f)
		}
		if f, ok := sideFlow(types.PairID(i), pair.Quote, r.TotalBIn, r.FinalPoolB); ok {
			flows = append(flows, f)
		}
	}
	return flows
}

func sideFlow(pair types.PairID, asset types.AssetID, totalIn, finalPool uint64) (Flow, bool) {
	switch {
	case finalPool > totalIn:
		return Flow{Pair: pair, Asset: asset, Amount: finalPool - totalIn, Direction: ReserveToVault}, true
	case finalPool < totalIn:
		return Flow{Pair: pair, Asset: asset, Amount: totalIn - finalPool, Direction: VaultToReserve}, true
	default:
		return Flow{}, false
	}
}

// NetFlow nets the flows of an asset into a single transfer. It returns the
// amount and the direction it moves in; a zero amount means the flows cancel
// out.
func NetFlow(flows []Flow, asset types.AssetID) (uint64, FlowDirection, error) {
	in, out := new(uint256.Int), new(uint256.Int)
	for _, f := range flows {
		if f.Asset != asset {
			continue
		}
		if f.Direction == ReserveToVault {
			in.Add(in, uint256.NewInt(f.Amount))
		} else {
			out.Add(out, uint256.NewInt(f.Amount))
		}
	}
	dir := ReserveToVault
	if in.Lt(out) {
		in, out = out, in
		dir = VaultToReserve
	}
	net := new(uint256.Int).Sub(in, out)
	if !net.IsUint64() {
		return 0, dir, fmt.Errorf("net %s flow of %s overflows", dir, asset)
	}
	return net.Uint64(), dir, nil
}
