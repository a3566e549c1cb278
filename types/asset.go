package types

import (
	"fmt"
	"strconv"
)

// AssetID identifies one of the supported assets.
type AssetID uint8

const (
	AssetUSDC AssetID = iota
	AssetTSLA
	AssetSPY
	AssetAAPL
)

var assetNames = [NumAssets]string{"USDC", "TSLA", "SPY", "AAPL"}

// Valid reports whether the asset belongs to the asset universe.
func (a AssetID) Valid() bool {
	return a < NumAssets
}

func (a AssetID) String() string {
	if !a.Valid() {
		return "asset(" + strconv.Itoa(int(a)) + ")"
	}
	return assetNames[a]
}

// AssetByName returns the asset identified by its ticker.
func AssetByName(name string) (AssetID, error) {
	for i, n := range assetNames {
		if n == name {
			return AssetID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown asset %q", name)
}

// PairID identifies one of the trading pairs.
type PairID uint8

// Pair is an ordered (base, quote) couple of assets. Side A of a pair is the
// base asset and side B the quote asset.
type Pair struct {
	Base  AssetID `json:"base"`
	Quote AssetID `json:"quote"`
}

// Pairs is the pair table, indexed by PairID.
var Pairs = [NumPairs]Pair{
	{Base: AssetTSLA, Quote: AssetUSDC},
	{Base: AssetSPY, Quote: AssetUSDC},
	{Base: AssetAAPL, Quote: AssetUSDC},
	{Base: AssetTSLA, Quote: AssetSPY},
	{Base: AssetTSLA, Quote: AssetAAPL},
	{Base: AssetSPY, Quote: AssetAAPL},
}

// Valid reports whether the pair exists.
func (p PairID) Valid() bool {
	return p < NumPairs
}

// Pair returns the (base, quote) assets of the pair. It panics if the pair
// does not exist.
func (p PairID) Pair() Pair {
	return Pairs[p]
}

func (p PairID) String() string {
	if !p.Valid() {
		return "pair(" + strconv.Itoa(int(p)) + ")"
	}
	return Pairs[p].Base.String() + "/" + Pairs[p].Quote.String()
}

// Direction is the side of an order within a pair.
type Direction uint8

const (
	// AToB sells the base asset for the quote asset.
	AToB Direction = iota
	// BToA sells the quote asset for the base asset.
	BToA
)

// Valid reports whether the direction is AToB or BToA.
func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

func (d Direction) String() string {
	switch d {
	case AToB:
		return "A->B"
	case BToA:
		return "B->A"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// SourceAsset returns the asset spent by an order on the given pair and
// direction.
func SourceAsset(p PairID, d Direction) (AssetID, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("invalid pair %d", p)
	}
	switch d {
	case AToB:
		return Pairs[p].Base, nil
	case BToA:
		return Pairs[p].Quote, nil
	}
	return 0, fmt.Errorf("invalid direction %d", d)
}

// OutputAsset returns the asset received by an order on the given pair and
// direction.
func OutputAsset(p PairID, d Direction) (AssetID, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("invalid pair %d", p)
	}
	switch d {
	case AToB:
		return Pairs[p].Quote, nil
	case BToA:
		return Pairs[p].Base, nil
	}
	return 0, fmt.Errorf("invalid direction %d", d)
}

// PriceVector holds one price per asset in a common quote unit, with
// AssetDecimals decimals.
type PriceVector [NumAssets]uint64

// ReferencePrices is the constant price vector of the reference deployment
// for (USDC, TSLA, SPY, AAPL).
var ReferencePrices = PriceVector{1_000_000, 250_000_000, 450_000_000, 180_000_000}
