// Package oracle provides the price vector used to net batches: a static
// reference vector and a feed that only accepts updates signed by a
// registered oracle key.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/types"
)

var (
	// ErrInvalidSignature is returned when a price update is not signed by
	// the registered oracle.
	ErrInvalidSignature = errors.New("price update not signed by oracle")
	// ErrStaleUpdate is returned when a price update is not newer than the
	// current one.
	ErrStaleUpdate = errors.New("stale price update")
)

// Feed returns the current price vector.
type Feed interface {
	Prices(ctx context.Context) (types.PriceVector, error)
}

// Static is a feed returning a constant vector.
type Static struct {
	prices types.PriceVector
}

// NewStatic returns a feed always returning prices.
func NewStatic(prices types.PriceVector) *Static {
	return &Static{prices: prices}
}

// Prices implements Feed.
func (s *Static) Prices(context.Context) (types.PriceVector, error) {
	return s.prices, nil
}

// PriceUpdate is a price vector signed by the oracle key.
type PriceUpdate struct {
	Prices    types.PriceVector `json:"prices"    cbor:"0,keyasint,omitempty"`
	Timestamp int64             `json:"timestamp" cbor:"1,keyasint,omitempty"`
	Signature types.HexBytes    `json:"signature" cbor:"2,keyasint,omitempty"`
}

// Payload returns the signed encoding of the update.
func (u *PriceUpdate) Payload() ([]byte, error) {
	unsigned := *u
	unsigned.Signature = nil
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(&unsigned)
}

// SignUpdate builds a price update signed with the given key.
func SignUpdate(keys *ethereum.SignKeys, prices types.PriceVector, ts time.Time) (*PriceUpdate, error) {
	u := &PriceUpdate{Prices: prices, Timestamp: ts.Unix()}
	payload, err := u.Payload()
	if err != nil {
		return nil, err
	}
	if u.Signature, err = keys.SignEthereum(payload); err != nil {
		return nil, fmt.Errorf("sign price update: %w", err)
	}
	return u, nil
}

// Signed is a feed updated by signed price vectors.
type Signed struct {
	oracle common.Address

	mu        sync.RWMutex
	prices    types.PriceVector
	timestamp int64
}

// NewSigned returns a feed accepting updates signed by oracle and starting
// from the given prices.
func NewSigned(oracle common.Address, initial types.PriceVector) *Signed {
	return &Signed{oracle: oracle, prices: initial}
}

// Oracle returns the registered oracle address.
func (s *Signed) Oracle() common.Address {
	return s.oracle
}

// Submit verifies and installs a price update.
func (s *Signed) Submit(u *PriceUpdate) error {
	payload, err := u.Payload()
	if err != nil {
		return err
	}
	signer, err := ethereum.AddrFromSignature(payload, u.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != s.oracle {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Timestamp <= s.timestamp {
		return fmt.Errorf("%w: %d not after %d", ErrStaleUpdate, u.Timestamp, s.timestamp)
	}
	s.prices = u.Prices
	s.timestamp = u.Timestamp
	log.Infow("prices updated", "prices", FormatVector(u.Prices), "timestamp", u.Timestamp)
	return nil
}

// Prices implements Feed.
func (s *Signed) Prices(context.Context) (types.PriceVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices, nil
}

// UpdatedAt returns the timestamp of the last accepted update, zero if none.
func (s *Signed) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(s.timestamp, 0)
}

// Format renders a fixed point price with AssetDecimals decimals.
func Format(price uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(price), -types.AssetDecimals).StringFixed(types.AssetDecimals)
}

// Parse reads a decimal price into base units.
func Parse(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %s", s)
	}
	scaled := d.Shift(types.AssetDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("price %s has more than %d decimals", s, types.AssetDecimals)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("price %s out of range", s)
	}
	return bi.Uint64(), nil
}

// FormatVector renders every price keyed by asset ticker.
func FormatVector(prices types.PriceVector) map[string]string {
	out := make(map[string]string, len(prices))
	for i, p := range prices {
		out[types.AssetID(i).String()] = Format(p)
	}
	return out
}
