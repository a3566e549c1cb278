// Package custody models the plaintext token accounts around the encrypted
// ledger: the external wallet account of each user, and per asset the vault
// holding user deposits and the reserve holding protocol liquidity. The
// protocol is the only authority moving funds out of vaults and reserves.
package custody

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/omnibatch/types"
)

// ErrInsufficientFunds is returned when the source account cannot cover a
// transfer.
var ErrInsufficientFunds = errors.New("insufficient token balance")

// Kind is the kind of a token account.
type Kind uint8

const (
	KindExternal Kind = iota
	KindVault
	KindReserve
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindVault:
		return "vault"
	case KindReserve:
		return "reserve"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Account identifies a token account. Vaults and reserves have no owner.
type Account struct {
	Kind  Kind           `json:"kind"`
	Asset types.AssetID  `json:"asset"`
	Owner common.Address `json:"owner,omitempty"`
}

// External returns the wallet account of owner for asset.
func External(owner common.Address, asset types.AssetID) Account {
	return Account{Kind: KindExternal, Asset: asset, Owner: owner}
}

// Vault returns the user deposit vault of asset.
func Vault(asset types.AssetID) Account {
	return Account{Kind: KindVault, Asset: asset}
}

// Reserve returns the protocol liquidity reserve of asset.
func Reserve(asset types.AssetID) Account {
	return Account{Kind: KindReserve, Asset: asset}
}

// Key returns the storage key of the account: kind, asset and owner.
func (a Account) Key() []byte {
	k := make([]byte, 0, 2+common.AddressLength)
	k = append(k, byte(a.Kind), byte(a.Asset))
	return append(k, a.Owner.Bytes()...)
}

func (a Account) String() string {
	if a.Kind == KindExternal {
		return fmt.Sprintf("%s:%s:%s", a.Kind, a.Asset, a.Owner.Hex())
	}
	return fmt.Sprintf("%s:%s", a.Kind, a.Asset)
}

// Ledger reads and writes token balances. It is implemented by a storage
// transaction so that token movements commit together with the rest of a
// state transition.
type Ledger interface {
	TokenBalance(Account) (uint64, error)
	SetTokenBalance(Account, uint64) error
}

// Transfer moves amount from one account to another of the same asset.
func Transfer(l Ledger, from, to Account, amount uint64) error {
	if from.Asset != to.Asset {
		return fmt.Errorf("asset mismatch: %s -> %s", from, to)
	}
	if !from.Asset.Valid() {
		return fmt.Errorf("invalid asset %d", from.Asset)
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := l.TokenBalance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	toBal, err := l.TokenBalance(to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("balance overflow on %s", to)
	}
	if err := l.SetTokenBalance(from, fromBal-amount); err != nil {
		return err
	}
	return l.SetTokenBalance(to, toBal+amount)
}

// Mint credits newly created tokens to an account.
func Mint(l Ledger, to Account, amount uint64) error {
	if !to.Asset.Valid() {
		return fmt.Errorf("invalid asset %d", to.Asset)
	}
	bal, err := l.TokenBalance(to)
	if err != nil {
		return err
	}
	if bal+amount < bal {
		return fmt.Errorf("balance overflow on %s", to)
	}
	return l.SetTokenBalance(to, bal+amount)
}
