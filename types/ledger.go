package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EncryptedBalance is a Shared-owned balance ciphertext together with the
// nonce it is valid under.
type EncryptedBalance struct {
	Ciphertext Ciphertext `json:"ciphertext" cbor:"0,keyasint,omitempty"`
	Nonce      Nonce      `json:"nonce"      cbor:"1,keyasint,omitempty"`
}

// PendingKind tags the in-flight operation of a user.
type PendingKind uint8

const (
	PendingNone PendingKind = iota
	AwaitingDeposit
	AwaitingWithdraw
	AwaitingTransfer
	AwaitingPlace
	AwaitingSettle
)

func (k PendingKind) String() string {
	switch k {
	case PendingNone:
		return "none"
	case AwaitingDeposit:
		return "awaiting_deposit"
	case AwaitingWithdraw:
		return "awaiting_withdraw"
	case AwaitingTransfer:
		return "awaiting_transfer"
	case AwaitingPlace:
		return "awaiting_place"
	case AwaitingSettle:
		return "awaiting_settle"
	default:
		return fmt.Sprintf("pending(%d)", uint8(k))
	}
}

// Pending is the single in-flight slot of a user. The fields a callback
// needs to finish the transition depend on the kind: Asset is the balance
// rewritten by the computation, Amount the plaintext withdrawal amount and
// Recipient the counterparty of a transfer.
type Pending struct {
	Kind        PendingKind    `json:"kind"                  cbor:"0,keyasint,omitempty"`
	Asset       AssetID        `json:"asset"                 cbor:"1,keyasint,omitempty"`
	Amount      uint64         `json:"amount,omitempty"      cbor:"2,keyasint,omitempty"`
	Recipient   common.Address `json:"recipient,omitempty"   cbor:"3,keyasint,omitempty"`
	Computation uuid.UUID      `json:"computation"           cbor:"4,keyasint,omitempty"`
}

// OrderTicket is the encrypted order a user keeps until settlement. The pair,
// direction and amount ciphertexts share the order nonce.
type OrderTicket struct {
	BatchID     uint64     `json:"batchId"     cbor:"0,keyasint,omitempty"`
	PairID      Ciphertext `json:"pairId"      cbor:"1,keyasint,omitempty"`
	Direction   Ciphertext `json:"direction"   cbor:"2,keyasint,omitempty"`
	Amount      Ciphertext `json:"amount"      cbor:"3,keyasint,omitempty"`
	Nonce       Nonce      `json:"nonce"       cbor:"4,keyasint,omitempty"`
	SourceAsset AssetID    `json:"sourceAsset" cbor:"5,keyasint,omitempty"`
	// Accepted is set once the accumulate callback confirmed the order was
	// funded and absorbed into the batch.
	Accepted   bool     `json:"accepted"   cbor:"6,keyasint,omitempty"`
	Commitment HexBytes `json:"commitment" cbor:"7,keyasint,omitempty"`
}

// Ciphertexts returns the order fields in circuit argument order.
func (o *OrderTicket) Ciphertexts() []Ciphertext {
	return []Ciphertext{o.PairID, o.Direction, o.Amount}
}

// UserLedger is the per-wallet record: encrypted balances, the in-flight
// slot, the resting order and counters.
type UserLedger struct {
	Owner    common.Address              `json:"owner"    cbor:"0,keyasint,omitempty"`
	PubKey   PublicKey                   `json:"pubKey"   cbor:"1,keyasint,omitempty"`
	Balances [NumAssets]EncryptedBalance `json:"balances" cbor:"2,keyasint,omitempty"`
	Pending  Pending                     `json:"pending"  cbor:"3,keyasint,omitempty"`
	// Locks holds, per asset, the computation currently reading that
	// balance. The zero UUID means the balance is free.
	Locks         [NumAssets]uuid.UUID `json:"locks"         cbor:"4,keyasint,omitempty"`
	Order         *OrderTicket         `json:"order"         cbor:"5,keyasint,omitempty"`
	OrderCount    uint64               `json:"orderCount"    cbor:"6,keyasint,omitempty"`
	FaucetClaimed uint64               `json:"faucetClaimed" cbor:"7,keyasint,omitempty"`
}

// NewUserLedger creates a user record holding the given encrypted zeros.
func NewUserLedger(owner common.Address, pubKey PublicKey, zeros [NumAssets]EncryptedBalance) *UserLedger {
	return &UserLedger{Owner: owner, PubKey: pubKey, Balances: zeros}
}

// Balance returns the ciphertext and nonce of an asset balance.
func (u *UserLedger) Balance(asset AssetID) EncryptedBalance {
	return u.Balances[asset]
}

// Nonce returns the nonce of an asset balance.
func (u *UserLedger) Nonce(asset AssetID) Nonce {
	return u.Balances[asset].Nonce
}

// SetBalance installs a circuit output for an asset. Ciphertext and nonce are
// always written together, and the nonce must differ from the current one.
func (u *UserLedger) SetBalance(asset AssetID, ct Ciphertext, nonce Nonce) error {
	if !asset.Valid() {
		return fmt.Errorf("invalid asset %d", asset)
	}
	if u.Balances[asset].Nonce == nonce {
		return fmt.Errorf("nonce of asset %s did not rotate", asset)
	}
	u.Balances[asset] = EncryptedBalance{Ciphertext: ct, Nonce: nonce}
	return nil
}

// HasPending reports whether an operation is in flight for the user.
func (u *UserLedger) HasPending() bool {
	return u.Pending.Kind != PendingNone
}

// SetPending records the in-flight operation.
func (u *UserLedger) SetPending(p Pending) {
	u.Pending = p
}

// ClearPending frees the in-flight slot.
func (u *UserLedger) ClearPending() {
	u.Pending = Pending{}
}

// SetPendingWithdrawAmount records the plaintext amount a withdrawal will
// transfer once the circuit confirms the funds.
func (u *UserLedger) SetPendingWithdrawAmount(amount uint64) {
	u.Pending.Amount = amount
}

// BalanceLocked reports whether a computation is reading the asset balance.
func (u *UserLedger) BalanceLocked(asset AssetID) bool {
	return u.Locks[asset] != uuid.Nil
}

// LockBalance marks the asset balance as read by the computation. It returns
// false if the balance is already locked.
func (u *UserLedger) LockBalance(asset AssetID, computation uuid.UUID) bool {
	if u.BalanceLocked(asset) {
		return false
	}
	u.Locks[asset] = computation
	return true
}

// UnlockBalance releases the asset balance if it is held by the computation.
func (u *UserLedger) UnlockBalance(asset AssetID, computation uuid.UUID) {
	if u.Locks[asset] == computation {
		u.Locks[asset] = uuid.Nil
	}
}
