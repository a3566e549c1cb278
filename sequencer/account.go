package sequencer

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// CreateUserAccount registers a user with its x25519 public key and the
// encrypted zero balances the user produced for the cluster.
func (s *Sequencer) CreateUserAccount(caller common.Address, pubKey types.PublicKey,
	zeros [types.NumAssets]types.EncryptedBalance,
) error {
	return s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		if _, err := tx.User(caller); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		log.Debugw("user account created", "user", caller.Hex())
		return tx.SetUser(types.NewUserLedger(caller, pubKey, zeros))
	})
}

// readyUser loads a user that can start a new operation on the asset.
func readyUser(tx *storage.Tx, addr common.Address, asset types.AssetID) (*types.UserLedger, error) {
	u, err := user(tx, addr)
	if err != nil {
		return nil, err
	}
	if u.HasPending() {
		return nil, ErrPendingOperation
	}
	if u.BalanceLocked(asset) {
		return nil, ErrBalanceBusy
	}
	return u, nil
}

// AddBalance pulls amount tokens from the user wallet into the vault and
// queues the add_balance computation crediting the encrypted amount, which must
// equal amount.
func (s *Sequencer) AddBalance(caller common.Address, asset types.AssetID, amount uint64,
	encAmount types.EncryptedBalance,
) (uuid.UUID, error) {
	if !asset.Valid() {
		return uuid.Nil, ErrInvalidAssetID
	}
	if amount == 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	var id uuid.UUID
	err := s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		u, err := readyUser(tx, caller, asset)
		if err != nil {
			return err
		}
		if err := custody.Transfer(tx, custody.External(caller, asset), custody.Vault(asset), amount); err != nil {
			return err
		}
		bal := u.Balance(asset)
		comp := mpc.NewComputation(mpc.CircuitAddBalance,
			mpc.Shared(u.PubKey, encAmount.Nonce, encAmount.Ciphertext),
			mpc.Shared(u.PubKey, bal.Nonce, bal.Ciphertext),
			mpc.Plaintext(amount),
		)
		u.LockBalance(asset, comp.ID)
		u.SetPending(types.Pending{Kind: types.AwaitingDeposit, Asset: asset, Amount: amount, Computation: comp.ID})
		if err := tx.SetUser(u); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, Owner: caller})
	})
	return id, err
}

func (s *Sequencer) addBalanceCallback(cb *callback) error {
	u, err := cb.owner()
	if err != nil {
		return err
	}
	matches, err := cb.out.RevealedBool(0)
	if err != nil {
		return err
	}
	asset, amount := u.Pending.Asset, u.Pending.Amount
	u.UnlockBalance(asset, cb.qc.Computation.ID)
	u.ClearPending()
	if !matches {
		// the encrypted amount is not what reached the vault, give the tokens back
		if err := custody.Transfer(cb.tx, custody.Vault(asset), custody.External(u.Owner, asset), amount); err != nil {
			return err
		}
		if err := cb.tx.SetUser(u); err != nil {
			return err
		}
		return failAfterCommit(ErrAmountMismatch)
	}
	enc, err := cb.out.EncryptedAt(0, 1)
	if err != nil {
		return err
	}
	if err := u.SetBalance(asset, enc.Ciphertexts[0], enc.Nonce); err != nil {
		return err
	}
	cb.tx.Emit(events.Event{Kind: events.Deposit, User: u.Owner, Asset: asset, Amount: amount})
	return cb.tx.SetUser(u)
}

// SubBalance queues a withdrawal. No tokens move until the callback reveals
// the encrypted balance covers the amount and the encrypted amount is the one
// requested.
func (s *Sequencer) SubBalance(caller common.Address, asset types.AssetID, amount uint64,
	encAmount types.EncryptedBalance,
) (uuid.UUID, error) {
	if !asset.Valid() {
		return uuid.Nil, ErrInvalidAssetID
	}
	if amount == 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	var id uuid.UUID
	err := s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		u, err := readyUser(tx, caller, asset)
		if err != nil {
			return err
		}
		bal := u.Balance(asset)
		comp := mpc.NewComputation(mpc.CircuitSubBalance,
			mpc.Shared(u.PubKey, encAmount.Nonce, encAmount.Ciphertext),
			mpc.Shared(u.PubKey, bal.Nonce, bal.Ciphertext),
			mpc.Plaintext(amount),
		)
		u.LockBalance(asset, comp.ID)
		u.SetPending(types.Pending{Kind: types.AwaitingWithdraw, Asset: asset, Computation: comp.ID})
		u.SetPendingWithdrawAmount(amount)
		if err := tx.SetUser(u); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, Owner: caller})
	})
	return id, err
}

func (s *Sequencer) subBalanceCallback(cb *callback) error {
	u, err := cb.owner()
	if err != nil {
		return err
	}
	hasFunds, err := cb.out.RevealedBool(0)
	if err != nil {
		return err
	}
	asset, amount := u.Pending.Asset, u.Pending.Amount
	u.UnlockBalance(asset, cb.qc.Computation.ID)
	u.ClearPending()
	if !hasFunds {
		if err := cb.tx.SetUser(u); err != nil {
			return err
		}
		return failAfterCommit(ErrInsufficientBalance)
	}
	enc, err := cb.out.EncryptedAt(0, 1)
	if err != nil {
		return err
	}
	if err := u.SetBalance(asset, enc.Ciphertexts[0], enc.Nonce); err != nil {
		return err
	}
	if err := custody.Transfer(cb.tx, custody.Vault(asset), custody.External(u.Owner, asset), amount); err != nil {
		return err
	}
	cb.tx.Emit(events.Event{Kind: events.Withdraw, User: u.Owner, Asset: asset, Amount: amount})
	return cb.tx.SetUser(u)
}

// InternalTransfer queues a transfer of an encrypted amount between two
// users. Both balances stay locked until the callback.
func (s *Sequencer) InternalTransfer(caller, recipient common.Address, asset types.AssetID,
	encAmount types.EncryptedBalance,
) (uuid.UUID, error) {
	if !asset.Valid() {
		return uuid.Nil, ErrInvalidAssetID
	}
	if caller == recipient {
		return uuid.Nil, ErrSelfTransfer
	}
	var id uuid.UUID
	err := s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		u, err := readyUser(tx, caller, asset)
		if err != nil {
			return err
		}
		r, err := user(tx, recipient)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		if r.BalanceLocked(asset) {
			return ErrBalanceBusy
		}
		senderBal, recipientBal := u.Balance(asset), r.Balance(asset)
		comp := mpc.NewComputation(mpc.CircuitTransfer,
			mpc.Shared(u.PubKey, encAmount.Nonce, encAmount.Ciphertext),
			mpc.Shared(u.PubKey, senderBal.Nonce, senderBal.Ciphertext),
			mpc.Shared(r.PubKey, recipientBal.Nonce, recipientBal.Ciphertext),
		)
		u.LockBalance(asset, comp.ID)
		r.LockBalance(asset, comp.ID)
		u.SetPending(types.Pending{Kind: types.AwaitingTransfer, Asset: asset, Recipient: recipient, Computation: comp.ID})
		if err := tx.SetUser(u); err != nil {
			return err
		}
		if err := tx.SetUser(r); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, Owner: caller})
	})
	return id, err
}

func (s *Sequencer) transferCallback(cb *callback) error {
	u, err := cb.owner()
	if err != nil {
		return err
	}
	r, err := user(cb.tx, u.Pending.Recipient)
	if err != nil {
		return err
	}
	hasFunds, err := cb.out.RevealedBool(0)
	if err != nil {
		return err
	}
	comp := cb.qc.Computation.ID
	asset := u.Pending.Asset
	u.UnlockBalance(asset, comp)
	r.UnlockBalance(asset, comp)
	u.ClearPending()
	if hasFunds {
		encSender, err := cb.out.EncryptedAt(0, 1)
		if err != nil {
			return err
		}
		encRecipient, err := cb.out.EncryptedAt(1, 1)
		if err != nil {
			return err
		}
		if err := u.SetBalance(asset, encSender.Ciphertexts[0], encSender.Nonce); err != nil {
			return err
		}
		if err := r.SetBalance(asset, encRecipient.Ciphertexts[0], encRecipient.Nonce); err != nil {
			return err
		}
		cb.tx.Emit(events.Event{Kind: events.Transfer, User: u.Owner, Recipient: r.Owner, Asset: asset})
	}
	if err := cb.tx.SetUser(u); err != nil {
		return err
	}
	if err := cb.tx.SetUser(r); err != nil {
		return err
	}
	if !hasFunds {
		return failAfterCommit(ErrInsufficientBalance)
	}
	return nil
}
