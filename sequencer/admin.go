package sequencer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// InitParams are the pool settings chosen at initialization.
type InitParams struct {
	Operator              common.Address `json:"operator"`
	Treasury              common.Address `json:"treasury"`
	ExecutionFeeBps       uint16         `json:"executionFeeBps"`
	ExecutionTriggerCount uint8          `json:"executionTriggerCount"`
}

// Initialize creates the pool. The caller becomes the authority, and the
// cluster the sequencer runs with is registered as the signer of outputs. A
// zero operator defaults to the authority and a zero trigger count to
// types.BatchTriggerCount.
func (s *Sequencer) Initialize(caller common.Address, params InitParams) error {
	if params.ExecutionFeeBps > types.MaxFeeBps {
		return ErrFeeTooHigh
	}
	return s.transition(func(tx *storage.Tx) error {
		if _, err := tx.Pool(); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		p := &types.Pool{
			Authority:             caller,
			Operator:              params.Operator,
			Treasury:              params.Treasury,
			ExecutionFeeBps:       params.ExecutionFeeBps,
			ExecutionTriggerCount: params.ExecutionTriggerCount,
			ClusterAddress:        s.cluster.Address(),
			ClusterPubKey:         s.cluster.PublicKey(),
		}
		if p.Operator == (common.Address{}) {
			p.Operator = caller
		}
		if p.ExecutionTriggerCount == 0 {
			p.ExecutionTriggerCount = types.BatchTriggerCount
		}
		log.Infow("pool initialized",
			"authority", caller.Hex(),
			"operator", p.Operator.Hex(),
			"cluster", p.ClusterAddress.Hex(),
			"triggerCount", p.ExecutionTriggerCount)
		return tx.SetPool(p)
	})
}

// SetPaused pauses or resumes user operations.
func (s *Sequencer) SetPaused(caller common.Address, paused bool) error {
	return s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if caller != p.Authority {
			return ErrUnauthorized
		}
		p.Paused = paused
		log.Infow("pause flag updated", "paused", paused)
		return tx.SetPool(p)
	})
}

// InitBatchAccumulator allocates the batch accumulator.
func (s *Sequencer) InitBatchAccumulator(caller common.Address) error {
	return s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if !p.IsOperator(caller) {
			return ErrUnauthorized
		}
		if _, err := tx.Accumulator(); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.SetAccumulator(types.NewBatchAccumulator())
	})
}

// InitBatchState queues the computation that seeds the accumulator of the
// current batch with encrypted zeros.
func (s *Sequencer) InitBatchState(caller common.Address) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if !p.IsOperator(caller) {
			return ErrUnauthorized
		}
		acc, err := accumulator(tx)
		if err != nil {
			return err
		}
		if acc.Seeded {
			return ErrAlreadyInitialized
		}
		if acc.Seeding || acc.Executing {
			return ErrBatchBusy
		}
		comp := mpc.NewComputation(mpc.CircuitInitBatchState)
		acc.Seeding = true
		if err := tx.SetAccumulator(acc); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, BatchID: acc.BatchID})
	})
	return id, err
}

func (s *Sequencer) initBatchStateCallback(cb *callback) error {
	acc, err := accumulator(cb.tx)
	if err != nil {
		return err
	}
	enc, err := cb.out.EncryptedAt(0, types.BatchTotals)
	if err != nil {
		return err
	}
	var zeros [types.BatchTotals]types.Ciphertext
	copy(zeros[:], enc.Ciphertexts)
	acc.SeedEncryptedZeros(zeros, enc.Nonce)
	log.Infow("batch state seeded", "batchID", acc.BatchID, "mxeNonce", enc.Nonce.String())
	return cb.tx.SetAccumulator(acc)
}

// AddLiquidity moves tokens from the authority wallet into the reserve of an
// asset.
func (s *Sequencer) AddLiquidity(caller common.Address, asset types.AssetID, amount uint64) error {
	return s.liquidity(caller, asset, amount, false)
}

// RemoveLiquidity moves tokens from the reserve of an asset back to the
// authority wallet.
func (s *Sequencer) RemoveLiquidity(caller common.Address, asset types.AssetID, amount uint64) error {
	return s.liquidity(caller, asset, amount, true)
}

func (s *Sequencer) liquidity(caller common.Address, asset types.AssetID, amount uint64, remove bool) error {
	if !asset.Valid() {
		return ErrInvalidAssetID
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if caller != p.Authority {
			return ErrUnauthorized
		}
		from, to := custody.External(caller, asset), custody.Reserve(asset)
		if remove {
			from, to = to, from
		}
		if err := custody.Transfer(tx, from, to, amount); err != nil {
			return err
		}
		tx.Emit(events.Event{Kind: events.Liquidity, User: caller, Asset: asset, Amount: amount, Removed: remove})
		return nil
	})
}

// Faucet mints test tokens into the wallet of a registered user, up to the
// configured cumulative cap.
func (s *Sequencer) Faucet(caller common.Address, asset types.AssetID, amount uint64) error {
	if !asset.Valid() {
		return ErrInvalidAssetID
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		u, err := user(tx, caller)
		if err != nil {
			return err
		}
		if u.FaucetClaimed+amount < u.FaucetClaimed || u.FaucetClaimed+amount > s.opts.FaucetCap {
			return ErrFaucetLimitExceeded
		}
		if err := custody.Mint(tx, custody.External(caller, asset), amount); err != nil {
			return err
		}
		u.FaucetClaimed += amount
		tx.Emit(events.Event{Kind: events.Faucet, User: caller, Asset: asset, Amount: amount})
		return tx.SetUser(u)
	})
}

// ClearPending releases the in-flight slot of a user whose computation will
// never complete. The queued computation is dropped and its locks released.
// An order that never reached the accumulator is dropped with it; an
// accepted order stays settleable. Tokens pulled into the vault by a dropped
// deposit stay there.
func (s *Sequencer) ClearPending(caller, owner common.Address) error {
	return s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if caller != p.Authority {
			return ErrUnauthorized
		}
		u, err := user(tx, owner)
		if err != nil {
			return err
		}
		if !u.HasPending() {
			return ErrNothingPending
		}
		pending := u.Pending
		comp := pending.Computation

		if key, qc, err := tx.ComputationKey(comp); err == nil {
			tx.RemoveComputation(key)
			if err := tx.SetComputationStatus(&storage.ComputationStatus{
				ID:       comp,
				Circuit:  qc.Computation.Circuit,
				Owner:    owner,
				State:    storage.ComputationFailed,
				Error:    "cleared by authority",
				Attempts: qc.Attempts,
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if pending.Kind == types.AwaitingPlace {
			if u.Order != nil && !u.Order.Accepted {
				u.Order = nil
			}
			acc, err := accumulator(tx)
			if err != nil {
				return err
			}
			if acc.InFlight > 0 {
				acc.InFlight--
			}
			if err := tx.SetAccumulator(acc); err != nil {
				return err
			}
		}
		if pending.Kind == types.AwaitingTransfer {
			r, err := user(tx, pending.Recipient)
			if err != nil {
				return fmt.Errorf("load recipient: %w", err)
			}
			unlockAll(r, comp)
			if err := tx.SetUser(r); err != nil {
				return err
			}
		}
		unlockAll(u, comp)
		u.ClearPending()
		tx.Emit(events.Event{
			Kind:        events.PendingCleared,
			User:        owner,
			Computation: comp,
			Reason:      pending.Kind.String(),
		})
		log.Infow("pending slot cleared", "user", owner.Hex(), "kind", pending.Kind.String())
		return tx.SetUser(u)
	})
}

// unlockAll releases every balance of the user held by the computation.
func unlockAll(u *types.UserLedger, comp uuid.UUID) {
	for a := types.AssetID(0); a < types.NumAssets; a++ {
		u.UnlockBalance(a, comp)
	}
}
