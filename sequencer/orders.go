package sequencer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/crypto/hash/mimc"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/metrics"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// maxBatchOrders bounds the orders a batch can hold, counted and in flight.
const maxBatchOrders = 255

// OrderInput is an encrypted (pair, direction, amount) triple together with
// the plaintext source asset the order spends.
type OrderInput struct {
	PairID      types.Ciphertext `json:"pairId"`
	Direction   types.Ciphertext `json:"direction"`
	Amount      types.Ciphertext `json:"amount"`
	Nonce       types.Nonce      `json:"nonce"`
	SourceAsset types.AssetID    `json:"sourceAsset"`
}

// Commitment returns the MiMC commitment of the order ciphertexts and nonce.
func (o *OrderInput) Commitment() ([]byte, error) {
	return mimc.HashWords(o.PairID[:], o.Direction[:], o.Amount[:], o.Nonce[:])
}

// PlaceOrder stores the order ticket and queues its accumulation into the
// current batch. The user keeps the ticket until the order is settled.
func (s *Sequencer) PlaceOrder(caller common.Address, order OrderInput) (uuid.UUID, error) {
	if !order.SourceAsset.Valid() {
		return uuid.Nil, ErrInvalidAssetID
	}
	commitment, err := order.Commitment()
	if err != nil {
		return uuid.Nil, fmt.Errorf("order commitment: %w", err)
	}
	var id uuid.UUID
	err = s.transition(func(tx *storage.Tx) error {
		p, err := activePool(tx)
		if err != nil {
			return err
		}
		u, err := user(tx, caller)
		if err != nil {
			return err
		}
		if u.Order != nil {
			return ErrPendingOrderExists
		}
		if u.HasPending() {
			return ErrPendingOperation
		}
		if u.BalanceLocked(order.SourceAsset) {
			return ErrBalanceBusy
		}
		acc, err := accumulator(tx)
		if err != nil {
			return err
		}
		if !acc.Seeded {
			return ErrBatchNotInitialized
		}
		if acc.Executing || uint32(acc.OrderCount)+acc.InFlight >= maxBatchOrders {
			return ErrBatchBusy
		}

		u.Order = &types.OrderTicket{
			BatchID:     acc.BatchID,
			PairID:      order.PairID,
			Direction:   order.Direction,
			Amount:      order.Amount,
			Nonce:       order.Nonce,
			SourceAsset: order.SourceAsset,
			Commitment:  commitment,
		}
		comp := mpc.NewComputation(mpc.CircuitAccumulateOrder, accumulateArgs(u, acc, p)...)
		u.LockBalance(order.SourceAsset, comp.ID)
		u.SetPending(types.Pending{Kind: types.AwaitingPlace, Asset: order.SourceAsset, Computation: comp.ID})
		acc.InFlight++
		if err := tx.SetUser(u); err != nil {
			return err
		}
		if err := tx.SetAccumulator(acc); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{
			Computation: comp,
			Owner:       caller,
			BaseNonce:   acc.MXENonce,
			BatchID:     acc.BatchID,
		})
	})
	return id, err
}

// accumulateArgs builds the accumulate_order arguments from the order ticket
// and source balance of the user and the current accumulator state.
func accumulateArgs(u *types.UserLedger, acc *types.BatchAccumulator, p *types.Pool) []mpc.Argument {
	bal := u.Balance(u.Order.SourceAsset)
	state := acc.Ciphertexts()
	return []mpc.Argument{
		mpc.Shared(u.PubKey, u.Order.Nonce, u.Order.Ciphertexts()...),
		mpc.Shared(u.PubKey, bal.Nonce, bal.Ciphertext),
		mpc.Protocol(acc.MXENonce, state[:]...),
		mpc.Plaintext(uint64(acc.OrderCount)),
		mpc.Plaintext(uint64(p.ExecutionTriggerCount)),
	}
}

func (s *Sequencer) accumulateOrderCallback(cb *callback) error {
	u, err := cb.owner()
	if err != nil {
		return err
	}
	acc, err := accumulator(cb.tx)
	if err != nil {
		return err
	}
	// another accumulation landed while this one was running: run it again
	// over the current pair states
	if acc.MXENonce != cb.qc.BaseNonce {
		p, err := pool(cb.tx)
		if err != nil {
			return err
		}
		cb.qc.Computation.Args = accumulateArgs(u, acc, p)
		cb.qc.BaseNonce = acc.MXENonce
		cb.qc.Rebases++
		cb.requeued = true
		metrics.ComputationsRebased.Inc()
		log.Debugw("order accumulation rebased",
			"user", u.Owner.Hex(),
			"id", cb.qc.Computation.ID.String(),
			"rebases", cb.qc.Rebases)
		return cb.tx.UpdateComputation(cb.key, cb.qc)
	}

	hasFunds, err := cb.out.RevealedBool(0)
	if err != nil {
		return err
	}
	ready, err := cb.out.RevealedBool(1)
	if err != nil {
		return err
	}
	source := u.Order.SourceAsset
	u.UnlockBalance(source, cb.qc.Computation.ID)
	u.ClearPending()
	if acc.InFlight > 0 {
		acc.InFlight--
	}
	if !hasFunds {
		u.Order = nil
		if err := cb.tx.SetUser(u); err != nil {
			return err
		}
		if err := cb.tx.SetAccumulator(acc); err != nil {
			return err
		}
		return failAfterCommit(ErrInsufficientBalance)
	}

	encBalance, err := cb.out.EncryptedAt(0, 1)
	if err != nil {
		return err
	}
	encBatch, err := cb.out.EncryptedAt(1, types.BatchTotals)
	if err != nil {
		return err
	}
	if err := u.SetBalance(source, encBalance.Ciphertexts[0], encBalance.Nonce); err != nil {
		return err
	}
	var state [types.BatchTotals]types.Ciphertext
	copy(state[:], encBatch.Ciphertexts)
	acc.ApplyAccumulate(state, encBatch.Nonce, true, ready)
	u.Order.Accepted = true
	u.OrderCount++

	cb.tx.Emit(events.Event{
		Kind:       events.OrderPlaced,
		User:       u.Owner,
		BatchID:    acc.BatchID,
		OrderCount: acc.OrderCount,
		Commitment: u.Order.Commitment,
	})
	if ready {
		cb.tx.Emit(events.Event{Kind: events.BatchReady, BatchID: acc.BatchID, OrderCount: acc.OrderCount})
		log.Infow("batch ready", "batchID", acc.BatchID, "orders", acc.OrderCount)
	}
	orders := acc.OrderCount
	cb.afterCommit = append(cb.afterCommit, func() {
		metrics.AccumulatorOrders.Set(float64(orders))
	})
	if err := cb.tx.SetUser(u); err != nil {
		return err
	}
	return cb.tx.SetAccumulator(acc)
}

// SettleOrder queues the pro-rata payout of the accepted order of the caller.
// The caller reveals the pair and direction of the order; a claim that does
// not match the encrypted order pays out zero.
func (s *Sequencer) SettleOrder(caller common.Address, pair types.PairID, dir types.Direction) (uuid.UUID, error) {
	if !pair.Valid() {
		return uuid.Nil, ErrInvalidPairID
	}
	if !dir.Valid() {
		return uuid.Nil, ErrInvalidDirection
	}
	output, err := types.OutputAsset(pair, dir)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = s.transition(func(tx *storage.Tx) error {
		if _, err := activePool(tx); err != nil {
			return err
		}
		u, err := user(tx, caller)
		if err != nil {
			return err
		}
		if u.Order == nil || !u.Order.Accepted {
			return ErrNoPendingOrder
		}
		if u.HasPending() {
			return ErrPendingOperation
		}
		if u.BalanceLocked(output) {
			return ErrBalanceBusy
		}
		bl, err := s.BatchLog(u.Order.BatchID)
		if err != nil {
			return err
		}
		res := bl.Results[pair]
		totalInput, finalOutput := res.TotalAIn, res.FinalPoolB
		if dir == types.BToA {
			totalInput, finalOutput = res.TotalBIn, res.FinalPoolA
		}
		bal := u.Balance(output)
		comp := mpc.NewComputation(mpc.CircuitCalculatePayout,
			mpc.Shared(u.PubKey, u.Order.Nonce, u.Order.Ciphertexts()...),
			mpc.Shared(u.PubKey, bal.Nonce, bal.Ciphertext),
			mpc.Plaintext(totalInput),
			mpc.Plaintext(finalOutput),
			mpc.Plaintext(uint64(pair)),
			mpc.Plaintext(uint64(dir)),
		)
		u.LockBalance(output, comp.ID)
		u.SetPending(types.Pending{Kind: types.AwaitingSettle, Asset: output, Computation: comp.ID})
		if err := tx.SetUser(u); err != nil {
			return err
		}
		id = comp.ID
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, Owner: caller, BatchID: u.Order.BatchID})
	})
	return id, err
}

func (s *Sequencer) calculatePayoutCallback(cb *callback) error {
	u, err := cb.owner()
	if err != nil {
		return err
	}
	enc, err := cb.out.EncryptedAt(0, 1)
	if err != nil {
		return err
	}
	encPayout, err := cb.out.EncryptedAt(1, 1)
	if err != nil {
		return err
	}
	if len(cb.out.Revealed) != 1 {
		return fmt.Errorf("%w: payout not revealed", mpc.ErrInvalidArguments)
	}
	payout := cb.out.Revealed[0]
	output := u.Pending.Asset
	if err := u.SetBalance(output, enc.Ciphertexts[0], enc.Nonce); err != nil {
		return err
	}
	batchID := u.Order.BatchID
	u.UnlockBalance(output, cb.qc.Computation.ID)
	u.ClearPending()
	u.Order = nil

	p, err := pool(cb.tx)
	if err != nil {
		return err
	}
	p.TotalSettlements++
	if err := cb.tx.SetPool(p); err != nil {
		return err
	}
	cb.tx.Emit(events.Event{
		Kind:            events.Settlement,
		User:            u.Owner,
		BatchID:         batchID,
		Asset:           output,
		EncryptedPayout: encPayout.Ciphertexts[0],
		Nonce:           encPayout.Nonce,
		Payout:          payout,
	})
	cb.afterCommit = append(cb.afterCommit, metrics.Settlements.Inc)
	log.Debugw("order settled", "user", u.Owner.Hex(), "batchID", batchID, "payout", payout)
	return cb.tx.SetUser(u)
}
